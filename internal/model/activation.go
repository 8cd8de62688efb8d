package model

// relu applies max(0, x) elementwise, masking gradients on the way back.
type relu struct {
	name string
	size int
	mask [][]bool
}

func newReLU(name string, size int) *relu {
	return &relu{name: name, size: size}
}

func (r *relu) Name() string     { return r.name }
func (r *relu) OutputSize() int  { return r.size }
func (r *relu) Params() []*Param { return nil }

func (r *relu) Forward(in [][]float64) [][]float64 {
	out := make([][]float64, len(in))
	r.mask = make([][]bool, len(in))
	for i, x := range in {
		y := make([]float64, len(x))
		m := make([]bool, len(x))
		for j, v := range x {
			if v > 0 {
				y[j] = v
				m[j] = true
			}
		}
		out[i] = y
		r.mask[i] = m
	}
	return out
}

func (r *relu) Backward(grad [][]float64) [][]float64 {
	out := make([][]float64, len(grad))
	for i, g := range grad {
		dx := make([]float64, len(g))
		for j, pass := range r.mask[i] {
			if pass {
				dx[j] = g[j]
			}
		}
		out[i] = dx
	}
	return out
}

// flatten marks the transition from spatial blocks to dense layers. The
// tensors are already stored flat, so it only fixes the shape contract.
type flatten struct {
	name string
	size int
}

func newFlatten(name string, size int) *flatten {
	return &flatten{name: name, size: size}
}

func (f *flatten) Name() string                       { return f.name }
func (f *flatten) OutputSize() int                    { return f.size }
func (f *flatten) Params() []*Param                   { return nil }
func (f *flatten) Forward(in [][]float64) [][]float64 { return in }
func (f *flatten) Backward(g [][]float64) [][]float64 { return g }
