package model

// maxPool2D downsamples HxWxC inputs with non-overlapping windows,
// remembering the argmax of each window for the backward pass.
type maxPool2D struct {
	name         string
	inH, inW, ch int
	size         int
	outH, outW   int
	argmax       [][]int
}

func newMaxPool2D(name string, inH, inW, ch, size int) *maxPool2D {
	return &maxPool2D{
		name: name,
		inH:  inH,
		inW:  inW,
		ch:   ch,
		size: size,
		outH: inH / size,
		outW: inW / size,
	}
}

func (m *maxPool2D) Name() string     { return m.name }
func (m *maxPool2D) OutputSize() int  { return m.outH * m.outW * m.ch }
func (m *maxPool2D) Params() []*Param { return nil }

func (m *maxPool2D) Forward(in [][]float64) [][]float64 {
	out := make([][]float64, len(in))
	m.argmax = make([][]int, len(in))
	for i, x := range in {
		y := make([]float64, m.OutputSize())
		arg := make([]int, m.OutputSize())
		for oy := 0; oy < m.outH; oy++ {
			for ox := 0; ox < m.outW; ox++ {
				for c := 0; c < m.ch; c++ {
					dst := (oy*m.outW+ox)*m.ch + c
					bestIdx := (oy*m.size*m.inW+ox*m.size)*m.ch + c
					best := x[bestIdx]
					for wy := 0; wy < m.size; wy++ {
						for wx := 0; wx < m.size; wx++ {
							idx := ((oy*m.size+wy)*m.inW+ox*m.size+wx)*m.ch + c
							if x[idx] > best {
								best = x[idx]
								bestIdx = idx
							}
						}
					}
					y[dst] = best
					arg[dst] = bestIdx
				}
			}
		}
		out[i] = y
		m.argmax[i] = arg
	}
	return out
}

func (m *maxPool2D) Backward(grad [][]float64) [][]float64 {
	out := make([][]float64, len(grad))
	for i, g := range grad {
		dx := make([]float64, m.inH*m.inW*m.ch)
		for dst, src := range m.argmax[i] {
			dx[src] += g[dst]
		}
		out[i] = dx
	}
	return out
}
