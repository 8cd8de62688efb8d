package model

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// conv2D is a valid-padding stride-1 convolution over HxWxC inputs with
// interleaved channels. The forward pass lowers each sample to a column
// matrix (im2col) so the convolution becomes one dense multiply.
type conv2D struct {
	name            string
	inH, inW, inC   int
	filters, kernel int
	outH, outW      int
	w, b            *Param
	cols            [][]float64
}

func newConv2D(name string, inH, inW, inC, filters, kernel int, rng *rand.Rand) *conv2D {
	fanIn := kernel * kernel * inC
	c := &conv2D{
		name:    name,
		inH:     inH,
		inW:     inW,
		inC:     inC,
		filters: filters,
		kernel:  kernel,
		outH:    inH - kernel + 1,
		outW:    inW - kernel + 1,
		w:       newParam(name+"/w", filters*fanIn),
		b:       newParam(name+"/b", filters),
	}
	limit := initScale(fanIn)
	for i := range c.w.W {
		c.w.W[i] = (rng.Float64()*2 - 1) * limit
	}
	return c
}

func (c *conv2D) Name() string     { return c.name }
func (c *conv2D) OutputSize() int  { return c.outH * c.outW * c.filters }
func (c *conv2D) Params() []*Param { return []*Param{c.w, c.b} }

func (c *conv2D) Forward(in [][]float64) [][]float64 {
	kkC := c.kernel * c.kernel * c.inC
	patches := c.outH * c.outW
	weights := mat.NewDense(c.filters, kkC, c.w.W)

	c.cols = make([][]float64, len(in))
	out := make([][]float64, len(in))
	for i, x := range in {
		col := c.im2col(x)
		c.cols[i] = col

		var prod mat.Dense
		prod.Mul(weights, mat.NewDense(kkC, patches, col))

		y := make([]float64, patches*c.filters)
		for f := 0; f < c.filters; f++ {
			bias := c.b.W[f]
			for p := 0; p < patches; p++ {
				y[p*c.filters+f] = prod.At(f, p) + bias
			}
		}
		out[i] = y
	}
	return out
}

func (c *conv2D) Backward(grad [][]float64) [][]float64 {
	kkC := c.kernel * c.kernel * c.inC
	patches := c.outH * c.outW
	weights := mat.NewDense(c.filters, kkC, c.w.W)
	wGrad := mat.NewDense(c.filters, kkC, c.w.Grad)

	out := make([][]float64, len(grad))
	for i, g := range grad {
		gm := make([]float64, c.filters*patches)
		for p := 0; p < patches; p++ {
			for f := 0; f < c.filters; f++ {
				v := g[p*c.filters+f]
				gm[f*patches+p] = v
				c.b.Grad[f] += v
			}
		}
		gradM := mat.NewDense(c.filters, patches, gm)
		colM := mat.NewDense(kkC, patches, c.cols[i])

		var dW mat.Dense
		dW.Mul(gradM, colM.T())
		wGrad.Add(wGrad, &dW)

		var dCol mat.Dense
		dCol.Mul(weights.T(), gradM)
		out[i] = c.col2im(&dCol)
	}
	return out
}

func (c *conv2D) im2col(x []float64) []float64 {
	patches := c.outH * c.outW
	col := make([]float64, c.kernel*c.kernel*c.inC*patches)
	for oy := 0; oy < c.outH; oy++ {
		for ox := 0; ox < c.outW; ox++ {
			p := oy*c.outW + ox
			r := 0
			for ky := 0; ky < c.kernel; ky++ {
				src := ((oy+ky)*c.inW + ox) * c.inC
				for kx := 0; kx < c.kernel*c.inC; kx++ {
					col[(r+kx)*patches+p] = x[src+kx]
				}
				r += c.kernel * c.inC
			}
		}
	}
	return col
}

func (c *conv2D) col2im(dCol mat.Matrix) []float64 {
	dx := make([]float64, c.inH*c.inW*c.inC)
	for oy := 0; oy < c.outH; oy++ {
		for ox := 0; ox < c.outW; ox++ {
			p := oy*c.outW + ox
			r := 0
			for ky := 0; ky < c.kernel; ky++ {
				dst := ((oy+ky)*c.inW + ox) * c.inC
				for kx := 0; kx < c.kernel*c.inC; kx++ {
					dx[dst+kx] += dCol.At(r+kx, p)
				}
				r += c.kernel * c.inC
			}
		}
	}
	return dx
}
