package model

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// dense is a fully connected layer computing y = xW^T + b over a batch.
type dense struct {
	name    string
	in, out int
	w, b    *Param
	input   *mat.Dense
}

func newDense(name string, in, out int, rng *rand.Rand) *dense {
	d := &dense{
		name: name,
		in:   in,
		out:  out,
		w:    newParam(name+"/w", out*in),
		b:    newParam(name+"/b", out),
	}
	limit := initScale(in)
	for i := range d.w.W {
		d.w.W[i] = (rng.Float64()*2 - 1) * limit
	}
	return d
}

func (d *dense) Name() string     { return d.name }
func (d *dense) OutputSize() int  { return d.out }
func (d *dense) Params() []*Param { return []*Param{d.w, d.b} }

func (d *dense) Forward(in [][]float64) [][]float64 {
	n := len(in)
	x := mat.NewDense(n, d.in, flatten2(in, d.in))
	d.input = x

	weights := mat.NewDense(d.out, d.in, d.w.W)
	var y mat.Dense
	y.Mul(x, weights.T())

	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, d.out)
		for j := 0; j < d.out; j++ {
			row[j] = y.At(i, j) + d.b.W[j]
		}
		out[i] = row
	}
	return out
}

func (d *dense) Backward(grad [][]float64) [][]float64 {
	n := len(grad)
	g := mat.NewDense(n, d.out, flatten2(grad, d.out))

	wGrad := mat.NewDense(d.out, d.in, d.w.Grad)
	var dW mat.Dense
	dW.Mul(g.T(), d.input)
	wGrad.Add(wGrad, &dW)

	for i := 0; i < n; i++ {
		for j := 0; j < d.out; j++ {
			d.b.Grad[j] += g.At(i, j)
		}
	}

	weights := mat.NewDense(d.out, d.in, d.w.W)
	var dX mat.Dense
	dX.Mul(g, weights)

	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = append([]float64(nil), dX.RawRowView(i)...)
	}
	return out
}

func flatten2(rows [][]float64, width int) []float64 {
	flat := make([]float64, len(rows)*width)
	for i, row := range rows {
		copy(flat[i*width:(i+1)*width], row)
	}
	return flat
}
