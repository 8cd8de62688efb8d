package model

import "math"

// Adam implements the Adam update rule with bias-corrected first and
// second moment estimates, one state pair per parameter tensor.
type Adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	step  int
	m     map[string][]float64
	v     map[string][]float64
}

// NewAdam builds an optimizer with the standard beta/epsilon defaults.
func NewAdam(lr float64) *Adam {
	return &Adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
		m:     make(map[string][]float64),
		v:     make(map[string][]float64),
	}
}

// Step applies one update to every parameter from its accumulated
// gradient. Moment state is allocated lazily on first sight of a tensor.
func (a *Adam) Step(params []*Param) {
	a.step++
	c1 := 1 - math.Pow(a.beta1, float64(a.step))
	c2 := 1 - math.Pow(a.beta2, float64(a.step))
	for _, p := range params {
		m, ok := a.m[p.Name]
		if !ok {
			m = make([]float64, len(p.W))
			a.m[p.Name] = m
		}
		v, ok := a.v[p.Name]
		if !ok {
			v = make([]float64, len(p.W))
			a.v[p.Name] = v
		}
		for i, g := range p.Grad {
			m[i] = a.beta1*m[i] + (1-a.beta1)*g
			v[i] = a.beta2*v[i] + (1-a.beta2)*g*g
			mHat := m[i] / c1
			vHat := v[i] / c2
			p.W[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
}
