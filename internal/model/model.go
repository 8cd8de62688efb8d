package model

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// Batch represents a minibatch of inputs and integer labels.
type Batch struct {
	Inputs [][]float64
	Labels []int
}

// Param is one named tensor of learnable weights with its accumulated
// gradient. Layout is layer-specific; optimizers treat it as flat.
type Param struct {
	Name string
	W    []float64
	Grad []float64
}

func newParam(name string, size int) *Param {
	return &Param{Name: name, W: make([]float64, size), Grad: make([]float64, size)}
}

// Layer is one stage of the sequential network. Forward caches whatever
// Backward needs, so a layer must not be shared across concurrent steps.
type Layer interface {
	Name() string
	OutputSize() int
	Forward(in [][]float64) [][]float64
	Backward(grad [][]float64) [][]float64
	Params() []*Param
}

const (
	conv1Filters = 32
	conv2Filters = 64
	kernelSize   = 3
	poolSize     = 2
	hiddenUnits  = 128
)

// Sequential is the fixed-topology leaf classifier:
//
//	input SxSx3
//	-> Conv2D(32, 3x3) + ReLU -> MaxPool(2x2)
//	-> Conv2D(64, 3x3) + ReLU -> MaxPool(2x2)
//	-> Flatten -> Dense(128) + ReLU -> Dense(numClasses) + softmax
//
// The output width always equals the class count discovered from the
// dataset.
type Sequential struct {
	layers     []Layer
	imageSize  int
	numClasses int
}

// NewCNN builds the classifier with seeded random initialization.
func NewCNN(imageSize, numClasses int, seed int64) (*Sequential, error) {
	if numClasses < 2 {
		return nil, errors.Errorf("need at least 2 classes (got %d)", numClasses)
	}
	if imageSize < 12 {
		return nil, errors.Errorf("image size %d too small for two conv+pool blocks", imageSize)
	}
	rng := rand.New(rand.NewSource(seed))

	conv1 := newConv2D("conv1", imageSize, imageSize, 3, conv1Filters, kernelSize, rng)
	pool1 := newMaxPool2D("pool1", conv1.outH, conv1.outW, conv1Filters, poolSize)
	conv2 := newConv2D("conv2", pool1.outH, pool1.outW, conv1Filters, conv2Filters, kernelSize, rng)
	pool2 := newMaxPool2D("pool2", conv2.outH, conv2.outW, conv2Filters, poolSize)
	flat := newFlatten("flatten", pool2.OutputSize())
	dense1 := newDense("dense1", flat.OutputSize(), hiddenUnits, rng)
	dense2 := newDense("dense2", hiddenUnits, numClasses, rng)

	layers := []Layer{
		conv1, newReLU("relu1", conv1.OutputSize()),
		pool1,
		conv2, newReLU("relu2", conv2.OutputSize()),
		pool2,
		flat,
		dense1, newReLU("relu3", hiddenUnits),
		dense2,
	}
	return &Sequential{layers: layers, imageSize: imageSize, numClasses: numClasses}, nil
}

// ImageSize reports the expected input resolution.
func (s *Sequential) ImageSize() int { return s.imageSize }

// NumClasses reports the output layer width.
func (s *Sequential) NumClasses() int { return s.numClasses }

// InputSize reports the flattened input tensor length.
func (s *Sequential) InputSize() int { return s.imageSize * s.imageSize * 3 }

// Params returns every learnable tensor in layer order.
func (s *Sequential) Params() []*Param {
	var params []*Param
	for _, l := range s.layers {
		params = append(params, l.Params()...)
	}
	return params
}

// Forward runs the batch through every layer and returns the logits.
func (s *Sequential) Forward(inputs [][]float64) [][]float64 {
	out := inputs
	for _, l := range s.layers {
		out = l.Forward(out)
	}
	return out
}

// TrainStep runs one forward/backward pass over the batch, applies an
// optimizer update, and returns the mean cross-entropy loss plus the
// number of correct argmax predictions.
func (s *Sequential) TrainStep(batch Batch, opt *Adam) (float64, int) {
	n := len(batch.Inputs)
	if n == 0 {
		return 0, 0
	}
	logits := s.Forward(batch.Inputs)

	loss := 0.0
	correct := 0
	grad := make([][]float64, n)
	inv := 1.0 / float64(n)
	for i, row := range logits {
		label := batch.Labels[i]
		probs := softmax(row)
		loss += -math.Log(math.Max(probs[label], 1e-9))
		if argmax(probs) == label {
			correct++
		}
		probs[label] -= 1
		for j := range probs {
			probs[j] *= inv
		}
		grad[i] = probs
	}

	for _, p := range s.Params() {
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
	for i := len(s.layers) - 1; i >= 0; i-- {
		grad = s.layers[i].Backward(grad)
	}
	opt.Step(s.Params())

	return loss * inv, correct
}

// Eval computes loss and correct count without updating parameters.
func (s *Sequential) Eval(batch Batch) (float64, int) {
	n := len(batch.Inputs)
	if n == 0 {
		return 0, 0
	}
	logits := s.Forward(batch.Inputs)
	loss := 0.0
	correct := 0
	for i, row := range logits {
		probs := softmax(row)
		loss += -math.Log(math.Max(probs[batch.Labels[i]], 1e-9))
		if argmax(probs) == batch.Labels[i] {
			correct++
		}
	}
	return loss / float64(n), correct
}

// Predict classifies a single input and returns the class index with
// its probability distribution.
func (s *Sequential) Predict(input []float64) (int, []float64) {
	logits := s.Forward([][]float64{input})
	probs := softmax(logits[0])
	return argmax(probs), probs
}

// Weights returns a copy of every parameter tensor keyed by name.
func (s *Sequential) Weights() map[string][]float64 {
	out := make(map[string][]float64)
	for _, p := range s.Params() {
		out[p.Name] = append([]float64(nil), p.W...)
	}
	return out
}

// SetWeights replaces parameter values from a name-keyed map, checking
// that every tensor is present with the expected length.
func (s *Sequential) SetWeights(weights map[string][]float64) error {
	for _, p := range s.Params() {
		w, ok := weights[p.Name]
		if !ok {
			return errors.Errorf("missing weights for %s", p.Name)
		}
		if len(w) != len(p.W) {
			return errors.Errorf("weights %s: got %d values, want %d", p.Name, len(w), len(p.W))
		}
		copy(p.W, w)
	}
	return nil
}

func softmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	sum := 0.0
	out := make([]float64, len(logits))
	for i, v := range logits {
		exp := math.Exp(v - maxLogit)
		out[i] = exp
		sum += exp
	}
	inv := 1.0 / sum
	for i := range out {
		out[i] *= inv
	}
	return out
}

func argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}

// initScale is a He-style uniform limit for ReLU layers.
func initScale(fanIn int) float64 {
	return math.Sqrt(2.0 / float64(fanIn))
}
