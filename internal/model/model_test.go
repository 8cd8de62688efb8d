package model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBatch(n, inputSize, numClasses int, seed int64) Batch {
	rng := rand.New(rand.NewSource(seed))
	batch := Batch{
		Inputs: make([][]float64, n),
		Labels: make([]int, n),
	}
	for i := range batch.Inputs {
		row := make([]float64, inputSize)
		for j := range row {
			row[j] = rng.Float64()
		}
		batch.Inputs[i] = row
		batch.Labels[i] = i % numClasses
	}
	return batch
}

func TestNewCNNTopology(t *testing.T) {
	net, err := NewCNN(12, 3, 1)
	require.NoError(t, err)

	assert.Equal(t, 12, net.ImageSize())
	assert.Equal(t, 3, net.NumClasses())
	assert.Equal(t, 12*12*3, net.InputSize())

	byName := map[string]int{}
	for _, p := range net.Params() {
		byName[p.Name] = len(p.W)
	}
	assert.Equal(t, conv1Filters*3*3*3, byName["conv1/w"])
	assert.Equal(t, conv2Filters*3*3*conv1Filters, byName["conv2/w"])
	assert.Equal(t, hiddenUnits*1*1*conv2Filters, byName["dense1/w"])
	assert.Equal(t, 3*hiddenUnits, byName["dense2/w"])
	assert.Equal(t, 3, byName["dense2/b"])
}

func TestNewCNNOutputWidthFollowsClassCount(t *testing.T) {
	for _, classes := range []int{2, 3, 7} {
		net, err := NewCNN(16, classes, 1)
		require.NoError(t, err)
		_, probs := net.Predict(make([]float64, net.InputSize()))
		assert.Len(t, probs, classes)
	}
}

func TestNewCNNRejectsBadArgs(t *testing.T) {
	_, err := NewCNN(12, 1, 1)
	assert.Error(t, err)
	_, err = NewCNN(8, 2, 1)
	assert.Error(t, err)
}

func TestForwardLogitsShape(t *testing.T) {
	net, err := NewCNN(12, 2, 1)
	require.NoError(t, err)

	batch := randomBatch(3, net.InputSize(), 2, 1)
	logits := net.Forward(batch.Inputs)
	require.Len(t, logits, 3)
	for _, row := range logits {
		assert.Len(t, row, 2)
	}
}

func TestTrainStepReducesLossOnFixedBatch(t *testing.T) {
	net, err := NewCNN(12, 2, 5)
	require.NoError(t, err)
	opt := NewAdam(0.01)
	batch := randomBatch(4, net.InputSize(), 2, 2)

	first, _ := net.TrainStep(batch, opt)
	var last float64
	for i := 0; i < 30; i++ {
		last, _ = net.TrainStep(batch, opt)
	}
	assert.Less(t, last, first, "loss should fall when overfitting one batch")
}

func TestTrainStepDeterministic(t *testing.T) {
	batch := randomBatch(3, 12*12*3, 2, 4)

	run := func() (float64, map[string][]float64) {
		net, err := NewCNN(12, 2, 11)
		require.NoError(t, err)
		opt := NewAdam(0.001)
		var loss float64
		for i := 0; i < 3; i++ {
			loss, _ = net.TrainStep(batch, opt)
		}
		return loss, net.Weights()
	}

	loss1, w1 := run()
	loss2, w2 := run()
	assert.Equal(t, loss1, loss2)
	assert.Equal(t, w1, w2)
}

func TestEvalDoesNotMutate(t *testing.T) {
	net, err := NewCNN(12, 2, 3)
	require.NoError(t, err)
	batch := randomBatch(2, net.InputSize(), 2, 1)

	before := net.Weights()
	loss, correct := net.Eval(batch)
	assert.Greater(t, loss, 0.0)
	assert.LessOrEqual(t, correct, 2)
	assert.Equal(t, before, net.Weights())
}

func TestWeightsRoundTrip(t *testing.T) {
	src, err := NewCNN(12, 2, 1)
	require.NoError(t, err)
	dst, err := NewCNN(12, 2, 99)
	require.NoError(t, err)

	require.NoError(t, dst.SetWeights(src.Weights()))

	input := randomBatch(1, src.InputSize(), 2, 8).Inputs[0]
	_, p1 := src.Predict(input)
	_, p2 := dst.Predict(input)
	assert.Equal(t, p1, p2)
}

func TestSetWeightsValidates(t *testing.T) {
	net, err := NewCNN(12, 2, 1)
	require.NoError(t, err)

	weights := net.Weights()
	delete(weights, "conv1/b")
	assert.Error(t, net.SetWeights(weights))

	weights = net.Weights()
	weights["dense2/w"] = weights["dense2/w"][:3]
	assert.Error(t, net.SetWeights(weights))
}

// TestGradients verifies backprop against central finite differences
// for a sample of weights in every parameter tensor.
func TestGradients(t *testing.T) {
	net, err := NewCNN(12, 2, 7)
	require.NoError(t, err)
	batch := randomBatch(1, net.InputSize(), 2, 3)

	// zero learning rate: gradients are accumulated, weights untouched
	net.TrainStep(batch, NewAdam(0))

	const eps = 1e-5
	for _, p := range net.Params() {
		for _, i := range []int{0, len(p.W) / 3, len(p.W) - 1} {
			analytic := p.Grad[i]

			orig := p.W[i]
			p.W[i] = orig + eps
			lossPlus, _ := net.Eval(batch)
			p.W[i] = orig - eps
			lossMinus, _ := net.Eval(batch)
			p.W[i] = orig

			numeric := (lossPlus - lossMinus) / (2 * eps)
			tol := 1e-6 + 1e-4*math.Abs(analytic)
			assert.InDelta(t, numeric, analytic, tol, "%s[%d]", p.Name, i)
		}
	}
}
