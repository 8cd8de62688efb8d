package metrics

import "time"

// Meter accumulates loss, accuracy and timing stats across steps.
type Meter struct {
	samples  int
	correct  int
	steps    int
	loss     float64
	data     time.Duration
	compute  time.Duration
	lastLoss float64
}

// Record adds one training step to the meter. loss is the batch mean.
func (m *Meter) Record(batchSize, correct int, dataTime, computeTime time.Duration, loss float64) {
	m.samples += batchSize
	m.correct += correct
	m.steps++
	m.loss += loss * float64(batchSize)
	m.data += dataTime
	m.compute += computeTime
	m.lastLoss = loss
}

// Snapshot returns aggregated metrics and resets the meter.
func (m *Meter) Snapshot() Snapshot {
	snap := Snapshot{Samples: m.samples, LastLoss: m.lastLoss}
	if m.samples > 0 {
		snap.AvgLoss = m.loss / float64(m.samples)
		snap.Accuracy = float64(m.correct) / float64(m.samples)
	}
	total := m.data + m.compute
	if total > 0 {
		snap.ImagesPerSec = float64(m.samples) / total.Seconds()
	}
	if m.steps > 0 {
		snap.AvgDataMS = (m.data.Seconds() * 1000) / float64(m.steps)
		snap.AvgComputeMS = (m.compute.Seconds() * 1000) / float64(m.steps)
	}

	m.samples = 0
	m.correct = 0
	m.steps = 0
	m.loss = 0
	m.data = 0
	m.compute = 0
	return snap
}

// Snapshot represents loggable metrics for one logging window or epoch.
type Snapshot struct {
	Samples      int
	AvgLoss      float64
	Accuracy     float64
	ImagesPerSec float64
	AvgDataMS    float64
	AvgComputeMS float64
	LastLoss     float64
}
