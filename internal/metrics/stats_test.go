package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMeterSnapshot(t *testing.T) {
	var m Meter
	m.Record(64, 32, 20*time.Millisecond, 10*time.Millisecond, 1.2)
	m.Record(64, 48, 10*time.Millisecond, 20*time.Millisecond, 0.8)

	snap := m.Snapshot()
	assert.Equal(t, 128, snap.Samples)
	assert.InDelta(t, 1.0, snap.AvgLoss, 1e-12)
	assert.InDelta(t, 80.0/128.0, snap.Accuracy, 1e-12)
	assert.InDelta(t, 2133.33, snap.ImagesPerSec, 1)
	assert.InDelta(t, 15.0, snap.AvgDataMS, 1e-9)
	assert.InDelta(t, 15.0, snap.AvgComputeMS, 1e-9)
	assert.Equal(t, 0.8, snap.LastLoss)
}

func TestMeterResetsAfterSnapshot(t *testing.T) {
	var m Meter
	m.Record(8, 4, time.Millisecond, time.Millisecond, 0.5)
	m.Snapshot()

	snap := m.Snapshot()
	assert.Equal(t, 0, snap.Samples)
	assert.Equal(t, 0.0, snap.AvgLoss)
	assert.Equal(t, 0.0, snap.Accuracy)
}

func TestMeterEmpty(t *testing.T) {
	var m Meter
	snap := m.Snapshot()
	assert.Equal(t, 0, snap.Samples)
	assert.Equal(t, 0.0, snap.ImagesPerSec)
}
