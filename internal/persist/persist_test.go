package persist

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cyomorokenny1/CropDoc/internal/model"
)

func newNet(t *testing.T, seed int64) *model.Sequential {
	t.Helper()
	net, err := model.NewCNN(12, 2, seed)
	require.NoError(t, err)
	return net
}

func randomInput(net *model.Sequential, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	in := make([]float64, net.InputSize())
	for i := range in {
		in[i] = rng.Float64()
	}
	return in
}

func TestSaveLoadRoundTrip(t *testing.T) {
	net := newNet(t, 3)
	path := filepath.Join(t.TempDir(), "leaf_model.bin")

	require.NoError(t, Save(path, net, []string{"healthy", "rust"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	loaded, classes, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"healthy", "rust"}, classes)

	in := randomInput(net, 8)
	wantClass, wantProbs := net.Predict(in)
	gotClass, gotProbs := loaded.Predict(in)
	assert.Equal(t, wantClass, gotClass)
	assert.Equal(t, wantProbs, gotProbs)
}

func TestSaveOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leaf_model.bin")

	first := newNet(t, 1)
	require.NoError(t, Save(path, first, []string{"a", "b"}))
	second := newNet(t, 2)
	require.NoError(t, Save(path, second, []string{"a", "b"}))

	loaded, _, err := Load(path)
	require.NoError(t, err)

	in := randomInput(second, 4)
	_, wantProbs := second.Predict(in)
	_, gotProbs := loaded.Predict(in)
	assert.Equal(t, wantProbs, gotProbs)
}

func TestSaveFailureKeepsExistingModel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "leaf_model.bin")
	require.NoError(t, Save(path, newNet(t, 1), []string{"a", "b"}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	// hand Save a temp file that rejects writes, so the archive write
	// fails before the rename
	createTemp = func(dir, pattern string) (*os.File, error) {
		f, err := os.CreateTemp(dir, pattern)
		if err != nil {
			return nil, err
		}
		f.Close()
		return f, nil
	}
	t.Cleanup(func() { createTemp = os.CreateTemp })

	assert.Error(t, Save(path, newNet(t, 2), []string{"a", "b"}))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed save must leave the existing model intact")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "leaf_model.bin", entries[0].Name())
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(filepath.Join(dir, "m.bin"), newNet(t, 1), []string{"a", "b"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "m.bin", entries[0].Name())
}

func TestSaveUnwritablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "m.bin")
	assert.Error(t, Save(path, newNet(t, 1), []string{"a", "b"}))
	assert.Error(t, ProbeWritable(path))
}

func TestProbeWritableOK(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ProbeWritable(filepath.Join(dir, "m.bin")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "probe must clean up after itself")
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "absent.bin"))
	assert.Error(t, err)
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bin")
	require.NoError(t, os.WriteFile(path, []byte("not a model"), 0o644))
	_, _, err := Load(path)
	assert.Error(t, err)
}

func TestCheckpointNaming(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ckpts")
	net := newNet(t, 1)

	path, err := Checkpoint(dir, 3, net, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ckpt-00003.bin"), path)

	_, _, err = Load(path)
	assert.NoError(t, err)
}
