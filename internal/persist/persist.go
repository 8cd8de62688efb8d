// Package persist serializes trained models to single-file archives:
// an xz-compressed gob holding the architecture description and every
// parameter tensor. Writes go to a temp file in the target directory
// and are renamed into place, so a crash mid-save never clobbers an
// existing model.
package persist

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"

	"github.com/Cyomorokenny1/CropDoc/internal/model"
)

const formatVersion = 1

// createTemp is swapped out in tests to fault-inject temp file writes.
var createTemp = os.CreateTemp

// Archive is the on-disk model representation.
type Archive struct {
	Format    int
	ImageSize int
	Classes   []string
	Weights   map[string][]float64
}

// Save writes the model atomically to path, overwriting any existing
// file on success.
func Save(path string, net *model.Sequential, classes []string) error {
	arch := Archive{
		Format:    formatVersion,
		ImageSize: net.ImageSize(),
		Classes:   classes,
		Weights:   net.Weights(),
	}

	dir := filepath.Dir(path)
	tmp, err := createTemp(dir, ".model-*")
	if err != nil {
		return errors.Wrap(err, "create temp model file")
	}
	defer os.Remove(tmp.Name())

	zw, err := xz.NewWriter(tmp)
	if err != nil {
		tmp.Close()
		return errors.Wrap(err, "open xz writer")
	}
	if err := gob.NewEncoder(zw).Encode(arch); err != nil {
		tmp.Close()
		return errors.Wrap(err, "encode model")
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "flush xz stream")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp model file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "replace model file")
	}
	return nil
}

// Load reads an archive and reconstructs the model with its class
// vocabulary.
func Load(path string) (*model.Sequential, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open model file")
	}
	defer f.Close()

	zr, err := xz.NewReader(f)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open xz reader")
	}
	var arch Archive
	if err := gob.NewDecoder(zr).Decode(&arch); err != nil {
		return nil, nil, errors.Wrap(err, "decode model")
	}
	if arch.Format != formatVersion {
		return nil, nil, errors.Errorf("unsupported model format %d", arch.Format)
	}

	net, err := model.NewCNN(arch.ImageSize, len(arch.Classes), 0)
	if err != nil {
		return nil, nil, errors.Wrap(err, "rebuild model")
	}
	if err := net.SetWeights(arch.Weights); err != nil {
		return nil, nil, errors.Wrap(err, "restore weights")
	}
	return net, arch.Classes, nil
}

// Checkpoint saves the model under dir as ckpt-NNNNN.bin for the given
// epoch, creating dir if needed.
func Checkpoint(dir string, epoch int, net *model.Sequential, classes []string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create checkpoint dir")
	}
	path := filepath.Join(dir, fmt.Sprintf("ckpt-%05d.bin", epoch))
	if err := Save(path, net, classes); err != nil {
		return "", err
	}
	return path, nil
}

// ProbeWritable verifies the model path can be written before any
// training compute is spent.
func ProbeWritable(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return errors.Wrapf(err, "model path %s is not writable", path)
	}
	tmp.Close()
	return os.Remove(tmp.Name())
}
