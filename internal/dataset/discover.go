package dataset

import (
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Class is one label in the vocabulary inferred from the dataset layout.
type Class struct {
	Name  string
	Index int
}

// FileSample is one labeled image file discovered on disk.
type FileSample struct {
	Path  string
	Label int
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// DiscoverClasses scans the immediate subdirectories of root and returns
// them as the class vocabulary. Directory names are sorted so the
// label-to-index mapping does not depend on filesystem enumeration order.
func DiscoverClasses(root string) ([]Class, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "read dataset root %s", root)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, errors.Errorf("no class directories under %s", root)
	}
	sort.Strings(names)
	classes := make([]Class, len(names))
	for i, name := range names {
		classes[i] = Class{Name: name, Index: i}
	}
	return classes, nil
}

// ClassNames returns the vocabulary in index order.
func ClassNames(classes []Class) []string {
	names := make([]string, len(classes))
	for _, c := range classes {
		names[c.Index] = c.Name
	}
	return names
}

// ListSamples walks each class directory and collects its image files.
func ListSamples(root string, classes []Class) ([]FileSample, error) {
	var samples []FileSample
	for _, class := range classes {
		dir := filepath.Join(root, class.Name)
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if imageExts[strings.ToLower(filepath.Ext(d.Name()))] {
				samples = append(samples, FileSample{Path: path, Label: class.Index})
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "scan class %s", class.Name)
		}
	}
	if len(samples) == 0 {
		return nil, errors.Errorf("no readable images under %s", root)
	}
	return samples, nil
}

// Split shuffles samples with the given seed and partitions them into
// training and validation sets. valFraction of zero keeps everything in
// the training set.
func Split(samples []FileSample, valFraction float64, seed int64) (train, val []FileSample) {
	shuffled := append([]FileSample(nil), samples...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	n := int(valFraction * float64(len(shuffled)))
	if n >= len(shuffled) {
		n = len(shuffled) - 1
	}
	return shuffled[n:], shuffled[:n]
}
