package dataset

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, c color.RGBA, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// fixtureTree writes a two-class dataset with three images per class.
func fixtureTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	names := []string{"a.png", "b.png", "c.png"}
	colors := []color.RGBA{
		{R: 200, A: 255},
		{G: 200, A: 255},
		{B: 200, A: 255},
	}
	for i, name := range names {
		writePNG(t, filepath.Join(root, "healthy", name), colors[i], 20, 20)
		writePNG(t, filepath.Join(root, "rust", name), colors[i], 16, 24)
	}
	return root
}
