package imaging

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/domain/entity"
)

func writeFrame(t *testing.T, dir string, width, height int) entity.Frame {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	path := filepath.Join(dir, "frame_00001.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return entity.Frame{Index: 0, Offset: 0, Path: path, Width: width, Height: height}
}

func TestExtractCandidatesCrops(t *testing.T) {
	dir := t.TempDir()
	frame := writeFrame(t, dir, 200, 100)

	boxes := []entity.BoundingBox{
		{X1: 10, Y1: 10, X2: 60, Y2: 50, Confidence: 0.9, ClassID: 1},
		{X1: 100, Y1: 20, X2: 180, Y2: 90, Confidence: 0.8, ClassID: 2},
	}

	candidates, err := ExtractCandidates(frame, boxes, dir)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	for i, cand := range candidates {
		assert.Equal(t, i, cand.Index)
		assert.Equal(t, 0, cand.FrameIndex)

		f, err := os.Open(cand.CropPath)
		require.NoError(t, err)
		cfg, err := png.DecodeConfig(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, cand.Box.X2-cand.Box.X1, cfg.Width)
		assert.Equal(t, cand.Box.Y2-cand.Box.Y1, cfg.Height)
	}
}

func TestExtractCandidatesClampsOutOfRangeBoxes(t *testing.T) {
	dir := t.TempDir()
	frame := writeFrame(t, dir, 100, 100)

	boxes := []entity.BoundingBox{
		{X1: -10, Y1: -10, X2: 50, Y2: 50},
		{X1: 80, Y1: 80, X2: 150, Y2: 150},
	}

	candidates, err := ExtractCandidates(frame, boxes, dir)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	for _, cand := range candidates {
		assert.GreaterOrEqual(t, cand.Box.X1, 0)
		assert.GreaterOrEqual(t, cand.Box.Y1, 0)
		assert.LessOrEqual(t, cand.Box.X2, 100)
		assert.LessOrEqual(t, cand.Box.Y2, 100)
		assert.Less(t, cand.Box.X1, cand.Box.X2)
		assert.Less(t, cand.Box.Y1, cand.Box.Y2)
	}
}

func TestExtractCandidatesDropsDegenerateBoxes(t *testing.T) {
	dir := t.TempDir()
	frame := writeFrame(t, dir, 100, 100)

	boxes := []entity.BoundingBox{
		{X1: 200, Y1: 200, X2: 300, Y2: 300}, // fully outside
		{X1: 10, Y1: 10, X2: 40, Y2: 40},
	}

	candidates, err := ExtractCandidates(frame, boxes, dir)
	require.NoError(t, err)
	// Indices stay dense even when a box is dropped.
	require.Len(t, candidates, 1)
	assert.Equal(t, 0, candidates[0].Index)
}

func TestExtractCandidatesEmptyDetections(t *testing.T) {
	dir := t.TempDir()
	frame := writeFrame(t, dir, 50, 50)

	candidates, err := ExtractCandidates(frame, nil, dir)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}
