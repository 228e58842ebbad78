package imaging

import (
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/yash6967/BuyWhatYouSee-V01/internal/domain/entity"
)

// ExtractCandidates crops each detected box out of its frame and writes
// the crops into scratchDir. Boxes are clamped to the frame extent
// before cropping; a box left with no area after clamping is dropped.
// Candidate indices are dense within the frame (0..k-1).
func ExtractCandidates(frame entity.Frame, boxes []entity.BoundingBox, scratchDir string) ([]entity.Candidate, error) {
	if len(boxes) == 0 {
		return nil, nil
	}

	src, err := loadImage(frame.Path)
	if err != nil {
		return nil, fmt.Errorf("load frame %d: %w", frame.Index, err)
	}
	bounds := src.Bounds()

	candidates := make([]entity.Candidate, 0, len(boxes))
	for _, box := range boxes {
		clamped := box.Clamp(bounds.Dx(), bounds.Dy())
		if clamped.Empty() {
			continue
		}

		idx := len(candidates)
		cropPath := filepath.Join(scratchDir, fmt.Sprintf("crop_f%d_c%d.png", frame.Index, idx))
		if err := writeCrop(src, clamped, cropPath); err != nil {
			return nil, fmt.Errorf("crop frame %d box %d: %w", frame.Index, idx, err)
		}

		candidates = append(candidates, entity.Candidate{
			FrameIndex: frame.Index,
			Index:      idx,
			Box:        clamped,
			CropPath:   cropPath,
		})
	}

	return candidates, nil
}

func writeCrop(src image.Image, box entity.BoundingBox, destPath string) error {
	rect := image.Rect(box.X1, box.Y1, box.X2, box.Y2)

	sub, ok := src.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	var crop image.Image
	if ok {
		crop = sub.SubImage(rect)
	} else {
		rgba := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
		for y := 0; y < rect.Dy(); y++ {
			for x := 0; x < rect.Dx(); x++ {
				rgba.Set(x, y, src.At(rect.Min.X+x, rect.Min.Y+y))
			}
		}
		crop = rgba
	}

	f, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return png.Encode(f, crop)
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}
