package port

import (
	"context"

	"github.com/yash6967/BuyWhatYouSee-V01/internal/domain/entity"
)

// ObjectDetector is the black-box detection capability: given a raster
// image and the two thresholds, return the surviving boxes in the
// detector's own order. Stateless across calls.
type ObjectDetector interface {
	Detect(ctx context.Context, imagePath string, confThresh, iouThresh float64) ([]entity.BoundingBox, error)
}
