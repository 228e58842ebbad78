package port

import (
	"context"

	"github.com/yash6967/BuyWhatYouSee-V01/internal/domain/entity"
)

type FrameSampleResult struct {
	Frames        []entity.Frame
	TotalFrames   int
	MediaDuration float64
}

// FrameSampler turns input media into a bounded, evenly spaced frame
// sequence. An image is one frame; a video yields every frameSkip-th
// frame in source order.
type FrameSampler interface {
	Sample(ctx context.Context, mediaPath, outputDir string, kind entity.MediaKind, frameSkip int) (*FrameSampleResult, error)
}
