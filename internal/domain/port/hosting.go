package port

import (
	"context"

	"github.com/yash6967/BuyWhatYouSee-V01/internal/domain/entity"
)

// ImageHost uploads a candidate crop and returns its public URL.
// Single attempt; a retry is the caller's decision and produces a new
// hosted image (no dedup across attempts).
type ImageHost interface {
	Upload(ctx context.Context, cropPath string) (*entity.PublishedRef, error)
}
