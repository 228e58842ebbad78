package port

import (
	"context"

	"github.com/yash6967/BuyWhatYouSee-V01/internal/domain/entity"
)

// MatchResolver queries the visual-search provider for a published
// image URL. An empty slice with a nil error is the valid no-matches
// outcome; transport failures return *entity.SearchUnavailableError.
type MatchResolver interface {
	Resolve(ctx context.Context, imageURL string) ([]entity.Match, error)
}
