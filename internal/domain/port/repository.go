package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/domain/entity"
)

type RunRepository interface {
	Create(ctx context.Context, run *entity.PipelineRun) error
	Update(ctx context.Context, run *entity.PipelineRun) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.PipelineRun, error)
	SaveResults(ctx context.Context, runID uuid.UUID, results []entity.CandidateResult) error
}

type CheckoutRepository interface {
	SaveSession(ctx context.Context, runID uuid.UUID, session *entity.CheckoutSession) error
}
