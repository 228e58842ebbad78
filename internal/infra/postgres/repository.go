package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/domain/entity"
)

type RunRepository struct {
	pool *pgxpool.Pool
}

func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

func (r *RunRepository) Create(ctx context.Context, run *entity.PipelineRun) error {
	query := `
		INSERT INTO pipeline_runs (
			id, user_id, media_key, media_kind, status, frame_count,
			candidate_count, matched_count, file_size, media_duration,
			attempt, max_attempts, error_message, created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

	_, err := r.pool.Exec(ctx, query,
		run.ID, run.UserID, run.MediaKey, string(run.MediaKind), string(run.Status),
		run.FrameCount, run.CandidateCount, run.MatchedCount,
		run.FileSize, run.MediaDuration,
		run.Attempt, run.MaxAttempts, run.ErrorMessage,
		run.CreatedAt, run.UpdatedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *RunRepository) Update(ctx context.Context, run *entity.PipelineRun) error {
	query := `
		UPDATE pipeline_runs SET
			status=$2, frame_count=$3, candidate_count=$4, matched_count=$5,
			media_duration=$6, attempt=$7, error_message=$8,
			updated_at=$9, completed_at=$10
		WHERE id=$1`

	_, err := r.pool.Exec(ctx, query,
		run.ID, string(run.Status), run.FrameCount, run.CandidateCount,
		run.MatchedCount, run.MediaDuration, run.Attempt, run.ErrorMessage,
		run.UpdatedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

func (r *RunRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.PipelineRun, error) {
	query := `
		SELECT id, user_id, media_key, media_kind, status, frame_count,
			candidate_count, matched_count, file_size, media_duration,
			attempt, max_attempts, error_message, created_at, updated_at, completed_at
		FROM pipeline_runs WHERE id=$1`

	run := &entity.PipelineRun{}
	var kind, status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.UserID, &run.MediaKey, &kind, &status,
		&run.FrameCount, &run.CandidateCount, &run.MatchedCount,
		&run.FileSize, &run.MediaDuration,
		&run.Attempt, &run.MaxAttempts, &run.ErrorMessage,
		&run.CreatedAt, &run.UpdatedAt, &run.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find run by id: %w", err)
	}
	run.MediaKind = entity.MediaKind(kind)
	run.Status = entity.RunStatus(status)
	return run, nil
}

// SaveResults stores the per-candidate outcomes for a run. Matches go
// in as JSONB; the front-end query path reads them back verbatim. The
// save is one transaction and upserts on the candidate key, so a
// redelivered message that re-runs the pipeline overwrites rows from an
// earlier partial attempt instead of tripping the unique constraint.
func (r *RunRepository) SaveResults(ctx context.Context, runID uuid.UUID, results []entity.CandidateResult) error {
	query := `
		INSERT INTO candidate_results (
			run_id, frame_index, candidate_index, box, crop_key,
			status, status_info, published_url, matches
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (run_id, frame_index, candidate_index) DO UPDATE SET
			box=EXCLUDED.box,
			crop_key=EXCLUDED.crop_key,
			status=EXCLUDED.status,
			status_info=EXCLUDED.status_info,
			published_url=EXCLUDED.published_url,
			matches=EXCLUDED.matches`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save results: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, res := range results {
		boxJSON, err := json.Marshal(res.Box)
		if err != nil {
			return fmt.Errorf("marshal box: %w", err)
		}
		matchesJSON, err := json.Marshal(res.Matches)
		if err != nil {
			return fmt.Errorf("marshal matches: %w", err)
		}

		var publishedURL string
		if res.Published != nil {
			publishedURL = res.Published.URL
		}

		_, err = tx.Exec(ctx, query,
			runID, res.FrameIndex, res.Index, boxJSON, res.CropKey,
			string(res.Status), res.StatusInfo, publishedURL, matchesJSON,
		)
		if err != nil {
			return fmt.Errorf("insert candidate result (frame %d, candidate %d): %w",
				res.FrameIndex, res.Index, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save results: %w", err)
	}
	return nil
}

type CheckoutRepository struct {
	pool *pgxpool.Pool
}

func NewCheckoutRepository(pool *pgxpool.Pool) *CheckoutRepository {
	return &CheckoutRepository{pool: pool}
}

func (r *CheckoutRepository) SaveSession(ctx context.Context, runID uuid.UUID, session *entity.CheckoutSession) error {
	query := `
		INSERT INTO checkout_sessions (
			id, run_id, link, credential_ref, state, failure_reason,
			started_at, finished_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			state=EXCLUDED.state,
			failure_reason=EXCLUDED.failure_reason,
			finished_at=EXCLUDED.finished_at`

	_, err := r.pool.Exec(ctx, query,
		session.ID, runID, session.Link, session.CredentialRef,
		string(session.State), session.FailureReason,
		session.StartedAt, session.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save checkout session: %w", err)
	}
	return nil
}
