package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/yash6967/BuyWhatYouSee-V01/internal/domain/entity"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/domain/port"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/infra/imaging"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ProcessMediaUseCase sequences the detection-to-match pipeline for one
// submitted media item: sample frames, detect and crop candidates,
// publish each crop, resolve visual matches, and report the aggregate.
// A candidate failing at any stage never touches its siblings.
type ProcessMediaUseCase struct {
	repo      port.RunRepository
	storage   port.MediaStorage
	sampler   port.FrameSampler
	detector  port.ObjectDetector
	host      port.ImageHost
	resolver  port.MatchResolver
	publisher port.ResultPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	cfg       ProcessMediaConfig
}

type ProcessMediaConfig struct {
	TempDir         string
	MaxRetries      int
	FrameSkip       int
	ConfThreshold   float64
	IoUThreshold    float64
	CandidateFanout int
}

func NewProcessMediaUseCase(
	repo port.RunRepository,
	storage port.MediaStorage,
	sampler port.FrameSampler,
	detector port.ObjectDetector,
	host port.ImageHost,
	resolver port.MatchResolver,
	publisher port.ResultPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ProcessMediaConfig,
) *ProcessMediaUseCase {
	if cfg.FrameSkip <= 0 {
		cfg.FrameSkip = 30
	}
	if cfg.CandidateFanout <= 0 {
		cfg.CandidateFanout = 1
	}
	return &ProcessMediaUseCase{
		repo:      repo,
		storage:   storage,
		sampler:   sampler,
		detector:  detector,
		host:      host,
		resolver:  resolver,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
	}
}

func (uc *ProcessMediaUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessMediaUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.MediaProcessMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}
	if !msg.MediaKind.Valid() {
		uc.logger.Error("unknown media kind", zap.String("media_kind", string(msg.MediaKind)))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unknown_media_kind: "+string(msg.MediaKind))
		return nil
	}

	span.SetAttributes(
		attribute.String("run.id", msg.RunID.String()),
		attribute.String("run.media_key", msg.MediaKey),
	)

	log := uc.logger.With(zap.String("run_id", msg.RunID.String()), zap.String("media_key", msg.MediaKey))

	run, err := uc.repo.FindByID(ctx, msg.RunID)
	if err != nil {
		run = entity.NewPipelineRun(msg.UserID, msg.MediaKey, msg.MediaKind, msg.FileSize, uc.cfg.MaxRetries)
		run.ID = msg.RunID
		if err := uc.repo.Create(ctx, run); err != nil {
			log.Error("failed to create run record", zap.Error(err))
			return fmt.Errorf("create run: %w", err)
		}
	}

	if !run.CanRetry() {
		log.Warn("run exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, run, msg, rawMsg, "max retries exceeded")
		return nil
	}

	run.MarkProcessing()
	if err := uc.repo.Update(ctx, run); err != nil {
		log.Error("failed to update run to PROCESSING", zap.Error(err))
		return fmt.Errorf("update run: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.runPipeline(ctx, run, msg, rawMsg, log); err != nil {
		return err
	}

	// runPipeline also returns nil for absorbed permanent failures;
	// those were already counted under "dlq".
	if run.Status == entity.RunStatusCompleted {
		metrics.RunsProcessedTotal.WithLabelValues("completed").Inc()
		metrics.StageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())
	}

	return nil
}

func (uc *ProcessMediaUseCase) runPipeline(
	ctx context.Context,
	run *entity.PipelineRun,
	msg entity.MediaProcessMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.cfg.TempDir, run.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download media
	dlStart := time.Now()
	dlCtx, spanDl := tracer.Start(ctx, "download_media")
	mediaPath := filepath.Join(workDir, "input"+mediaExt(msg.MediaKind))
	if err := uc.storage.DownloadMedia(dlCtx, msg.MediaKey, mediaPath); err != nil {
		spanDl.End()
		log.Error("failed to download media", zap.Error(err))
		return uc.handleRetryableFailure(ctx, run, msg, rawMsg, "download_media: "+err.Error(), log)
	}
	spanDl.End()
	metrics.StageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Sample frames
	smStart := time.Now()
	smCtx, spanSm := tracer.Start(ctx, "sample_frames")
	framesDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		spanSm.End()
		return fmt.Errorf("create frames dir: %w", err)
	}
	sampled, err := uc.sampler.Sample(smCtx, mediaPath, framesDir, msg.MediaKind, uc.cfg.FrameSkip)
	if err != nil {
		spanSm.End()
		if errors.Is(err, entity.ErrMediaUnreadable) {
			// Unreadable media will not get better on retry.
			log.Error("media unreadable", zap.Error(err))
			return uc.handlePermanentFailure(ctx, run, msg, rawMsg, "media_unreadable: "+err.Error())
		}
		log.Error("frame sampling failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, run, msg, rawMsg, "sample_frames: "+err.Error(), log)
	}
	spanSm.End()
	metrics.StageDuration.WithLabelValues("sample").Observe(time.Since(smStart).Seconds())
	metrics.FramesSampledTotal.Add(float64(len(sampled.Frames)))

	// Detect and crop per frame. A detector failure skips only that frame.
	exStart := time.Now()
	exCtx, spanEx := tracer.Start(ctx, "extract_candidates")
	scratchDir := filepath.Join(workDir, "crops")
	if err := os.MkdirAll(scratchDir, 0755); err != nil {
		spanEx.End()
		return fmt.Errorf("create scratch dir: %w", err)
	}

	var candidates []entity.Candidate
	var frameFailures []entity.FrameFailure
	for _, frame := range sampled.Frames {
		boxes, err := uc.detector.Detect(exCtx, frame.Path, uc.cfg.ConfThreshold, uc.cfg.IoUThreshold)
		if err != nil {
			derr := &entity.DetectionError{FrameIndex: frame.Index, Err: err}
			log.Warn("detection failed for frame", zap.Int("frame", frame.Index), zap.Error(err))
			frameFailures = append(frameFailures, entity.FrameFailure{
				FrameIndex: frame.Index,
				Error:      derr.Error(),
			})
			continue
		}
		crops, err := imaging.ExtractCandidates(frame, boxes, scratchDir)
		if err != nil {
			log.Warn("crop extraction failed for frame", zap.Int("frame", frame.Index), zap.Error(err))
			frameFailures = append(frameFailures, entity.FrameFailure{
				FrameIndex: frame.Index,
				Error:      "crop extraction failed: " + err.Error(),
			})
			continue
		}
		candidates = append(candidates, crops...)
	}
	spanEx.End()
	metrics.StageDuration.WithLabelValues("extract").Observe(time.Since(exStart).Seconds())

	// Publish and resolve each candidate independently. Results land in
	// an index-addressed slice so concurrency never reorders them.
	rsStart := time.Now()
	rsCtx, spanRs := tracer.Start(ctx, "resolve_candidates")
	results := make([]entity.CandidateResult, len(candidates))
	g, gctx := errgroup.WithContext(rsCtx)
	g.SetLimit(uc.cfg.CandidateFanout)
	for i, cand := range candidates {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = uc.resolveCandidate(gctx, run, cand, log)
			return nil
		})
	}
	_ = g.Wait()
	spanRs.End()
	metrics.StageDuration.WithLabelValues("resolve").Observe(time.Since(rsStart).Seconds())

	matchedCount := 0
	for _, res := range results {
		metrics.CandidatesTotal.WithLabelValues(string(res.Status)).Inc()
		if res.Status == entity.CandidateStatusMatched {
			matchedCount++
		}
	}

	if err := uc.repo.SaveResults(ctx, run.ID, results); err != nil {
		log.Error("failed to save candidate results", zap.Error(err))
		return uc.handleRetryableFailure(ctx, run, msg, rawMsg, "save_results: "+err.Error(), log)
	}

	run.MarkCompleted(len(sampled.Frames), len(candidates), matchedCount, sampled.MediaDuration)
	if err := uc.repo.Update(ctx, run); err != nil {
		log.Error("failed to update run to COMPLETED", zap.Error(err))
		return fmt.Errorf("update run completed: %w", err)
	}

	uc.publishResult(ctx, run, results, frameFailures, log)

	log.Info("run completed",
		zap.Int("frame_count", len(sampled.Frames)),
		zap.Int("candidate_count", len(candidates)),
		zap.Int("matched_count", matchedCount),
		zap.Int("frame_failures", len(frameFailures)),
		zap.Float64("duration_secs", sampled.MediaDuration),
	)

	return nil
}

// resolveCandidate runs the publish and search stages for one
// candidate. Every failure is converted into the candidate's own
// status; nothing escapes to the caller.
func (uc *ProcessMediaUseCase) resolveCandidate(
	ctx context.Context,
	run *entity.PipelineRun,
	cand entity.Candidate,
	log *zap.Logger,
) entity.CandidateResult {
	result := entity.CandidateResult{
		FrameIndex: cand.FrameIndex,
		Index:      cand.Index,
		Box:        cand.Box,
	}

	clog := log.With(zap.Int("frame", cand.FrameIndex), zap.Int("candidate", cand.Index))

	// Keep a copy of the crop in object storage so the front-end can
	// render it after the scratch dir is gone. Best effort.
	cropKey := fmt.Sprintf("%s/%s/crop_f%d_c%d.png", run.UserID, run.ID, cand.FrameIndex, cand.Index)
	if f, err := os.Open(cand.CropPath); err != nil {
		clog.Warn("crop artifact open failed", zap.Error(err))
	} else {
		if stat, err := f.Stat(); err != nil {
			clog.Warn("crop artifact stat failed", zap.Error(err))
		} else if err := uc.storage.UploadCrop(ctx, cropKey, f, stat.Size()); err != nil {
			clog.Warn("crop artifact upload failed", zap.Error(err))
		} else {
			result.CropKey = cropKey
		}
		f.Close()
	}

	ref, err := uc.host.Upload(ctx, cand.CropPath)
	if err != nil {
		var perr *entity.PublishError
		if errors.As(err, &perr) {
			result.Status = entity.CandidateStatusPublishFailed
			result.StatusInfo = perr.Reason
		} else {
			result.Status = entity.CandidateStatusPublishFailed
			result.StatusInfo = err.Error()
		}
		clog.Warn("publish failed", zap.String("reason", result.StatusInfo))
		return result
	}
	result.Published = ref

	matches, err := uc.resolver.Resolve(ctx, ref.URL)
	if err != nil {
		var serr *entity.SearchUnavailableError
		if errors.As(err, &serr) {
			result.StatusInfo = serr.Reason
		} else {
			result.StatusInfo = err.Error()
		}
		result.Status = entity.CandidateStatusSearchUnavailable
		clog.Warn("visual search unavailable", zap.String("reason", result.StatusInfo))
		return result
	}

	if len(matches) == 0 {
		result.Status = entity.CandidateStatusNoMatches
		return result
	}

	result.Status = entity.CandidateStatusMatched
	result.Matches = matches
	return result
}

func (uc *ProcessMediaUseCase) handleRetryableFailure(
	ctx context.Context,
	run *entity.PipelineRun,
	msg entity.MediaProcessMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	run.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, run)

	if !run.CanRetry() {
		return uc.handlePermanentFailure(ctx, run, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(run.Attempt)).Inc()
	uc.publishResult(ctx, run, nil, nil, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", run.Attempt, run.MaxAttempts, errMsg)
}

func (uc *ProcessMediaUseCase) handlePermanentFailure(
	ctx context.Context,
	run *entity.PipelineRun,
	msg entity.MediaProcessMessage,
	rawMsg []byte,
	errMsg string,
) error {
	run.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, run)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishResult(ctx, run, nil, nil, uc.logger)

	metrics.RunsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, run.ID.String(), msg.MediaKey, errMsg)
	}

	return nil
}

func (uc *ProcessMediaUseCase) publishResult(
	ctx context.Context,
	run *entity.PipelineRun,
	results []entity.CandidateResult,
	frameFailures []entity.FrameFailure,
	log *zap.Logger,
) {
	resultMsg := entity.MediaResultMessage{
		RunID:         run.ID,
		UserID:        run.UserID,
		Status:        run.Status,
		MediaKey:      run.MediaKey,
		MediaKind:     run.MediaKind,
		FrameCount:    run.FrameCount,
		Duration:      run.MediaDuration,
		Candidates:    results,
		FrameFailures: frameFailures,
		ErrorMessage:  run.ErrorMessage,
		Attempt:       run.Attempt,
		MaxAttempts:   run.MaxAttempts,
	}
	data, _ := json.Marshal(resultMsg)
	if err := uc.publisher.PublishResult(ctx, data); err != nil {
		log.Error("failed to publish result", zap.Error(err))
	}
}

func mediaExt(kind entity.MediaKind) string {
	if kind == entity.MediaKindImage {
		return ".png"
	}
	return ".mp4"
}
