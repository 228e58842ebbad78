package ffmpeg

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/yash6967/BuyWhatYouSee-V01/internal/domain/entity"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/domain/port"
	"go.uber.org/zap"
)

// Sampler extracts every frameSkip-th frame from a video via ffmpeg,
// or passes a single image through as a one-frame sequence.
type Sampler struct {
	format string
	logger *zap.Logger
}

func NewSampler(format string, logger *zap.Logger) *Sampler {
	return &Sampler{format: format, logger: logger}
}

func (s *Sampler) Sample(ctx context.Context, mediaPath, outputDir string, kind entity.MediaKind, frameSkip int) (*port.FrameSampleResult, error) {
	if frameSkip <= 0 {
		return nil, fmt.Errorf("frame skip must be positive, got %d", frameSkip)
	}

	if kind == entity.MediaKindImage {
		return s.sampleImage(mediaPath)
	}
	return s.sampleVideo(ctx, mediaPath, outputDir, frameSkip)
}

func (s *Sampler) sampleImage(imagePath string) (*port.FrameSampleResult, error) {
	width, height, err := decodeDimensions(imagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", entity.ErrMediaUnreadable, err)
	}

	return &port.FrameSampleResult{
		Frames: []entity.Frame{{
			Index:  0,
			Offset: 0,
			Path:   imagePath,
			Width:  width,
			Height: height,
		}},
		TotalFrames: 1,
	}, nil
}

func (s *Sampler) sampleVideo(ctx context.Context, videoPath, outputDir string, frameSkip int) (*port.FrameSampleResult, error) {
	total, duration, err := s.probe(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrMediaUnreadable, err)
	}
	if total == 0 {
		// A zero-frame source is empty, not broken.
		return &port.FrameSampleResult{TotalFrames: 0, MediaDuration: duration}, nil
	}

	framePattern := filepath.Join(outputDir, fmt.Sprintf("frame_%%05d.%s", s.format))
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", videoPath,
		"-vf", fmt.Sprintf(`select=not(mod(n\,%d))`, frameSkip),
		"-vsync", "vfr",
		"-y",
		framePattern,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg: %v, output: %s", entity.ErrMediaUnreadable, err, string(output))
	}

	paths, err := filepath.Glob(filepath.Join(outputDir, fmt.Sprintf("frame_*.%s", s.format)))
	if err != nil {
		return nil, fmt.Errorf("glob frames: %w", err)
	}
	sort.Strings(paths)

	offsets := SampleOffsets(total, frameSkip)
	frames := make([]entity.Frame, 0, len(paths))
	for i, p := range paths {
		width, height, err := decodeDimensions(p)
		if err != nil {
			return nil, fmt.Errorf("decode frame %s: %w", p, err)
		}
		offset := i * frameSkip
		if i < len(offsets) {
			offset = offsets[i]
		}
		frames = append(frames, entity.Frame{
			Index:  i,
			Offset: offset,
			Path:   p,
			Width:  width,
			Height: height,
		})
	}

	s.logger.Info("frames sampled",
		zap.Int("count", len(frames)),
		zap.Int("total_frames", total),
		zap.Int("frame_skip", frameSkip),
		zap.Float64("media_duration", duration),
	)

	return &port.FrameSampleResult{
		Frames:        frames,
		TotalFrames:   total,
		MediaDuration: duration,
	}, nil
}

// SampleOffsets returns the source frame numbers a skip-k sampling of a
// total-frame stream lands on: 0, k, 2k, ... — exactly ceil(total/k)
// entries, never past end of stream.
func SampleOffsets(total, frameSkip int) []int {
	if total <= 0 || frameSkip <= 0 {
		return nil
	}
	offsets := make([]int, 0, (total+frameSkip-1)/frameSkip)
	for off := 0; off < total; off += frameSkip {
		offsets = append(offsets, off)
	}
	return offsets
}

func (s *Sampler) probe(ctx context.Context, videoPath string) (int, float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=nb_read_packets:format=duration",
		"-of", "default=noprint_wrappers=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe: %w", err)
	}

	var total int
	var duration float64
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "nb_read_packets="):
			total, _ = strconv.Atoi(strings.TrimPrefix(line, "nb_read_packets="))
		case strings.HasPrefix(line, "duration="):
			duration, _ = strconv.ParseFloat(strings.TrimPrefix(line, "duration="), 64)
		}
	}
	return total, duration, nil
}

func decodeDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
