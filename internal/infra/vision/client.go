package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/yash6967/BuyWhatYouSee-V01/internal/domain/entity"
	"go.uber.org/zap"
)

// Client talks to the object-detection service. The model is a black
// box behind an HTTP endpoint: multipart image in, JSON box list out.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type detectResponse struct {
	Detections []entity.BoundingBox `json:"detections"`
}

func (c *Client) Detect(ctx context.Context, imagePath string, confThresh, iouThresh float64) ([]entity.BoundingBox, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	file, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("open frame: %w", err)
	}
	defer file.Close()

	part, err := writer.CreateFormFile("image", filepath.Base(imagePath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy frame: %w", err)
	}
	_ = writer.WriteField("conf_thresh", strconv.FormatFloat(confThresh, 'f', -1, 64))
	_ = writer.WriteField("iou_thresh", strconv.FormatFloat(iouThresh, 'f', -1, 64))
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detect returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode detect response: %w", err)
	}

	c.logger.Debug("detection done",
		zap.String("frame", filepath.Base(imagePath)),
		zap.Int("boxes", len(parsed.Detections)),
	)

	return parsed.Detections, nil
}
