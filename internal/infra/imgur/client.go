package imgur

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
	"time"

	"github.com/yash6967/BuyWhatYouSee-V01/internal/domain/entity"
)

// Client uploads candidate crops to the Imgur image host. One attempt
// per call; each attempt creates a new hosted image.
type Client struct {
	baseURL  string
	clientID string
	http     *http.Client
}

func NewClient(baseURL, clientID string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  baseURL,
		clientID: clientID,
		http:     &http.Client{Timeout: timeout},
	}
}

type uploadResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Link  string `json:"link"`
		Error string `json:"error"`
	} `json:"data"`
}

func (c *Client) Upload(ctx context.Context, cropPath string) (*entity.PublishedRef, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	file, err := os.Open(cropPath)
	if err != nil {
		return nil, &entity.PublishError{Reason: fmt.Sprintf("open crop: %v", err)}
	}
	defer file.Close()

	part, err := writer.CreateFormFile("image", filepath.Base(cropPath))
	if err != nil {
		return nil, &entity.PublishError{Reason: fmt.Sprintf("create form file: %v", err)}
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, &entity.PublishError{Reason: fmt.Sprintf("copy crop: %v", err)}
	}
	if err := writer.Close(); err != nil {
		return nil, &entity.PublishError{Reason: fmt.Sprintf("close multipart: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/3/image", body)
	if err != nil {
		return nil, &entity.PublishError{Reason: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Authorization", "Client-ID "+c.clientID)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &entity.PublishError{Reason: fmt.Sprintf("upload request: %v", err)}
	}
	defer resp.Body.Close()

	var parsed uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &entity.PublishError{Reason: fmt.Sprintf("malformed response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK || !parsed.Success {
		reason := parsed.Data.Error
		if reason == "" {
			reason = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, &entity.PublishError{Reason: reason}
	}
	if parsed.Data.Link == "" {
		return nil, &entity.PublishError{Reason: "response missing image link"}
	}

	return &entity.PublishedRef{
		URL:        parsed.Data.Link,
		UploadedAt: time.Now().UTC(),
	}, nil
}
