package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yash6967/BuyWhatYouSee-V01/internal/domain/entity"
	"golang.org/x/time/rate"
)

const maxMatches = 5

// Client runs Google Lens searches through SerpApi. Results keep the
// provider's relevance order; the client truncates to the top five and
// classifies destination domains, nothing more.
type Client struct {
	baseURL       string
	apiKey        string
	country       string
	retailDomains []string
	http          *http.Client
	limiter       *rate.Limiter
}

type Config struct {
	BaseURL       string
	APIKey        string
	Country       string
	RetailDomains []string
	Timeout       time.Duration
	RatePerSec    float64
}

func NewClient(cfg Config) *Client {
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 1
	}
	return &Client{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		country:       cfg.Country,
		retailDomains: cfg.RetailDomains,
		http:          &http.Client{Timeout: cfg.Timeout},
		limiter:       rate.NewLimiter(rate.Limit(perSec), 1),
	}
}

type searchResponse struct {
	VisualMatches []struct {
		Title string `json:"title"`
		Link  string `json:"link"`
	} `json:"visual_matches"`
}

func (c *Client) Resolve(ctx context.Context, imageURL string) ([]entity.Match, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &entity.SearchUnavailableError{Reason: err.Error()}
	}

	params := url.Values{}
	params.Set("engine", "google_lens")
	params.Set("country", c.country)
	params.Set("url", imageURL)
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, &entity.SearchUnavailableError{Reason: fmt.Sprintf("build request: %v", err)}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &entity.SearchUnavailableError{Reason: fmt.Sprintf("search request: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &entity.SearchUnavailableError{
			Reason: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
		}
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &entity.SearchUnavailableError{Reason: fmt.Sprintf("decode response: %v", err)}
	}

	// A body without visual_matches is a valid empty result, not a failure.
	matches := make([]entity.Match, 0, maxMatches)
	for i, vm := range parsed.VisualMatches {
		if i >= maxMatches {
			break
		}
		matches = append(matches, entity.Match{
			Rank:   i + 1,
			Title:  vm.Title,
			Link:   vm.Link,
			Domain: c.classify(vm.Link),
		})
	}
	return matches, nil
}

func (c *Client) classify(link string) entity.MatchDomain {
	for _, domain := range c.retailDomains {
		if strings.Contains(link, domain) {
			return entity.MatchDomainRetail
		}
	}
	return entity.MatchDomainOther
}
