// Package recommender is the HTTP client of the external video recommendation service.
package recommender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/markdave123-py/studybuddy/internal/core"
	"github.com/markdave123-py/studybuddy/internal/models"
)

var _ core.Recommender = (*Client)(nil)

type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

type recommendResponse struct {
	Recommendations []models.VideoRecommendation `json:"recommendations"`
}

// NewClient builds a client with a per-call timeout. rps <= 0 disables throttling.
func NewClient(baseURL string, timeout time.Duration, rps float64) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Recommend posts one topic to /recommend. Every failure is wrapped in ErrRecommender.
func (c *Client) Recommend(ctx context.Context, in core.RecommendRequest) ([]models.VideoRecommendation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrRecommender, err)
	}

	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/recommend", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrRecommender, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: no response: %v", core.ErrRecommender, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", core.ErrRecommender, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out recommendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", core.ErrRecommender, err)
	}
	if out.Recommendations == nil {
		return []models.VideoRecommendation{}, nil
	}
	return out.Recommendations, nil
}
