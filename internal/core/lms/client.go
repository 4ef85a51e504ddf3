// Package lms talks to the learning-management system that owns the lectures.
package lms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/markdave123-py/studybuddy/internal/core"
	"github.com/markdave123-py/studybuddy/internal/logging"
	"github.com/markdave123-py/studybuddy/internal/models"
)

var _ core.LectureSource = (*Client)(nil)

// DefaultMaxAssetBytes caps a single downloaded asset.
const DefaultMaxAssetBytes = 200 << 20

// TokenProvider yields a bearer token for LMS calls. Invalidate is told about
// a token the LMS answered 401 to.
type TokenProvider interface {
	EnsureToken(ctx context.Context) (string, error)
	Invalidate(token string)
}

type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	tokens       TokenProvider
	listHTTP     *http.Client
	downloadHTTP *http.Client
	maxAsset     int64
	logger       *slog.Logger
}

func NewClient(baseURL, clientID, clientSecret string, tokens TokenProvider, logger *slog.Logger) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		tokens:       tokens,
		listHTTP:     &http.Client{Timeout: 15 * time.Second},
		downloadHTTP: &http.Client{Timeout: 60 * time.Second},
		maxAsset:     DefaultMaxAssetBytes,
		logger:       logging.OrDefault(logger),
	}
}

// WithMaxAssetBytes sets the download cap; n <= 0 keeps the default.
func (c *Client) WithMaxAssetBytes(n int64) *Client {
	if n > 0 {
		c.maxAsset = n
	}
	return c
}

type lectureList struct {
	Results []lecture `json:"results"`
}

type lecture struct {
	Hash           string `json:"hash"`
	Title          string `json:"title"`
	WhiteboardFile string `json:"whiteboard_file"`
	Course         *struct {
		Hash             string `json:"hash"`
		ShortDisplayName string `json:"short_display_name"`
	} `json:"course"`
}

// ListDocuments returns every past lecture of a course.
func (c *Client) ListDocuments(ctx context.Context, courseID string) ([]models.ExternalDocument, error) {
	u := fmt.Sprintf("%s/%s/lecture/all/?past=true&limit=500&offset=0", c.baseURL, url.PathEscape(courseID))

	resp, err := c.get(ctx, c.listHTTP, u, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var list lectureList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode lectures: %w", err)
	}

	out := make([]models.ExternalDocument, 0, len(list.Results))
	for _, l := range list.Results {
		doc := models.ExternalDocument{
			Hash:       l.Hash,
			Title:      l.Title,
			CourseID:   courseID,
			CourseName: "Unknown",
			AssetURL:   l.WhiteboardFile,
		}
		if l.Course != nil {
			if l.Course.Hash != "" {
				doc.CourseID = l.Course.Hash
			}
			if l.Course.ShortDisplayName != "" {
				doc.CourseName = l.Course.ShortDisplayName
			}
		}
		out = append(out, doc)
	}
	return out, nil
}

// DownloadAsset fetches the raw bytes of a lecture asset.
func (c *Client) DownloadAsset(ctx context.Context, assetURL string) ([]byte, string, error) {
	resp, err := c.get(ctx, c.downloadHTTP, assetURL, "*/*")
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxAsset+1))
	if err != nil {
		return nil, "", fmt.Errorf("read asset: %w", err)
	}
	if int64(len(data)) > c.maxAsset {
		return nil, "", fmt.Errorf("asset larger than %d bytes", c.maxAsset)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) get(ctx context.Context, hc *http.Client, u, accept string) (*http.Response, error) {
	token, err := c.tokens.EnsureToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, core.ErrCredential
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("client-id", c.clientID)
	req.Header.Set("client-secret", c.clientSecret)

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusUnauthorized {
			c.tokens.Invalidate(token)
			return nil, fmt.Errorf("%w: status %s", core.ErrCredential, resp.Status)
		}
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp, nil
}
