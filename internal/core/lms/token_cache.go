package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/markdave123-py/studybuddy/internal/core"
	"github.com/markdave123-py/studybuddy/internal/logging"
)

// DefaultTokenLifetime applies when the login response carries no expires_in.
const DefaultTokenLifetime = 23 * time.Hour

// exchangeTimeout bounds one login round trip, independent of the caller that started it.
const exchangeTimeout = 30 * time.Second

// Credentials are the login parameters of the LMS service account.
type Credentials struct {
	LoginURL     string
	Email        string
	Password     string
	ClientID     string
	ClientSecret string
}

// TokenCache owns the LMS access token. Concurrent callers that find it
// missing or expired share a single credential exchange.
type TokenCache struct {
	creds  Credentials
	http   *http.Client
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	token *oauth2.Token

	group singleflight.Group
}

var _ oauth2.TokenSource = (*TokenCache)(nil)

func NewTokenCache(creds Credentials, logger *slog.Logger) *TokenCache {
	return &TokenCache{
		creds:  creds,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: logging.OrDefault(logger),
		now:    time.Now,
	}
}

type loginRequest struct {
	Backend      string            `json:"backend"`
	Email        string            `json:"email"`
	Password     string            `json:"password"`
	UTMParams    map[string]string `json:"utmParams"`
	ClientID     string            `json:"client-id"`
	ClientSecret string            `json:"client-secret"`
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Name         string `json:"name"`
	Email        string `json:"email"`
}

// EnsureToken returns the cached token, exchanging credentials first when it is
// missing or expired. If the exchange fails the previous token is returned when
// there is one; with no token at all the result is ErrCredential.
func (c *TokenCache) EnsureToken(ctx context.Context) (string, error) {
	current := c.current()
	if c.valid(current) {
		return current.AccessToken, nil
	}

	if err := c.refreshShared(ctx, false); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		c.logger.Error("token exchange failed", "error", err)
		if current != nil && current.AccessToken != "" {
			return current.AccessToken, nil
		}
		return "", fmt.Errorf("%w: %v", core.ErrCredential, err)
	}
	tok := c.current()
	if tok == nil {
		return "", core.ErrCredential
	}
	return tok.AccessToken, nil
}

// Token implements oauth2.TokenSource.
func (c *TokenCache) Token() (*oauth2.Token, error) {
	if _, err := c.EnsureToken(context.Background()); err != nil {
		return nil, err
	}
	return c.current(), nil
}

// Refresh forces a credential exchange regardless of expiry.
func (c *TokenCache) Refresh(ctx context.Context) error {
	return c.refreshShared(ctx, true)
}

// Invalidate drops the cached token if it is still the one the LMS rejected,
// so the next EnsureToken logs in again.
func (c *TokenCache) Invalidate(rejected string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != nil && c.token.AccessToken == rejected {
		c.token = nil
		c.logger.Warn("lms token rejected, cleared")
	}
}

func (c *TokenCache) valid(tok *oauth2.Token) bool {
	return tok != nil && tok.AccessToken != "" && c.now().Before(tok.Expiry)
}

func (c *TokenCache) current() *oauth2.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil {
		return nil
	}
	t := *c.token
	return &t
}

// refreshShared runs at most one exchange at a time. The exchange is detached
// from the caller that started it, so one caller giving up does not fail the
// others waiting on the same flight.
func (c *TokenCache) refreshShared(ctx context.Context, force bool) error {
	ch := c.group.DoChan("exchange", func() (any, error) {
		// another flight may have finished since the caller looked
		if !force && c.valid(c.current()) {
			return nil, nil
		}

		exCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exchangeTimeout)
		defer cancel()
		tok, err := c.exchange(exCtx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.token = tok
		c.mu.Unlock()
		c.logger.Info("lms token refreshed", "expires_at", tok.Expiry.Format(time.RFC3339))
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (c *TokenCache) exchange(ctx context.Context) (*oauth2.Token, error) {
	body, err := json.Marshal(loginRequest{
		Backend:      "email",
		Email:        c.creds.Email,
		Password:     c.creds.Password,
		UTMParams:    map[string]string{"marketing_url_structure_slug": "newton-web-main-login-form-email"},
		ClientID:     c.creds.ClientID,
		ClientSecret: c.creds.ClientSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.creds.LoginURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("client-id", c.creds.ClientID)
	req.Header.Set("client-secret", c.creds.ClientSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("login failed with status %d: %s", resp.StatusCode, msg)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	if lr.AccessToken == "" {
		return nil, fmt.Errorf("no access token in login response")
	}

	lifetime := DefaultTokenLifetime
	if lr.ExpiresIn > 0 {
		lifetime = time.Duration(lr.ExpiresIn) * time.Second
	}

	return &oauth2.Token{
		AccessToken:  lr.AccessToken,
		RefreshToken: lr.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       c.now().Add(lifetime),
	}, nil
}
