package itch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"itch-archiver/core/catalog"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxPages guards against a server that never returns an empty page.
const maxPages = 10000

// APIError is returned for non-success responses or responses carrying an
// "errors" array.
type APIError struct {
	StatusCode int
	Messages   []string
}

func (e *APIError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("api error (status %d): %s", e.StatusCode, strings.Join(e.Messages, "; "))
	}
	return fmt.Sprintf("api error: status %d", e.StatusCode)
}

// Upload is the wire shape of one upload.
type Upload struct {
	ID          int64    `json:"id"`
	Filename    string   `json:"filename"`
	DisplayName string   `json:"display_name"`
	Traits      []string `json:"traits"`
	MD5         string   `json:"md5"`
	MD5Hash     string   `json:"md5_hash"`
}

// Variant converts the wire shape into the catalog model.
func (u Upload) Variant() catalog.FileVariant {
	return catalog.FileVariant{
		ID:          u.ID,
		Filename:    u.Filename,
		DisplayName: u.DisplayName,
		Traits:      u.Traits,
		Digest:      catalog.Digest{Legacy: u.MD5, Hex: u.MD5Hash},
	}
}

type errorsEnvelope struct {
	Errors []string `json:"errors"`
}

type ownedKeysPage struct {
	OwnedKeys []catalog.Record `json:"owned_keys"`
	PerPage   int              `json:"per_page"`
	Page      int              `json:"page"`
}

type uploadsResponse struct {
	Uploads []Upload `json:"uploads"`
}

type sessionResponse struct {
	UUID string `json:"uuid"`
}

// Client talks to the storefront API.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a Client from configuration.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: time.Duration(timeout) * time.Second},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// OwnedKeys returns every purchase of the account behind token.
func (c *Client) OwnedKeys(ctx context.Context, token string) ([]catalog.Record, error) {
	var all []catalog.Record
	for page := 1; page <= maxPages; page++ {
		var resp ownedKeysPage
		q := url.Values{"page": {strconv.Itoa(page)}}
		if err := c.do(ctx, http.MethodGet, "/profile/owned-keys", q, token, &resp); err != nil {
			return nil, fmt.Errorf("failed to list owned keys (page %d): %w", page, err)
		}

		all = append(all, resp.OwnedKeys...)
		c.logger.Debug("Fetched owned keys page", zap.Int("page", page), zap.Int("count", len(resp.OwnedKeys)))

		if len(resp.OwnedKeys) == 0 || (resp.PerPage > 0 && len(resp.OwnedKeys) < resp.PerPage) {
			return all, nil
		}
	}
	return nil, fmt.Errorf("owned keys listing exceeded %d pages", maxPages)
}

// ListUploads returns the uploads of a title in listing order.
func (c *Client) ListUploads(ctx context.Context, token string, gameID, downloadKeyID int64) ([]catalog.FileVariant, error) {
	var resp uploadsResponse
	q := url.Values{"download_key_id": {strconv.FormatInt(downloadKeyID, 10)}}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/games/%d/uploads", gameID), q, token, &resp); err != nil {
		return nil, fmt.Errorf("failed to list uploads of game %d: %w", gameID, err)
	}

	variants := make([]catalog.FileVariant, 0, len(resp.Uploads))
	for _, u := range resp.Uploads {
		variants = append(variants, u.Variant())
	}
	return variants, nil
}

// NewDownloadSession obtains a one-time session id for a title.
func (c *Client) NewDownloadSession(ctx context.Context, token string, gameID int64) (string, error) {
	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/games/%d/download-sessions", gameID), nil, token, &resp); err != nil {
		return "", fmt.Errorf("failed to create download session for game %d: %w", gameID, err)
	}
	if resp.UUID == "" {
		return "", fmt.Errorf("download session for game %d has no uuid", gameID)
	}
	return resp.UUID, nil
}

// DownloadURL builds the signed download URL of an upload.
func (c *Client) DownloadURL(token string, uploadID, downloadKeyID int64, sessionID string) string {
	q := url.Values{
		"api_key":         {token},
		"download_key_id": {strconv.FormatInt(downloadKeyID, 10)},
		"uuid":            {sessionID},
	}
	return fmt.Sprintf("%s/uploads/%d/download?%s", c.baseURL, uploadID, q.Encode())
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, token string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env errorsEnvelope
	_ = json.Unmarshal(body, &env)

	if resp.StatusCode != http.StatusOK || len(env.Errors) > 0 {
		return &APIError{StatusCode: resp.StatusCode, Messages: env.Errors}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
