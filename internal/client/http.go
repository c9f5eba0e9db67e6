package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/alfredjeanlab/switchboard/internal/model"
)

// HTTPClient implements SwitchboardClient using the HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Switch registry ---

func releasesPath(switchName string) string {
	return "/v1/switches/" + url.PathEscape(switchName) + "/releases"
}

func (c *HTTPClient) ListSwitches(ctx context.Context) ([]string, error) {
	var resp struct {
		Switches []string `json:"switches"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/switches", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Switches, nil
}

func (c *HTTPClient) ListReleases(ctx context.Context, switchName string) (map[string]model.ReleaseConfig, error) {
	var resp struct {
		Releases map[string]model.ReleaseConfig `json:"releases"`
	}
	if err := c.doJSON(ctx, http.MethodGet, releasesPath(switchName), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Releases, nil
}

func (c *HTTPClient) GetRelease(ctx context.Context, switchName, release string) (*model.Release, error) {
	var cfg model.ReleaseConfig
	path := releasesPath(switchName) + "/" + url.PathEscape(release)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &cfg); err != nil {
		return nil, err
	}
	return &model.Release{Release: model.NormalizeRelease(release), ReleaseConfig: cfg}, nil
}

func (c *HTTPClient) CreateRelease(ctx context.Context, switchName string, rel model.Release) (*model.Release, error) {
	var created model.Release
	if err := c.doJSON(ctx, http.MethodPost, releasesPath(switchName), rel, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *HTTPClient) UpdateRelease(ctx context.Context, switchName string, rel model.Release) (*model.Release, error) {
	var updated model.Release
	path := releasesPath(switchName) + "/" + url.PathEscape(rel.Release)
	if err := c.doJSON(ctx, http.MethodPut, path, rel.ReleaseConfig, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// --- Defect log ---

func (c *HTTPClient) RecordDefects(ctx context.Context, date string, defects []model.DefectItem) (string, error) {
	body := struct {
		Date    string             `json:"date"`
		Defects []model.DefectItem `json:"defects"`
	}{Date: date, Defects: defects}
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/defects", body, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (c *HTTPClient) GetDefectLog(ctx context.Context) (model.DefectLog, error) {
	var log model.DefectLog
	if err := c.doJSON(ctx, http.MethodGet, "/v1/defects", nil, &log); err != nil {
		return nil, err
	}
	return log, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// newRequest builds a request against the server with the auth header set.
func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// readAPIError turns an error response into an *APIError, preferring the
// server's {"error": ...} message over the raw body.
func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

// doJSON sends body (if any) as JSON and decodes the response into result
// (if non-nil).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return readAPIError(resp)
	}
	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
