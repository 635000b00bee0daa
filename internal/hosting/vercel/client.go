// Package vercel implements the hosting capability interfaces against the Vercel REST API.
package vercel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"go_sitegen/internal/hosting"
)

const (
	defaultAPIBase = "https://api.vercel.com"
	requestTimeout = 30 * time.Second
)

var (
	_ hosting.Provider             = (*Client)(nil)
	_ hosting.DomainConfigProvider = (*Client)(nil)
)

// Config holds the client settings
type Config struct {
	APIBase        string
	Token          string
	TeamID         string // optional team scope
	RequestsPerSec float64
	Burst          int
	HTTPClient     *http.Client
}

// Client talks to the Vercel API. All calls share one rate limiter.
type Client struct {
	apiBase string
	token   string
	teamID  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new Vercel client
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = defaultAPIBase
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: requestTimeout}
	}
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		apiBase: base,
		token:   cfg.Token,
		teamID:  cfg.TeamID,
		client:  hc,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// errorEnvelope is Vercel's error body
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type deploymentResponse struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	ReadyState string `json:"readyState"`
}

// UploadFile stores content under its SHA-1 digest
func (c *Client) UploadFile(ctx context.Context, sha string, content []byte) error {
	headers := http.Header{}
	headers.Set("Content-Type", "application/octet-stream")
	headers.Set("x-vercel-digest", sha)

	return c.do(ctx, http.MethodPost, "/v2/files", headers, bytes.NewReader(content), int64(len(content)), nil)
}

// CreateDeployment creates a production deployment from already uploaded files
func (c *Client) CreateDeployment(ctx context.Context, req hosting.CreateDeploymentRequest) (*hosting.Deployment, error) {
	payload := map[string]interface{}{
		"name":   req.Name,
		"files":  req.Files,
		"target": "production",
	}
	if req.Framework != "" {
		payload["projectSettings"] = map[string]interface{}{"framework": req.Framework}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")

	var resp deploymentResponse
	if err := c.do(ctx, http.MethodPost, "/v13/deployments", headers, bytes.NewReader(body), int64(len(body)), &resp); err != nil {
		return nil, err
	}
	return toDeployment(resp)
}

// GetDeployment returns the current state of a deployment
func (c *Client) GetDeployment(ctx context.Context, deploymentID string) (*hosting.Deployment, error) {
	var resp deploymentResponse
	path := "/v13/deployments/" + url.PathEscape(deploymentID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, 0, &resp); err != nil {
		return nil, err
	}
	return toDeployment(resp)
}

// AssignAlias binds alias to the deployment
func (c *Client) AssignAlias(ctx context.Context, deploymentID, alias string) error {
	body, err := json.Marshal(map[string]string{"alias": alias})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")

	path := "/v2/deployments/" + url.PathEscape(deploymentID) + "/aliases"
	return c.do(ctx, http.MethodPost, path, headers, bytes.NewReader(body), int64(len(body)), nil)
}

// GetDomainConfig reports whether DNS points at the platform and the domain is verified
func (c *Client) GetDomainConfig(ctx context.Context, fqdn string) (*hosting.DomainConfig, error) {
	var cfg struct {
		Misconfigured bool `json:"misconfigured"`
	}
	if err := c.do(ctx, http.MethodGet, "/v6/domains/"+url.PathEscape(fqdn)+"/config", nil, nil, 0, &cfg); err != nil {
		return nil, err
	}

	var info struct {
		Domain struct {
			Verified bool `json:"verified"`
		} `json:"domain"`
	}
	err := c.do(ctx, http.MethodGet, "/v5/domains/"+url.PathEscape(fqdn), nil, nil, 0, &info)
	var apiErr *hosting.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		// not yet registered with the provider
		info.Domain.Verified = false
	case err != nil:
		return nil, err
	}

	return &hosting.DomainConfig{
		Configured: !cfg.Misconfigured,
		Verified:   info.Domain.Verified,
	}, nil
}

// do sends one request. Non-2xx answers become *hosting.APIError.
func (c *Client) do(ctx context.Context, method, path string, headers http.Header, body io.Reader, size int64, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// the limiter refuses waits that would outlive the deadline
		return fmt.Errorf("rate limit wait: %w", context.DeadlineExceeded)
	}

	u := c.apiBase + path
	if c.teamID != "" {
		u += "?teamId=" + url.QueryEscape(c.teamID)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.ContentLength = size
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &hosting.APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var env errorEnvelope
		if json.Unmarshal(respBody, &env) == nil && env.Error.Message != "" {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func toDeployment(resp deploymentResponse) (*hosting.Deployment, error) {
	state, err := hosting.ParseReadyState(resp.ReadyState)
	if err != nil {
		return nil, err
	}
	u := resp.URL
	if u != "" && !strings.Contains(u, "://") {
		u = "https://" + u
	}
	return &hosting.Deployment{ID: resp.ID, URL: u, ReadyState: state}, nil
}
