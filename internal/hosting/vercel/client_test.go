package vercel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go_sitegen/internal/hosting"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIBase: srv.URL, Token: "tok", TeamID: "team_1"})
}

func TestUploadFile(t *testing.T) {
	var got []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/files", r.URL.Path)
		assert.Equal(t, "team_1", r.URL.Query().Get("teamId"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "abc123", r.Header.Get("x-vercel-digest"))
		assert.Equal(t, int64(5), r.ContentLength)
		got, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"urls":[]}`))
	})

	require.NoError(t, c.UploadFile(context.Background(), "abc123", []byte("hello")))
	assert.Equal(t, "hello", string(got))
}

func TestCreateDeployment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v13/deployments", r.URL.Path)
		var body struct {
			Name            string                 `json:"name"`
			Target          string                 `json:"target"`
			Files           []hosting.ManifestFile `json:"files"`
			ProjectSettings struct {
				Framework string `json:"framework"`
			} `json:"projectSettings"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "acme", body.Name)
		assert.Equal(t, "production", body.Target)
		assert.Equal(t, "nextjs", body.ProjectSettings.Framework)
		if assert.Len(t, body.Files, 1) {
			assert.Equal(t, hosting.ManifestFile{File: "package.json", SHA: "s1", Size: 12}, body.Files[0])
		}

		w.Write([]byte(`{"id":"dpl_1","url":"acme-abc.vercel.app","readyState":"INITIALIZING"}`))
	})

	d, err := c.CreateDeployment(context.Background(), hosting.CreateDeploymentRequest{
		Name:      "acme",
		Framework: "nextjs",
		Files:     []hosting.ManifestFile{{File: "package.json", SHA: "s1", Size: 12}},
	})
	require.NoError(t, err)
	assert.Equal(t, "dpl_1", d.ID)
	assert.Equal(t, "https://acme-abc.vercel.app", d.URL)
	assert.Equal(t, hosting.ReadyStateQueued, d.ReadyState)
}

func TestCreateDeployment_ProviderError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"missing_files","message":"Missing files"}}`))
	})

	_, err := c.CreateDeployment(context.Background(), hosting.CreateDeploymentRequest{Name: "acme"})
	var apiErr *hosting.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "missing_files", apiErr.Code)
	assert.Equal(t, "Missing files", apiErr.Message)
	assert.False(t, hosting.IsRetryable(err))
}

func TestGetDeployment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v13/deployments/dpl_9", r.URL.Path)
		w.Write([]byte(`{"id":"dpl_9","url":"x.vercel.app","readyState":"READY"}`))
	})

	d, err := c.GetDeployment(context.Background(), "dpl_9")
	require.NoError(t, err)
	assert.Equal(t, hosting.ReadyStateReady, d.ReadyState)
}

func TestGetDeployment_UnknownState(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"dpl_9","readyState":"WARMING"}`))
	})

	_, err := c.GetDeployment(context.Background(), "dpl_9")
	assert.Error(t, err)
}

func TestAssignAlias(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/deployments/dpl_1/aliases", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "acme.platform.example", body["alias"])
		w.Write([]byte(`{"uid":"al_1","alias":"acme.platform.example"}`))
	})

	require.NoError(t, c.AssignAlias(context.Background(), "dpl_1", "acme.platform.example"))
}

func TestGetDomainConfig(t *testing.T) {
	tests := []struct {
		name          string
		misconfigured bool
		domainStatus  int
		verified      bool
		want          hosting.DomainConfig
	}{
		{"nothing yet", true, http.StatusNotFound, false, hosting.DomainConfig{}},
		{"dns only", false, http.StatusOK, false, hosting.DomainConfig{Configured: true}},
		{"done", false, http.StatusOK, true, hosting.DomainConfig{Configured: true, Verified: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/v6/domains/shop.example.com/config":
					json.NewEncoder(w).Encode(map[string]bool{"misconfigured": tt.misconfigured})
				case "/v5/domains/shop.example.com":
					w.WriteHeader(tt.domainStatus)
					if tt.domainStatus == http.StatusOK {
						json.NewEncoder(w).Encode(map[string]interface{}{"domain": map[string]bool{"verified": tt.verified}})
					} else {
						w.Write([]byte(`{"error":{"code":"not_found","message":"Domain not found"}}`))
					}
				default:
					t.Errorf("unexpected path %s", r.URL.Path)
				}
			})

			got, err := c.GetDomainConfig(context.Background(), "shop.example.com")
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIBase: srv.URL, Token: "tok", RequestsPerSec: 20, Burst: 1})

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, c.UploadFile(context.Background(), "s", []byte("x")))
	}
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestRateLimiter_ContextCanceled(t *testing.T) {
	c := NewClient(Config{APIBase: "http://127.0.0.1:1", Token: "tok", RequestsPerSec: 0.001, Burst: 1})
	c.limiter.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := c.UploadFile(ctx, "s", []byte("x"))
	assert.Error(t, err)
	assert.False(t, hosting.IsRetryable(err))
}
