// Package hosting defines the capability interfaces of the external hosting
// and domain-configuration providers.
package hosting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ReadyState is the provider-side state of a deployment
type ReadyState string

const (
	ReadyStateQueued   ReadyState = "queued"
	ReadyStateBuilding ReadyState = "building"
	ReadyStateReady    ReadyState = "ready"
	ReadyStateError    ReadyState = "error"
	ReadyStateCanceled ReadyState = "canceled"
)

// ParseReadyState accepts provider spellings in any case
func ParseReadyState(s string) (ReadyState, error) {
	switch strings.ToUpper(s) {
	case "QUEUED", "INITIALIZING":
		return ReadyStateQueued, nil
	case "BUILDING":
		return ReadyStateBuilding, nil
	case "READY":
		return ReadyStateReady, nil
	case "ERROR":
		return ReadyStateError, nil
	case "CANCELED", "CANCELLED":
		return ReadyStateCanceled, nil
	}
	return "", fmt.Errorf("unknown ready state %q", s)
}

// IsTerminal reports whether the deployment will not change state again
func (r ReadyState) IsTerminal() bool {
	switch r {
	case ReadyStateReady, ReadyStateError, ReadyStateCanceled:
		return true
	case ReadyStateQueued, ReadyStateBuilding:
		return false
	}
	return false
}

// Deployment is the provider's view of one deployment
type Deployment struct {
	ID         string     `json:"deploymentId"`
	URL        string     `json:"url"`
	ReadyState ReadyState `json:"readyState"`
}

// ManifestFile is one entry of a deployment manifest
type ManifestFile struct {
	File string `json:"file"`
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
}

// CreateDeploymentRequest is the input of CreateDeployment
type CreateDeploymentRequest struct {
	Name      string
	Files     []ManifestFile
	Framework string
}

// DomainConfig reports DNS state of a hostname as seen by the provider
type DomainConfig struct {
	Configured bool `json:"configured"`
	Verified   bool `json:"verified"`
}

// FileUploader stores raw file content keyed by its digest
type FileUploader interface {
	UploadFile(ctx context.Context, sha string, content []byte) error
}

// Deployer creates deployments and reports their state
type Deployer interface {
	CreateDeployment(ctx context.Context, req CreateDeploymentRequest) (*Deployment, error)
	GetDeployment(ctx context.Context, deploymentID string) (*Deployment, error)
}

// AliasBinder points a hostname at a deployment
type AliasBinder interface {
	AssignAlias(ctx context.Context, deploymentID, alias string) error
}

// DomainConfigProvider answers whether a hostname's DNS is in place
type DomainConfigProvider interface {
	GetDomainConfig(ctx context.Context, fqdn string) (*DomainConfig, error)
}

// Provider is everything publishing needs from the hosting side
type Provider interface {
	FileUploader
	Deployer
	AliasBinder
}

// APIError is a non-2xx answer from a provider
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the same call may succeed
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsRetryable reports whether err is worth retrying.
// Transport failures are retryable; API errors only when Temporary.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}
