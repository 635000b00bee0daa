// Package hostingtest provides an in-memory hosting provider for tests.
package hostingtest

import (
	"context"
	"fmt"
	"sync"

	"go_sitegen/internal/hosting"
)

var (
	_ hosting.Provider             = (*Fake)(nil)
	_ hosting.DomainConfigProvider = (*Fake)(nil)
)

// Fake records every call. Hooks, when set, may fail or block a call.
type Fake struct {
	mu sync.Mutex

	Blobs          map[string][]byte
	UploadCalls    int
	uploadAttempts map[string]int
	Deployments    []hosting.CreateDeploymentRequest
	Aliases        map[string]string // alias -> deployment id
	StatusCalls    int
	DomainCalls    int

	// States returned by GetDeployment, per deployment id; the last one repeats
	States        map[string][]hosting.ReadyState
	InitialState  hosting.ReadyState
	DomainConfigs map[string]hosting.DomainConfig

	OnUpload func(ctx context.Context, sha string, attempt int) error
	OnCreate func(ctx context.Context, req hosting.CreateDeploymentRequest) error
	OnAlias  func(ctx context.Context, deploymentID, alias string) error
	OnDomain func(ctx context.Context, fqdn string) error

	nextID int
}

// New returns an empty fake whose deployments start queued
func New() *Fake {
	return &Fake{
		Blobs:          make(map[string][]byte),
		uploadAttempts: make(map[string]int),
		Aliases:        make(map[string]string),
		States:         make(map[string][]hosting.ReadyState),
		InitialState:   hosting.ReadyStateQueued,
		DomainConfigs:  make(map[string]hosting.DomainConfig),
	}
}

// UploadFile implements hosting.FileUploader
func (f *Fake) UploadFile(ctx context.Context, sha string, content []byte) error {
	f.mu.Lock()
	f.UploadCalls++
	f.uploadAttempts[sha]++
	attempt := f.uploadAttempts[sha]
	hook := f.OnUpload
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, sha, attempt); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Blobs[sha] = append([]byte(nil), content...)
	return nil
}

// CreateDeployment implements hosting.Deployer
func (f *Fake) CreateDeployment(ctx context.Context, req hosting.CreateDeploymentRequest) (*hosting.Deployment, error) {
	if f.OnCreate != nil {
		if err := f.OnCreate(ctx, req); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range req.Files {
		if _, ok := f.Blobs[m.SHA]; !ok {
			return nil, &hosting.APIError{StatusCode: 400, Code: "missing_files", Message: "missing file " + m.File}
		}
	}
	f.nextID++
	f.Deployments = append(f.Deployments, req)
	id := fmt.Sprintf("dpl_%d", f.nextID)
	return &hosting.Deployment{
		ID:         id,
		URL:        fmt.Sprintf("https://%s-%d.hosting.test", req.Name, f.nextID),
		ReadyState: f.InitialState,
	}, nil
}

// GetDeployment implements hosting.Deployer
func (f *Fake) GetDeployment(ctx context.Context, deploymentID string) (*hosting.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StatusCalls++

	states := f.States[deploymentID]
	state := hosting.ReadyStateReady
	if len(states) > 0 {
		state = states[0]
		if len(states) > 1 {
			f.States[deploymentID] = states[1:]
		}
	}
	return &hosting.Deployment{ID: deploymentID, ReadyState: state}, nil
}

// AssignAlias implements hosting.AliasBinder
func (f *Fake) AssignAlias(ctx context.Context, deploymentID, alias string) error {
	if f.OnAlias != nil {
		if err := f.OnAlias(ctx, deploymentID, alias); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Aliases[alias] = deploymentID
	return nil
}

// GetDomainConfig implements hosting.DomainConfigProvider
func (f *Fake) GetDomainConfig(ctx context.Context, fqdn string) (*hosting.DomainConfig, error) {
	f.mu.Lock()
	f.DomainCalls++
	cfg := f.DomainConfigs[fqdn]
	f.mu.Unlock()

	if f.OnDomain != nil {
		if err := f.OnDomain(ctx, fqdn); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// SetDomainConfig sets what GetDomainConfig answers for fqdn
func (f *Fake) SetDomainConfig(fqdn string, cfg hosting.DomainConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DomainConfigs[fqdn] = cfg
}

// DeploymentCount returns how many deployments were created
func (f *Fake) DeploymentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Deployments)
}

// Attempts returns how many uploads were tried for sha
func (f *Fake) Attempts(sha string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploadAttempts[sha]
}
