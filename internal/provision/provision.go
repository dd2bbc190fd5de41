// Package provision prepares the run environment the pipeline executes in:
// the recreated workspace, the browser engine, and the installed state
// manifest. The workspace is wiped and rebuilt on every run; reruns are the
// recovery mechanism for partial state.
package provision

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"firstpull/internal/config"
)

// State tracks provisioning progress.
type State string

const (
	StateInitializing State = "initializing"
	StateSetup        State = "setup"
	StateReady        State = "ready"
	StateError        State = "error"
)

// Provisioner owns the run workspace lifecycle.
type Provisioner struct {
	mu sync.RWMutex

	cfg    *config.Config
	logger *zap.Logger

	state     State
	lastError error

	// enginePath is the resolved browser binary. Empty means no binary
	// is available yet and step 4 should download one.
	enginePath string

	setupStarted   time.Time
	setupCompleted time.Time
}

// New creates a provisioner for the configured workspace.
func New(cfg *config.Config, logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{
		cfg:    cfg,
		logger: logger,
		state:  StateInitializing,
	}
}

// State returns the current provisioning state.
func (p *Provisioner) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// LastError returns the error that moved the provisioner into StateError.
func (p *Provisioner) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastError
}

// EnginePath returns the resolved browser binary, or empty when none is
// available.
func (p *Provisioner) EnginePath() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enginePath
}

func (p *Provisioner) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

func (p *Provisioner) setError(err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateError
	p.lastError = err
	return err
}

func (p *Provisioner) setEnginePath(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enginePath = path
}
