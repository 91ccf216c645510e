package editor

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsgist/internal/bus"
	"github.com/GriffinCanCode/jsgist/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/jsgist/internal/logstream"
	"github.com/GriffinCanCode/jsgist/internal/protocol"
	"github.com/GriffinCanCode/jsgist/internal/sandbox"
	"github.com/GriffinCanCode/jsgist/internal/shared/id"
)

var (
	ErrNotFound = errors.New("editor: workspace not found")
	ErrTooMany  = errors.New("editor: workspace limit reached")
)

// LauncherFunc builds the launcher for one workspace. Frames it launches
// publish their output to d.
type LauncherFunc func(d sandbox.Dispatcher) sandbox.Launcher

// ManagerConfig configures a Manager
type ManagerConfig struct {
	Target   protocol.Target
	Launcher LauncherFunc
	Loader   Loader
	Limit    int // 0 means unlimited
	Metrics  *monitoring.Metrics
	Logger   *zap.Logger
}

// Manager owns the live workspaces. Each workspace gets its own bus,
// log and controller.
type Manager struct {
	cfg        ManagerConfig
	logger     *zap.Logger
	workspaces sync.Map
	count      atomic.Int64
	createMu   sync.Mutex
}

// NewManager creates a workspace manager
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Manager{cfg: cfg, logger: cfg.Logger}
}

// Create starts a new workspace with a stopped runner
func (m *Manager) Create() (*Workspace, error) {
	m.createMu.Lock()
	defer m.createMu.Unlock()

	if m.cfg.Limit > 0 && int(m.count.Load()) >= m.cfg.Limit {
		return nil, ErrTooMany
	}

	wid := id.NewWorkspaceID()
	logger := m.logger.With(zap.String("workspace", wid.String()))

	b := bus.New(logger)
	logs := logstream.New()
	var launcher sandbox.Launcher
	if m.cfg.Launcher != nil {
		launcher = m.cfg.Launcher(b)
	}
	ctrl := sandbox.New(b, launcher, logs, m.cfg.Target, logger).WithMetrics(m.cfg.Metrics)

	w, err := NewWorkspace(wid, b, logs, ctrl, m.cfg.Loader, m.logger)
	if err != nil {
		ctrl.Close()
		return nil, err
	}

	m.workspaces.Store(wid, w)
	m.updateCount(1)
	m.logger.Info("Workspace created", zap.String("workspace", wid.String()))
	return w, nil
}

// Get retrieves a workspace by id
func (m *Manager) Get(wid id.WorkspaceID) (*Workspace, bool) {
	val, ok := m.workspaces.Load(wid)
	if !ok {
		return nil, false
	}
	return val.(*Workspace), true
}

// Fork creates a workspace and hands it a copy of wid's gist through a
// newGist message, which runs it
func (m *Manager) Fork(wid id.WorkspaceID) (*Workspace, error) {
	src, ok := m.Get(wid)
	if !ok {
		return nil, ErrNotFound
	}
	w, err := m.Create()
	if err != nil {
		return nil, err
	}
	msg, err := protocol.NewMessage(protocol.TypeNewGist, src.Gist())
	if err != nil {
		m.Close(w.ID())
		return nil, fmt.Errorf("failed to encode gist: %w", err)
	}
	w.Post(msg)
	return w, nil
}

// List returns info for every workspace
func (m *Manager) List() []Info {
	var out []Info
	m.workspaces.Range(func(_, value interface{}) bool {
		out = append(out, value.(*Workspace).Info())
		return true
	})
	return out
}

// Close tears a workspace down
func (m *Manager) Close(wid id.WorkspaceID) bool {
	val, ok := m.workspaces.LoadAndDelete(wid)
	if !ok {
		return false
	}
	w := val.(*Workspace)
	if err := w.Close(); err != nil {
		m.logger.Warn("Failed to close workspace", zap.String("workspace", wid.String()), zap.Error(err))
	}
	m.updateCount(-1)
	m.logger.Info("Workspace closed", zap.String("workspace", wid.String()))
	return true
}

// CloseAll tears down every workspace
func (m *Manager) CloseAll() {
	m.workspaces.Range(func(key, _ interface{}) bool {
		m.Close(key.(id.WorkspaceID))
		return true
	})
}

// Count returns the number of live workspaces
func (m *Manager) Count() int {
	return int(m.count.Load())
}

func (m *Manager) updateCount(delta int64) {
	n := m.count.Add(delta)
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.SetWorkspaces(int(n))
	}
}
