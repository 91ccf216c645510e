package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsgist/internal/bus"
	"github.com/GriffinCanCode/jsgist/internal/gist"
	"github.com/GriffinCanCode/jsgist/internal/logstream"
	"github.com/GriffinCanCode/jsgist/internal/protocol"
	"github.com/GriffinCanCode/jsgist/internal/sandbox"
	"github.com/GriffinCanCode/jsgist/internal/shared/id"
)

var (
	ErrNoRunner = errors.New("editor: no runner registered")
	ErrNoLoader = errors.New("editor: gist loading is not configured")
)

// Loader fetches a gist by id or url
type Loader interface {
	Load(ctx context.Context, src string) (gist.Result, error)
}

// Info describes a workspace
type Info struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Files    int           `json:"files"`
	GistID   string        `json:"gistId,omitempty"`
	OwnerID  int64         `json:"ownerId,omitempty"`
	State    sandbox.State `json:"state"`
	Session  string        `json:"session,omitempty"`
	LogCount int           `json:"logCount"`
	Created  time.Time     `json:"created"`
}

// Workspace is one editor: the gist being edited, its log, and the runner
// that executes it
type Workspace struct {
	id      id.WorkspaceID
	bus     *bus.Bus
	logs    *logstream.Consolidator
	ctrl    *sandbox.Controller
	loader  Loader
	logger  *zap.Logger
	created time.Time

	notices noticeList
	newGist bus.Handler

	mu      sync.Mutex
	model   protocol.Gist     // Protected by mu
	gistID  string            // Protected by mu
	ownerID int64             // Protected by mu
	runner  sandbox.RunnerAPI // Protected by mu
}

// NewWorkspace wires a workspace to its bus and controller and registers
// with the controller, which stops the runner once.
func NewWorkspace(wid id.WorkspaceID, b *bus.Bus, logs *logstream.Consolidator, ctrl *sandbox.Controller, loader Loader, logger *zap.Logger) (*Workspace, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Workspace{
		id:      wid,
		bus:     b,
		logs:    logs,
		ctrl:    ctrl,
		loader:  loader,
		logger:  logger.With(zap.String("workspace", wid.String())),
		created: time.Now(),
		model:   protocol.BlankGist(),
	}
	w.newGist = bus.Func(w.handleNewGist)
	b.On(protocol.TypeNewGist, bus.AnyKey, w.newGist)

	if err := ctrl.Register(w); err != nil {
		b.Remove(protocol.TypeNewGist, bus.AnyKey, w.newGist)
		return nil, fmt.Errorf("failed to register workspace: %w", err)
	}
	return w, nil
}

func (w *Workspace) ID() id.WorkspaceID { return w.id }

// Logs returns the workspace's log
func (w *Workspace) Logs() *logstream.Consolidator { return w.logs }

// Gist returns a copy of the current model
func (w *Workspace) Gist() protocol.Gist {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.model.Clone()
}

// SetGist replaces the model without running it
func (w *Workspace) SetGist(g protocol.Gist) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.model = g.Clone()
}

// Info returns a snapshot description
func (w *Workspace) Info() Info {
	w.mu.Lock()
	info := Info{
		ID:      w.id.String(),
		Name:    w.model.Name,
		Files:   len(w.model.Files),
		GistID:  w.gistID,
		OwnerID: w.ownerID,
		Created: w.created,
	}
	w.mu.Unlock()

	status := w.ctrl.Status()
	info.State = status.State
	info.Session = status.SessionID
	info.LogCount = w.logs.Len()
	return info
}

// RegisterRunner implements sandbox.Host
func (w *Workspace) RegisterRunner(api sandbox.RunnerAPI) {
	w.mu.Lock()
	w.runner = api
	w.mu.Unlock()

	if err := w.Stop(); err != nil {
		w.logger.Warn("Failed to stop runner on registration", zap.Error(err))
	}
}

// Run clears the log and executes the current model
func (w *Workspace) Run() error {
	w.mu.Lock()
	api := w.runner
	g := w.model.Clone()
	w.mu.Unlock()

	if api == nil {
		return ErrNoRunner
	}
	// The old session goes first so none of its output lands after the clear
	w.ctrl.Teardown()
	w.logs.Clear()
	return api.Run(g, false)
}

// Stop replaces whatever is running with the blank gist
func (w *Workspace) Stop() error {
	w.mu.Lock()
	api := w.runner
	w.mu.Unlock()

	if api == nil {
		return ErrNoRunner
	}
	return api.Run(protocol.BlankGist(), true)
}

// NewGist replaces the model with g and runs it
func (w *Workspace) NewGist(g protocol.Gist) error {
	w.mu.Lock()
	w.model = g.Clone()
	w.gistID, w.ownerID = "", 0
	w.mu.Unlock()
	return w.Run()
}

// Load fetches src, makes it the model, and runs it. Failures are reported
// as an error notice as well as returned.
func (w *Workspace) Load(ctx context.Context, src string) error {
	if w.loader == nil {
		return ErrNoLoader
	}
	res, err := w.loader.Load(ctx, src)
	if err != nil {
		w.Notify(LevelError, fmt.Sprintf("could not load jsGist: src=%s %v", src, err))
		return err
	}

	w.mu.Lock()
	w.model = res.Gist.Clone()
	w.gistID, w.ownerID = "", 0
	if gist.IsGistID(src) {
		w.gistID, w.ownerID = res.ID, res.OwnerID
	}
	w.mu.Unlock()

	w.logger.Info("Loaded gist", zap.String("src", src), zap.String("name", res.Gist.Name))
	return w.Run()
}

// Post delivers a host message to the workspace's bus
func (w *Workspace) Post(msg protocol.Message) {
	w.bus.Dispatch(msg)
}

// SubscribeNotices registers s for notices
func (w *Workspace) SubscribeNotices(s NoticeSubscriber) { w.notices.subscribe(s) }

// UnsubscribeNotices removes s
func (w *Workspace) UnsubscribeNotices(s NoticeSubscriber) { w.notices.unsubscribe(s) }

// Notify publishes a notice to subscribers
func (w *Workspace) Notify(level Level, msg string) {
	if level == LevelError {
		w.logger.Warn("Workspace notice", zap.String("message", msg))
	} else {
		w.logger.Info("Workspace notice", zap.String("message", msg))
	}
	w.notices.publish(Notice{Level: level, Message: msg, Time: time.Now()})
}

// Close stops the runner and detaches from the bus
func (w *Workspace) Close() error {
	w.bus.Remove(protocol.TypeNewGist, bus.AnyKey, w.newGist)
	return w.ctrl.Close()
}

func (w *Workspace) handleNewGist(msg protocol.Message) {
	var g protocol.Gist
	if err := msg.Decode(&g); err != nil {
		w.Notify(LevelError, fmt.Sprintf("could not create new jsGist: %v", err))
		return
	}
	if err := w.NewGist(g); err != nil {
		w.logger.Warn("Failed to run new gist", zap.Error(err))
	}
}
