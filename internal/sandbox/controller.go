package sandbox

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsgist/internal/bus"
	"github.com/GriffinCanCode/jsgist/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/jsgist/internal/protocol"
	"github.com/GriffinCanCode/jsgist/internal/shared/id"
)

// outputTypes are the messages a runner emits while executing
var outputTypes = []protocol.Type{
	protocol.TypeLog,
	protocol.TypeError,
	protocol.TypeUnhandledRejection,
}

// sandboxTypes is every message a session can send
var sandboxTypes = append([]protocol.Type{protocol.TypeGimmeDaCodez}, outputTypes...)

type session struct {
	id      id.SessionID
	frame   Frame
	pending *protocol.Gist
	timer   *monitoring.Timer

	ready  bus.Handler
	output bus.Handler
}

// Controller owns at most one live sandbox session
type Controller struct {
	mu         sync.Mutex
	current    *session // Protected by mu
	closed     bool     // Protected by mu
	registered bool     // Protected by mu

	// ingest is held while output is checked and handed to sink, so
	// Teardown returns only after in-flight output has landed
	ingest sync.Mutex

	router   Router
	launcher Launcher
	sink     LogSink
	target   protocol.Target
	strays   bus.Handler

	ctx    context.Context
	cancel context.CancelFunc

	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// New creates a controller. launcher may be nil, in which case Run fails
// with ErrNoLauncher until SetLauncher is called.
func New(router Router, launcher Launcher, sink LogSink, target protocol.Target, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		router:   router,
		launcher: launcher,
		sink:     sink,
		target:   target,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
	}

	// Sees every sandbox message so ones from replaced sessions get counted
	c.strays = bus.Func(c.watchStray)
	for _, t := range sandboxTypes {
		router.On(t, bus.AnyKey, c.strays)
	}
	return c
}

// WithMetrics enables metrics collection
func (c *Controller) WithMetrics(metrics *monitoring.Metrics) *Controller {
	c.metrics = metrics
	return c
}

// SetLauncher replaces the launcher used by subsequent runs
func (c *Controller) SetLauncher(l Launcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.launcher = l
}

// Register hands host the runner API. It may be called once.
func (c *Controller) Register(host Host) error {
	c.mu.Lock()
	if c.registered {
		c.mu.Unlock()
		return ErrAlreadyRegistered
	}
	c.registered = true
	c.mu.Unlock()

	host.RegisterRunner(c)
	return nil
}

// Run replaces the current session with a fresh one that will execute
// payload once its runner reports ready. The payload is not inspected.
func (c *Controller) Run(payload protocol.Gist, blank bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.launcher == nil {
		return ErrNoLauncher
	}

	c.teardownLocked()

	src, err := c.target.URL()
	if err != nil {
		return fmt.Errorf("failed to build sandbox url: %w", err)
	}

	s := &session{id: id.NewSessionID()}
	s.ready = bus.Func(c.handleReady)
	s.output = bus.Func(c.handleOutput)

	// Handlers go in first so a runner that is ready immediately is heard
	key := s.id.String()
	c.router.On(protocol.TypeGimmeDaCodez, key, s.ready)
	for _, t := range outputTypes {
		c.router.On(t, key, s.output)
	}

	s.timer = monitoring.NewTimer(c.metrics)
	frame, err := c.launcher.Launch(c.ctx, FrameSpec{ID: key, Src: src, Blank: blank})
	if err != nil {
		c.removeHandlers(s)
		return fmt.Errorf("failed to launch sandbox: %w", err)
	}

	pending := payload
	s.frame = frame
	s.pending = &pending
	c.current = s

	if c.metrics != nil {
		c.metrics.RecordRun()
		c.metrics.SessionStarted()
	}
	c.logger.Debug("Sandbox session started",
		zap.String("session", key),
		zap.String("src", src),
		zap.Bool("blank", blank),
		zap.Int("files", len(payload.Files)),
	)
	return nil
}

// Teardown stops the current session, if any. It is idempotent. Once it
// returns, nothing from the torn down session reaches the sink. It must not
// be called from a sink subscriber.
func (c *Controller) Teardown() {
	c.ingest.Lock()
	defer c.ingest.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
}

// Close tears down and rejects further runs
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.teardownLocked()
	c.mu.Unlock()

	for _, t := range sandboxTypes {
		c.router.Remove(t, bus.AnyKey, c.strays)
	}
	c.cancel()
	return nil
}

// Status reports the controller state
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.current
	if s == nil {
		return Status{State: Idle}
	}
	st := Status{
		State:     Running,
		SessionID: s.id.String(),
		Src:       s.frame.Src(),
		Blank:     s.frame.Blank(),
	}
	if s.pending != nil {
		st.State = Starting
	}
	return st
}

// SessionID returns the live session id, or "" when idle
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ""
	}
	return c.current.id.String()
}

func (c *Controller) handleReady(msg protocol.Message) {
	c.mu.Lock()
	s := c.current
	if s == nil || s.id.String() != msg.Source || s.pending == nil {
		c.mu.Unlock()
		c.ignore(msg, "no pending payload")
		return
	}
	payload := *s.pending
	s.pending = nil
	frame := s.frame
	timer := s.timer
	c.mu.Unlock()

	startup := timer.Stop()

	run, err := protocol.NewMessage(protocol.TypeRun, payload)
	if err != nil {
		c.logger.Error("Failed to encode run message", zap.String("session", msg.Source), zap.Error(err))
		return
	}
	if err := frame.Post(run, protocol.WildcardOrigin); err != nil {
		c.logger.Warn("Failed to post run message", zap.String("session", msg.Source), zap.Error(err))
		return
	}
	if c.metrics != nil {
		c.metrics.RecordMessage("out", string(protocol.TypeRun))
	}
	c.logger.Debug("Posted run", zap.String("session", msg.Source), zap.Duration("startup", startup))
}

func (c *Controller) handleOutput(msg protocol.Message) {
	c.ingest.Lock()
	defer c.ingest.Unlock()

	c.mu.Lock()
	current := c.current != nil && c.current.id.String() == msg.Source
	c.mu.Unlock()

	if !current {
		c.ignore(msg, "stale session")
		return
	}
	if c.metrics != nil {
		c.metrics.RecordMessage("in", string(msg.Type))
	}
	c.sink.Ingest(msg)
}

func (c *Controller) watchStray(msg protocol.Message) {
	c.mu.Lock()
	stale := c.current == nil || c.current.id.String() != msg.Source
	c.mu.Unlock()

	if stale {
		c.ignore(msg, "stale session")
	}
}

func (c *Controller) ignore(msg protocol.Message, reason string) {
	c.logger.Debug("Ignoring sandbox message",
		zap.String("type", string(msg.Type)),
		zap.String("source", msg.Source),
		zap.String("reason", reason),
	)
	if c.metrics != nil {
		c.metrics.RecordStale(string(msg.Type))
	}
}

// teardownLocked must be called with mu held. It never waits on the
// sandbox: frames stop asynchronously.
func (c *Controller) teardownLocked() {
	s := c.current
	if s == nil {
		return
	}
	c.current = nil

	c.removeHandlers(s)
	if err := s.frame.Navigate(protocol.BlankURL); err != nil {
		c.logger.Debug("Failed to blank sandbox frame", zap.String("session", s.id.String()), zap.Error(err))
	}
	if err := s.frame.Remove(); err != nil {
		c.logger.Debug("Failed to remove sandbox frame", zap.String("session", s.id.String()), zap.Error(err))
	}
	s.pending = nil

	if c.metrics != nil {
		c.metrics.SessionEnded()
	}
	c.logger.Debug("Sandbox session torn down", zap.String("session", s.id.String()))
}

func (c *Controller) removeHandlers(s *session) {
	key := s.id.String()
	c.router.Remove(protocol.TypeGimmeDaCodez, key, s.ready)
	for _, t := range outputTypes {
		c.router.Remove(t, key, s.output)
	}
}
