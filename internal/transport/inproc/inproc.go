// Package inproc runs sandboxes as goroutines inside the host process.
package inproc

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsgist/internal/protocol"
	"github.com/GriffinCanCode/jsgist/internal/runner"
	"github.com/GriffinCanCode/jsgist/internal/sandbox"
)

// InboxSize is how many posts a frame buffers before its runner listens
const InboxSize = 16

var (
	ErrDetached  = errors.New("inproc: frame removed")
	ErrInboxFull = errors.New("inproc: frame inbox full")
)

// Launcher starts a runner goroutine per frame
type Launcher struct {
	dispatcher sandbox.Dispatcher
	cfg        runner.Config
	logger     *zap.Logger
}

// NewLauncher creates a launcher publishing frame output to d
func NewLauncher(d sandbox.Dispatcher, cfg runner.Config, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{dispatcher: d, cfg: cfg, logger: logger}
}

// Launch implements sandbox.Launcher
func (l *Launcher) Launch(ctx context.Context, spec sandbox.FrameSpec) (sandbox.Frame, error) {
	f := &Frame{
		spec:     spec,
		parent:   ctx,
		launcher: l,
		logger:   l.logger.With(zap.String("session", spec.ID)),
	}
	f.mu.Lock()
	f.startLocked(spec.Src)
	f.mu.Unlock()
	return f, nil
}

// Frame is a runner goroutine with a buffered inbox
type Frame struct {
	spec     sandbox.FrameSpec
	parent   context.Context
	launcher *Launcher
	logger   *zap.Logger

	mu      sync.Mutex
	src     string
	ctx     context.Context
	cancel  context.CancelFunc
	inbox   chan protocol.Message
	done    chan struct{}
	removed bool
}

func (f *Frame) ID() string  { return f.spec.ID }
func (f *Frame) Blank() bool { return f.spec.Blank }

// Src returns the current navigation target
func (f *Frame) Src() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.src
}

// startLocked must be called with mu held
func (f *Frame) startLocked(src string) {
	ctx, cancel := context.WithCancel(f.parent)
	inbox := make(chan protocol.Message, InboxSize)
	done := make(chan struct{})

	f.src, f.ctx, f.cancel, f.inbox, f.done = src, ctx, cancel, inbox, done

	emit := runner.PostFunc(func(msg protocol.Message) error {
		if ctx.Err() != nil {
			return ErrDetached
		}
		msg.Source = f.spec.ID
		f.launcher.dispatcher.Dispatch(msg)
		return nil
	})

	go func() {
		defer close(done)
		if err := runner.Serve(ctx, src, inbox, emit, f.launcher.cfg, f.logger); err != nil {
			f.logger.Warn("Runner exited with error", zap.Error(err))
		}
	}()
}

// Post queues msg for the runner. Posts whose targetOrigin does not match
// the frame are dropped, as are posts to a removed frame.
func (f *Frame) Post(msg protocol.Message, targetOrigin string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.removed {
		return ErrDetached
	}
	if !protocol.OriginMatches(targetOrigin, f.src) {
		f.logger.Debug("Dropping post for other origin", zap.String("targetOrigin", targetOrigin))
		return nil
	}

	select {
	case f.inbox <- msg:
		return nil
	case <-f.ctx.Done():
		return ErrDetached
	default:
		return ErrInboxFull
	}
}

// Navigate stops the current runner. Any target other than about:blank
// starts a fresh runner there.
func (f *Frame) Navigate(src string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.removed {
		return ErrDetached
	}
	f.cancel()
	if src == protocol.BlankURL {
		f.src = src
		return nil
	}
	f.startLocked(src)
	return nil
}

// Remove detaches the frame without waiting for its runner to exit
func (f *Frame) Remove() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.removed {
		return nil
	}
	f.removed = true
	f.cancel()
	return nil
}

// Done is closed when the current runner goroutine has exited
func (f *Frame) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}
