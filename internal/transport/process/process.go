// Package process runs each sandbox in its own runner process. Messages
// cross the process boundary as newline-delimited JSON on stdin and stdout;
// the runner's own log output arrives on stderr.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsgist/internal/protocol"
	"github.com/GriffinCanCode/jsgist/internal/sandbox"
)

// SrcFlag is the runner flag carrying the sandbox url
const SrcFlag = "-src"

var ErrDetached = errors.New("process: frame removed")

// Launcher spawns one runner process per frame
type Launcher struct {
	binary     string
	args       []string
	env        []string
	dispatcher sandbox.Dispatcher
	logger     *zap.Logger
}

// NewLauncher creates a launcher running binary with args before the src
// flag. Output of every process is published to d.
func NewLauncher(d sandbox.Dispatcher, binary string, args []string, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{binary: binary, args: args, dispatcher: d, logger: logger}
}

// WithEnv adds environment variables to every spawned process
func (l *Launcher) WithEnv(env ...string) *Launcher {
	l.env = append(l.env, env...)
	return l
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
	defer f.mu.Unlock()
	if err := f.startLocked(spec.Src); err != nil {
		return nil, err
	}
	return f, nil
}

// Frame is a running runner process
type Frame struct {
	spec     sandbox.FrameSpec
	parent   context.Context
	launcher *Launcher
	logger   *zap.Logger

	mu      sync.Mutex
	src     string
	cancel  context.CancelFunc
	stdin   io.WriteCloser
	enc     *protocol.Encoder
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
func (f *Frame) startLocked(src string) error {
	l := f.launcher
	ctx, cancel := context.WithCancel(f.parent)

	args := append(append([]string(nil), l.args...), SrcFlag, src)
	cmd := exec.CommandContext(ctx, l.binary, args...)
	cmd.Env = append(os.Environ(), l.env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start runner %s: %w", l.binary, err)
	}

	done := make(chan struct{})
	f.src, f.cancel, f.stdin, f.enc, f.done = src, cancel, stdin, protocol.NewEncoder(stdin), done

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		f.readMessages(ctx, stdout)
	}()
	go func() {
		defer readers.Done()
		f.forwardLogs(stderr)
	}()

	go func() {
		defer close(done)
		defer cancel()
		readers.Wait()
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			f.logger.Warn("Runner process exited with error", zap.Error(err))
		}
	}()
	return nil
}

func (f *Frame) readMessages(ctx context.Context, r io.Reader) {
	dec := protocol.NewDecoder(r)
	for {
		msg, err := dec.Decode()
		switch {
		case err == nil:
		case errors.Is(err, protocol.ErrMalformed), errors.Is(err, protocol.ErrUnknownType):
			f.logger.Debug("Skipping runner output", zap.Error(err))
			continue
		case errors.Is(err, io.EOF):
			return
		default:
			if ctx.Err() == nil {
				f.logger.Warn("Runner output failed", zap.Error(err))
			}
			return
		}
		if ctx.Err() != nil {
			continue
		}
		msg.Source = f.spec.ID
		f.launcher.dispatcher.Dispatch(msg)
	}
}

func (f *Frame) forwardLogs(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		f.logger.Debug("Runner", zap.String("line", scanner.Text()))
	}
}

// Post writes msg to the runner's stdin. Posts whose targetOrigin does not
// match the frame are dropped, as are posts to a removed frame.
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
	if f.src == protocol.BlankURL {
		return ErrDetached
	}
	return f.enc.Encode(msg)
}

// Navigate kills the current process. Any target other than about:blank
// spawns a fresh one there.
func (f *Frame) Navigate(src string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.removed {
		return ErrDetached
	}
	f.stopLocked()
	if src == protocol.BlankURL {
		f.src = src
		return nil
	}
	return f.startLocked(src)
}

// Remove kills the process without waiting for it to exit
func (f *Frame) Remove() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.removed {
		return nil
	}
	f.removed = true
	f.stopLocked()
	return nil
}

func (f *Frame) stopLocked() {
	_ = f.stdin.Close()
	f.cancel()
}

// Done is closed when the current process has exited and its output has
// been drained
func (f *Frame) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}
