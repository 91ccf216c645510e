package sandbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/jsgist/internal/bus"
	"github.com/GriffinCanCode/jsgist/internal/protocol"
)

var (
	ErrNoLauncher        = errors.New("sandbox: no launcher configured")
	ErrClosed            = errors.New("sandbox: controller closed")
	ErrAlreadyRegistered = errors.New("sandbox: runner API already registered")
)

// State is the lifecycle phase of the controller
type State int

const (
	Idle State = iota
	Starting
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	}
	return "unknown"
}

// MarshalText renders the state by name in JSON status payloads
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Idle, Starting, Running} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("sandbox: unknown state %q", text)
}

// FrameSpec describes a sandbox to launch
type FrameSpec struct {
	ID    string // session id, stamped as Source on every inbound message
	Src   string // runner URL including the bootstrap script parameter
	Blank bool   // transparent frame used while stopped
}

// Frame is one live isolated execution context
type Frame interface {
	ID() string
	Src() string
	Blank() bool

	// Post delivers msg if targetOrigin matches the frame's origin.
	// Delivery is asynchronous; the frame may not be listening yet.
	Post(msg protocol.Message, targetOrigin string) error

	// Navigate points the frame at a new src. Navigating to
	// protocol.BlankURL stops all execution.
	Navigate(src string) error

	// Remove detaches the frame. It must not block on the sandbox exiting.
	Remove() error
}

// Launcher creates frames. Inbound messages from a frame are published to
// the launcher's dispatcher with Source set to the frame ID.
type Launcher interface {
	Launch(ctx context.Context, spec FrameSpec) (Frame, error)
}

// Dispatcher receives messages coming out of a frame
type Dispatcher interface {
	Dispatch(msg protocol.Message)
}

// Router is the registration side of the message bus
type Router interface {
	On(t protocol.Type, key string, h bus.Handler)
	Remove(t protocol.Type, key string, h bus.Handler)
}

// LogSink receives output messages from the live session
type LogSink interface {
	Ingest(msgs ...protocol.Message)
}

// RunnerAPI is what the controller hands to its host
type RunnerAPI interface {
	Run(payload protocol.Gist, blank bool) error
}

// Host accepts the runner API once at startup
type Host interface {
	RegisterRunner(api RunnerAPI)
}

// Status is a point-in-time view of the controller
type Status struct {
	State     State  `json:"state"`
	SessionID string `json:"sessionId,omitempty"`
	Src       string `json:"src,omitempty"`
	Blank     bool   `json:"blank"`
}
