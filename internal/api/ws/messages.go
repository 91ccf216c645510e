package ws

import (
	"encoding/json"

	"github.com/GriffinCanCode/jsgist/internal/logstream"
)

// Client message types
const (
	TypeRun     = "run"
	TypeStop    = "stop"
	TypeNewGist = "newGist"
	TypeLoad    = "load"
	TypePing    = "ping"
)

// Server message types
const (
	TypeHello  = "hello"
	TypeLogs   = "logs"
	TypeNotice = "notice"
	TypePong   = "pong"
)

// ClientMessage is a command from the editor. run may carry the gist to
// run as data; newGist must. load names its gist with src.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	Src  string          `json:"src,omitempty"`
}

// ServerMessage is pushed to the editor
type ServerMessage struct {
	Type      string            `json:"type"`
	Workspace string            `json:"workspace,omitempty"`
	Entries   []logstream.Entry `json:"entries,omitempty"`
	Level     string            `json:"level,omitempty"`
	Message   string            `json:"message,omitempty"`
}
