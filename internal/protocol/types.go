package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrNoData      = errors.New("message has no data")
)

// Type identifies a message
type Type string

const (
	TypeRun                Type = "run"
	TypeLog                Type = "log"
	TypeError              Type = "error"
	TypeUnhandledRejection Type = "unhandledRejection"
	TypeGimmeDaCodez       Type = "gimmeDaCodez"
	TypeNewGist            Type = "newGist"
)

// Valid reports whether t belongs to the message vocabulary
func (t Type) Valid() bool {
	switch t {
	case TypeRun, TypeLog, TypeError, TypeUnhandledRejection, TypeGimmeDaCodez, TypeNewGist:
		return true
	}
	return false
}

// Message is the unit of cross-context communication.
//
// Source is stamped by the receiving transport with the id of the session
// that produced the message. It is never serialized.
type Message struct {
	Type   Type            `json:"type"`
	Data   json.RawMessage `json:"data,omitempty"`
	Source string          `json:"-"`
}

// NewMessage builds a message, encoding data as its payload. A nil data
// produces a message without payload.
func NewMessage(t Type, data interface{}) (Message, error) {
	msg := Message{Type: t}
	if data == nil {
		return msg, nil
	}
	raw, err := sonic.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	msg.Data = raw
	return msg, nil
}

// MustMessage is NewMessage for payloads that cannot fail to encode.
func MustMessage(t Type, data interface{}) Message {
	msg, err := NewMessage(t, data)
	if err != nil {
		panic(err)
	}
	return msg
}

// Decode unmarshals the payload into v
func (m Message) Decode(v interface{}) error {
	if len(m.Data) == 0 {
		return ErrNoData
	}
	if err := sonic.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Type, err)
	}
	return nil
}

// File is a single named source inside a gist
type File struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Gist is the content bundle delivered with a run message
type Gist struct {
	Name  string `json:"name"`
	Files []File `json:"files"`
}

// BlankGist returns the empty bundle used to stop execution
func BlankGist() Gist {
	return Gist{Files: []File{}}
}

// IsBlank reports whether the gist has nothing to execute
func (g Gist) IsBlank() bool {
	return len(g.Files) == 0
}

// Clone returns a deep copy of the gist
func (g Gist) Clone() Gist {
	files := make([]File, len(g.Files))
	copy(files, g.Files)
	return Gist{Name: g.Name, Files: files}
}

// LogData is the payload of log, error and unhandledRejection messages as
// produced by a runner. Hosts decode these payloads into their own entry
// types so unknown keys survive.
type LogData struct {
	Msg     string `json:"msg"`
	Type    string `json:"type,omitempty"`
	Section string `json:"section,omitempty"`
	URL     string `json:"url,omitempty"`
	LineNo  int    `json:"lineNo,omitempty"`
	ColNo   int    `json:"colNo,omitempty"`
}
