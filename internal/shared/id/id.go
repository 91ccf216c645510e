// Package id provides ULID-based identifiers for sandbox sessions and
// editor workspaces.
//
// IDs are prefixed by kind (sbx_*, ws_*, req_*) so logs stay readable and
// sortable by creation time.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies one sandbox session
type SessionID string

// WorkspaceID identifies an editor workspace
type WorkspaceID string

// RequestID identifies an API request
type RequestID string

const (
	SessionPrefix   = "sbx"
	WorkspacePrefix = "ws"
	RequestPrefix   = "req"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the shared generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand with monotonic
// entropy, so IDs minted within the same millisecond still sort in order.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0))
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewSessionID generates a sandbox session ID
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewWorkspaceID generates a workspace ID
func NewWorkspaceID() WorkspaceID {
	return WorkspaceID(Default().GenerateWithPrefix(WorkspacePrefix))
}

// NewRequestID generates a request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func (id SessionID) String() string   { return string(id) }
func (id WorkspaceID) String() string { return string(id) }
func (id RequestID) String() string   { return string(id) }

// Valid reports whether s is prefix_ULID for the given prefix
func Valid(s, prefix string) bool {
	rest, ok := strings.CutPrefix(s, prefix+"_")
	if !ok {
		return false
	}
	_, err := ulid.Parse(rest)
	return err == nil
}

// Timestamp extracts the creation time of a prefixed or bare ID
func Timestamp(s string) (time.Time, error) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
