package id

import (
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
}

func TestTypedIDs(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		prefix string
	}{
		{"session", NewSessionID().String(), SessionPrefix},
		{"workspace", NewWorkspaceID().String(), WorkspacePrefix},
		{"request", NewRequestID().String(), RequestPrefix},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.HasPrefix(tt.value, tt.prefix+"_") {
				t.Errorf("ID should start with '%s_', got: %s", tt.prefix, tt.value)
			}
			if !Valid(tt.value, tt.prefix) {
				t.Errorf("ID should be valid: %s", tt.value)
			}
		})
	}
}

func TestValidRejectsWrongPrefix(t *testing.T) {
	sid := NewSessionID().String()
	if Valid(sid, WorkspacePrefix) {
		t.Errorf("session ID accepted as workspace ID: %s", sid)
	}
	if Valid("sbx_not-a-ulid", SessionPrefix) {
		t.Error("malformed ULID accepted")
	}
}

func TestMonotonicOrdering(t *testing.T) {
	gen := NewGenerator()
	ids := make([]string, 1000)
	for i := range ids {
		ids[i] = gen.GenerateWithPrefix(SessionPrefix)
	}
	if !sort.StringsAreSorted(ids) {
		t.Error("IDs from one generator should sort in creation order")
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, err := Timestamp(NewSessionID().String())
	if err != nil {
		t.Fatalf("Timestamp failed: %v", err)
	}
	if ts.Before(before) || ts.After(time.Now().Add(time.Second)) {
		t.Errorf("Timestamp out of range: %v", ts)
	}
}

func TestConcurrentGeneration(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = make(map[SessionID]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sid := NewSessionID()
				mu.Lock()
				if seen[sid] {
					t.Errorf("duplicate ID: %s", sid)
				}
				seen[sid] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}
