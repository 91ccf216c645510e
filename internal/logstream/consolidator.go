// Package logstream consolidates sandbox output into an ordered log,
// collapsing immediately repeated entries into a counter.
package logstream

import (
	"sync"

	"github.com/GriffinCanCode/jsgist/internal/protocol"
)

// Subscriber is told that the log changed. It reads the new state with
// Entries.
type Subscriber interface {
	EntriesChanged()
}

type funcSubscriber struct {
	fn func()
}

func (s *funcSubscriber) EntriesChanged() { s.fn() }

// OnChange adapts fn to a Subscriber. Keep the result to Unsubscribe.
func OnChange(fn func()) Subscriber {
	return &funcSubscriber{fn: fn}
}

// Consolidator owns the log buffer
type Consolidator struct {
	mu      sync.Mutex
	entries []Entry // Protected by mu

	subsMu sync.RWMutex
	subs   []Subscriber // Protected by subsMu
}

// New creates an empty consolidator
func New() *Consolidator {
	return &Consolidator{}
}

// AddEntry appends e, merging it into the last entry when it duplicates it
func (c *Consolidator) AddEntry(e Entry) {
	c.mu.Lock()
	c.add(e)
	c.mu.Unlock()
	c.notify()
}

// AddEntries appends each entry in turn, each checked against the entry
// that is last at that moment, and notifies once.
func (c *Consolidator) AddEntries(entries []Entry) {
	c.mu.Lock()
	for _, e := range entries {
		c.add(e)
	}
	c.mu.Unlock()
	c.notify()
}

// Ingest classifies protocol messages and appends them as one batch.
// Messages that do not carry log output are skipped.
func (c *Consolidator) Ingest(msgs ...protocol.Message) {
	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		if e, ok := Classify(msg); ok {
			entries = append(entries, e)
		}
	}
	c.AddEntries(entries)
}

// Clear empties the log
func (c *Consolidator) Clear() {
	c.mu.Lock()
	c.entries = nil
	c.mu.Unlock()
	c.notify()
}

// Entries returns a snapshot of the log in order
func (c *Consolidator) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.clone()
	}
	return out
}

// Len returns the number of visible rows
func (c *Consolidator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Subscribe registers s for change notifications
func (c *Consolidator) Subscribe(s Subscriber) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.subs = append(c.subs, s)
}

// Unsubscribe removes s; unknown subscribers are ignored
func (c *Consolidator) Unsubscribe(s Subscriber) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for i, sub := range c.subs {
		if sub == s {
			c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
			return
		}
	}
}

// add must be called with mu held
func (c *Consolidator) add(e Entry) {
	if n := len(c.entries); n > 0 {
		last := &c.entries[n-1]
		if Same(last, &e) {
			last.Count = last.Occurrences() + 1
			return
		}
	}
	c.entries = append(c.entries, e.clone())
}

func (c *Consolidator) notify() {
	c.subsMu.RLock()
	subs := make([]Subscriber, len(c.subs))
	copy(subs, c.subs)
	c.subsMu.RUnlock()

	for _, s := range subs {
		s.EntriesChanged()
	}
}
