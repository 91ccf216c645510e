package resilience

import (
	"errors"
	"sync"
	"time"
)

var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker's position
type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case HalfOpen:
		return "half-open"
	case Open:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures a breaker
type Settings struct {
	// Threshold is the number of consecutive failures that opens the circuit
	Threshold int
	// Cooldown is how long the circuit stays open before one trial call
	Cooldown time.Duration
	// OnStateChange, if set, is called with the breaker lock held
	OnStateChange func(name string, from, to State)
}

// Breaker fails calls fast once an upstream keeps failing. After Cooldown a
// single trial is let through; its outcome closes or reopens the circuit.
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// New creates a closed breaker
func New(name string, settings Settings) *Breaker {
	if settings.Threshold <= 0 {
		settings.Threshold = 5
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 30 * time.Second
	}
	return &Breaker{name: name, settings: settings, now: time.Now}
}

func (b *Breaker) Name() string { return b.name }

// State returns the current state, moving an open breaker whose cooldown
// has passed to half-open
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.state
}

// Do runs fn unless the circuit is open. A non-nil error from fn counts as
// a failure.
func (b *Breaker) Do(fn func() error) error {
	if err := b.acquire(); err != nil {
		return err
	}

	ok := false
	defer func() { b.release(ok) }()

	err := fn()
	ok = err == nil
	return err
}

// Execute is Do for calls returning a value
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var out T
	err := b.Do(func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance()
	switch b.state {
	case Open:
		return ErrOpen
	case HalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) release(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.probing = false
		if ok {
			b.setState(Closed)
		} else {
			b.setState(Open)
		}
		return
	}

	if ok {
		b.failures = 0
		return
	}
	b.failures++
	if b.state == Closed && b.failures >= b.settings.Threshold {
		b.setState(Open)
	}
}

// advance must be called with mu held
func (b *Breaker) advance() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.settings.Cooldown {
		b.setState(HalfOpen)
	}
}

func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.failures = 0
	if to == Open {
		b.openedAt = b.now()
	}
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}
