package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream failed")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(threshold int) (*Breaker, *clock) {
	c := &clock{now: time.Unix(0, 0)}
	b := New("test", Settings{Threshold: threshold, Cooldown: time.Minute})
	b.now = c.Now
	return b, c
}

func call(b *Breaker, ok bool) error {
	return b.Do(func() error {
		if ok {
			return nil
		}
		return errUpstream
	})
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		calls    []bool // true = success
		expected State
	}{
		{"stays closed on successes", []bool{true, true, true}, Closed},
		{"opens after consecutive failures", []bool{false, false, false}, Open},
		{"success resets the failure run", []bool{false, false, true, false, false}, Closed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBreaker(3)
			for _, ok := range tt.calls {
				_ = call(b, ok)
			}
			assert.Equal(t, tt.expected, b.State())
		})
	}
}

func TestBreakerFailsFastWhenOpen(t *testing.T) {
	b, _ := newTestBreaker(1)
	require.ErrorIs(t, call(b, false), errUpstream)

	ran := false
	err := b.Do(func() error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, ran)
}

func TestBreakerTrial(t *testing.T) {
	b, c := newTestBreaker(1)
	_ = call(b, false)

	c.Advance(time.Minute)
	assert.Equal(t, HalfOpen, b.State())

	// Failed trial reopens
	assert.ErrorIs(t, call(b, false), errUpstream)
	assert.Equal(t, Open, b.State())

	c.Advance(time.Minute)
	assert.NoError(t, call(b, true))
	assert.Equal(t, Closed, b.State())
}

func TestBreakerSingleTrial(t *testing.T) {
	b, c := newTestBreaker(1)
	_ = call(b, false)
	c.Advance(time.Minute)

	inTrial := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = b.Do(func() error {
			close(inTrial)
			<-release
			return nil
		})
	}()

	<-inTrial
	assert.ErrorIs(t, call(b, true), ErrOpen)
	close(release)

	assert.Eventually(t, func() bool { return b.State() == Closed }, time.Second, time.Millisecond)
}

func TestExecute(t *testing.T) {
	b, _ := newTestBreaker(2)

	got, err := Execute(b, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	_, err = Execute(b, func() (int, error) { return 0, errUpstream })
	assert.ErrorIs(t, err, errUpstream)
}

func TestOnStateChange(t *testing.T) {
	var changes []string
	b := New("github", Settings{
		Threshold: 1,
		OnStateChange: func(name string, from, to State) {
			changes = append(changes, name+":"+from.String()+"->"+to.String())
		},
	})
	_ = call(b, false)
	assert.Equal(t, []string{"github:closed->open"}, changes)
	assert.Equal(t, "unknown", State(7).String())
}
