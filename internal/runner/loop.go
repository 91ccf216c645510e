package runner

import (
	"container/heap"
	"context"
	"time"

	"github.com/dop251/goja"
)

// minInterval keeps zero-delay intervals from spinning
const minInterval = time.Millisecond

type timer struct {
	id       int64
	seq      int64
	due      time.Time
	interval time.Duration
	fn       goja.Callable
	args     []goja.Value
	cleared  bool
	index    int
}

type timerQueue []*timer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x interface{}) {
	t := x.(*timer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *timerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

// loop is a single-threaded macrotask queue. All of its methods run on the
// goroutine that owns the VM.
type loop struct {
	queue  timerQueue
	active map[int64]*timer
	nextID int64
	seq    int64
}

func newLoop() *loop {
	return &loop{active: make(map[int64]*timer)}
}

func (l *loop) schedule(fn goja.Callable, delay time.Duration, repeat bool, args []goja.Value) int64 {
	if delay < 0 {
		delay = 0
	}
	l.nextID++
	l.seq++
	t := &timer{
		id:   l.nextID,
		seq:  l.seq,
		due:  time.Now().Add(delay),
		fn:   fn,
		args: args,
	}
	if repeat {
		t.interval = max(delay, minInterval)
	}
	l.active[t.id] = t
	heap.Push(&l.queue, t)
	return t.id
}

func (l *loop) clear(id int64) {
	if t, ok := l.active[id]; ok {
		t.cleared = true
		delete(l.active, id)
	}
}

// run fires timers in due order until none remain or ctx ends. fire
// returning an error stops the loop with that error.
func (l *loop) run(ctx context.Context, fire func(*timer) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		for l.queue.Len() > 0 && l.queue[0].cleared {
			heap.Pop(&l.queue)
		}
		if l.queue.Len() == 0 {
			return nil
		}

		next := l.queue[0]
		if wait := time.Until(next.due); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		heap.Pop(&l.queue)
		if next.interval > 0 {
			l.seq++
			next.seq = l.seq
			next.due = time.Now().Add(next.interval)
			heap.Push(&l.queue, next)
		} else {
			delete(l.active, next.id)
		}

		if err := fire(next); err != nil {
			return err
		}
	}
}
