package editor

import (
	"sync"
	"time"
)

// Level classifies a notice
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is a transient message for the user that is not sandbox output
type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// NoticeSubscriber receives workspace notices
type NoticeSubscriber interface {
	Notice(n Notice)
}

type funcNoticeSubscriber struct {
	fn func(Notice)
}

func (s *funcNoticeSubscriber) Notice(n Notice) { s.fn(n) }

// OnNotice adapts fn to a NoticeSubscriber. Keep the result to unsubscribe.
func OnNotice(fn func(Notice)) NoticeSubscriber {
	return &funcNoticeSubscriber{fn: fn}
}

type noticeList struct {
	mu   sync.RWMutex
	subs []NoticeSubscriber
}

func (l *noticeList) subscribe(s NoticeSubscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs, s)
}

func (l *noticeList) unsubscribe(s NoticeSubscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, sub := range l.subs {
		if sub == s {
			l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
			return
		}
	}
}

func (l *noticeList) publish(n Notice) {
	l.mu.RLock()
	subs := make([]NoticeSubscriber, len(l.subs))
	copy(subs, l.subs)
	l.mu.RUnlock()

	for _, s := range subs {
		s.Notice(n)
	}
}
