package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/clabconsole/clabconsole-backend/internal/pkg/metrics"
)

// session is the latest visualize request of one client session.
type session struct {
	latest uint64
	cancel context.CancelFunc
}

// SessionTracker hands out request tokens per session so that a slower, older visualize
// computation can never overwrite the result of a newer one. Starting a request cancels the
// session's in-flight one. Tokens are unique across sessions.
type SessionTracker struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, *session]
	counter  atomic.Uint64
}

// NewSessionTracker tracks at most size sessions, forgetting sessions idle for ttl.
func NewSessionTracker(size int, ttl time.Duration) *SessionTracker {
	onEvict := func(string, *session) {
		metrics.VisualizeSessionsActive.Dec()
	}
	return &SessionTracker{
		sessions: expirable.NewLRU[string, *session](size, onEvict, ttl),
	}
}

// Begin starts a request for sessionID. It returns a context that is canceled when a newer
// request of the same session begins, the request token, and a release func that must be
// called when the request completes.
func (t *SessionTracker) Begin(ctx context.Context, sessionID string) (context.Context, uint64, func()) {
	ctx, cancel := context.WithCancel(ctx)
	token := t.counter.Add(1)

	t.mu.Lock()
	s, ok := t.sessions.Peek(sessionID)
	if !ok {
		s = &session{}
		metrics.VisualizeSessionsActive.Inc()
	} else if s.cancel != nil {
		s.cancel()
	}
	s.latest = token
	s.cancel = cancel
	// re-adding refreshes the idle expiry
	t.sessions.Add(sessionID, s)
	t.mu.Unlock()

	release := func() {
		cancel()
		t.mu.Lock()
		defer t.mu.Unlock()
		if s.latest == token {
			s.cancel = nil
		}
	}
	return ctx, token, release
}

// IsLatest reports whether token is the newest request of sessionID. A session that is no
// longer tracked has no newer request.
func (t *SessionTracker) IsLatest(sessionID string, token uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions.Peek(sessionID)
	if !ok {
		return true
	}
	return s.latest == token
}

// Forget drops a session, canceling its in-flight request.
func (t *SessionTracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions.Peek(sessionID); ok && s.cancel != nil {
		s.cancel()
	}
	t.sessions.Remove(sessionID)
}

// Len is the number of tracked sessions.
func (t *SessionTracker) Len() int {
	return t.sessions.Len()
}
