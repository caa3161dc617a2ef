package availability

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSuperseded is returned to a computation that was overtaken by a newer one on the
// same Session. Its result is discarded.
var ErrSuperseded = errors.New("superseded by a newer query")

// Session serializes the queries of one client. Starting a query cancels the one in
// flight, and only the newest query may publish its result.
type Session struct {
	mu       sync.Mutex
	seq      uint64
	cancel   context.CancelFunc
	latest   Result
	hasValue bool
	lastUsed time.Time
	now      func() time.Time
}

func NewSession() *Session {
	return &Session{now: time.Now}
}

// Run executes fn under a context that is cancelled as soon as another Run starts.
func (s *Session) Run(ctx context.Context, fn func(context.Context) (Result, error)) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	mine := s.seq
	s.cancel = cancel
	s.lastUsed = s.now()
	s.mu.Unlock()

	res, err := fn(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if mine != s.seq {
		return Result{}, ErrSuperseded
	}
	s.cancel = nil
	if err != nil {
		return Result{}, err
	}
	s.latest = res
	s.hasValue = true
	return res, nil
}

// Compute runs c.Compute as the session's newest query.
func (s *Session) Compute(ctx context.Context, c *Computer, req Request) (Result, error) {
	return s.Run(ctx, func(ctx context.Context) (Result, error) {
		return c.Compute(ctx, req)
	})
}

// Latest returns the result of the most recent query that was not superseded.
func (s *Session) Latest() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.hasValue
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Sessions hands out one Session per client key and forgets sessions idle for longer
// than ttl.
type Sessions struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]*Session
	now func() time.Time
}

func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{ttl: ttl, m: make(map[string]*Session), now: time.Now}
}

func (ss *Sessions) Get(key string) *Session {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	now := ss.now()
	for k, s := range ss.m {
		if k != key && now.Sub(s.idleSince()) > ss.ttl {
			delete(ss.m, k)
		}
	}
	s, ok := ss.m[key]
	if !ok {
		s = &Session{now: ss.now, lastUsed: now}
		ss.m[key] = s
	}
	return s
}

func (ss *Sessions) Len() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.m)
}
