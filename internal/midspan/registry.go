package midspan

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"kuwaiba/osp-core/internal/connectivity"
)

var ErrSessionNotFound = errors.New("session not found")

type entry struct {
	mu       sync.Mutex
	session  *Session
	lastUsed time.Time
	closed   bool
}

// Registry owns the open sessions. Gestures on one session run one at a
// time; different sessions run independently.
type Registry struct {
	deps     Deps
	idle     time.Duration
	now      func() time.Time
	newID    func() string
	mu       sync.Mutex
	sessions map[string]*entry
}

func NewRegistry(deps Deps, idle time.Duration) *Registry {
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	return &Registry{
		deps:     deps,
		idle:     idle,
		now:      time.Now,
		newID:    uuid.NewString,
		sessions: make(map[string]*entry),
	}
}

func (r *Registry) Open(ctx context.Context, location, device, cable connectivity.Ref) (View, error) {
	s, v, err := Open(ctx, r.deps, location, device, cable)
	if err != nil {
		return View{}, err
	}
	id := r.newID()

	r.mu.Lock()
	r.sessions[id] = &entry{session: s, lastUsed: r.now()}
	n := len(r.sessions)
	r.mu.Unlock()

	r.deps.Metrics.SetSessionsActive(n)
	v.Session = id
	return v, nil
}

// Do runs fn with the session locked.
func (r *Registry) Do(id string, fn func(*Session) (View, error)) (View, error) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return View{}, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return View{}, ErrSessionNotFound
	}
	v, err := fn(e.session)
	e.lastUsed = r.now()
	if err != nil {
		return View{}, err
	}
	v.Session = id
	return v, nil
}

func (r *Registry) View(id string) (View, error) {
	return r.Do(id, func(s *Session) (View, error) {
		return s.View(), nil
	})
}

func (r *Registry) Close(id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	n := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	r.deps.Metrics.SetSessionsActive(n)
	r.deps.Log.Info().Str("session", id).Msg("mid-span session closed")
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// EvictIdle closes sessions unused for longer than the idle timeout. A
// session busy with a gesture is skipped.
func (r *Registry) EvictIdle() int {
	now := r.now()
	r.mu.Lock()
	var evicted []string
	for id, e := range r.sessions {
		if !e.mu.TryLock() {
			continue
		}
		if now.Sub(e.lastUsed) > r.idle {
			e.closed = true
			delete(r.sessions, id)
			evicted = append(evicted, id)
		}
		e.mu.Unlock()
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if len(evicted) > 0 {
		r.deps.Metrics.SetSessionsActive(n)
		r.deps.Log.Info().Strs("sessions", evicted).Msg("idle mid-span sessions evicted")
	}
	return len(evicted)
}

// Run evicts idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		r.EvictIdle()
		timer.Reset(interval)
	}
}
