package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/agusx1211/hitlctl/config"
	"github.com/google/uuid"
)

// Registry hands out one isolated session per thread.
type Registry struct {
	tr   Transport
	cfg  config.Config
	opts []Option

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewRegistry(tr Transport, cfg config.Config, opts ...Option) *Registry {
	must(tr != nil, "transport must not be nil")
	return &Registry{tr: tr, cfg: cfg, opts: opts, sessions: map[string]*Session{}}
}

// Open returns the session of a thread, restoring its history on first use.
// An empty thread id starts a new thread.
func (r *Registry) Open(ctx context.Context, threadID string) (*Session, error) {
	if threadID == "" {
		id, err := r.newThreadID(ctx)
		if err != nil {
			return nil, err
		}
		threadID = id
	}
	if s, ok := r.Get(threadID); ok {
		return s, nil
	}
	s := New(r.tr, threadID, r.cfg, r.opts...)
	if err := s.Restore(ctx); err != nil {
		s.Close()
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		s.Close()
		return nil, ErrClosed
	}
	if existing, ok := r.sessions[threadID]; ok {
		r.mu.Unlock()
		s.Close()
		return existing, nil
	}
	r.sessions[threadID] = s
	r.mu.Unlock()
	return s, nil
}

func (r *Registry) Get(threadID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[threadID]
	return s, ok
}

func (r *Registry) ThreadIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	sessions := r.sessions
	r.sessions = map[string]*Session{}
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

func (r *Registry) newThreadID(ctx context.Context) (string, error) {
	if r.cfg.Session.LocalThreadIDs {
		return uuid.NewString(), nil
	}
	id, err := r.tr.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return id, nil
}
