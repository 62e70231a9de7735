package handler

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/game-progress/internal/progress"
)

// fakeStore is an in-memory progress.Store that records session lifecycle.
type fakeStore struct {
	mu      sync.Mutex
	rows    map[string]progress.PlayerProgress
	opens   int
	closes  int
	openErr error
	findErr error
	// applyErr is returned by ApplyDelta before touching rows.
	applyErr error
	closeErr error
	now      time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows: map[string]progress.PlayerProgress{},
		now:  time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *fakeStore) Open(context.Context) (progress.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.opens++
	return &fakeSession{store: s}, nil
}

func (s *fakeStore) Ping(context.Context) error { return s.openErr }

func (s *fakeStore) row(id string) (progress.PlayerProgress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	return r, ok
}

func (s *fakeStore) snapshot() map[string]progress.PlayerProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]progress.PlayerProgress, len(s.rows))
	for k, v := range s.rows {
		out[k] = v
	}
	return out
}

func (s *fakeStore) sessions() (opens, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens, s.closes
}

type fakeSession struct {
	store *fakeStore
}

func (f *fakeSession) Find(_ context.Context, id string) (progress.PlayerProgress, error) {
	s := f.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return progress.PlayerProgress{}, s.findErr
	}
	r, ok := s.rows[id]
	if !ok {
		return progress.PlayerProgress{}, progress.ErrNotFound
	}
	return r, nil
}

func (f *fakeSession) Create(_ context.Context, id string) (progress.PlayerProgress, error) {
	s := f.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rows[id]; ok {
		return r, nil
	}
	r := progress.PlayerProgress{PlayerID: id}
	s.rows[id] = r
	return r, nil
}

func (f *fakeSession) ApplyDelta(_ context.Context, id string, d progress.Delta) (progress.PlayerProgress, error) {
	s := f.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return progress.PlayerProgress{}, s.applyErr
	}
	r, ok := s.rows[id]
	if !ok {
		return progress.PlayerProgress{}, progress.ErrNotFound
	}
	r = r.Apply(d, s.now)
	s.rows[id] = r
	return r, nil
}

func (f *fakeSession) Close(context.Context) error {
	s := f.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return s.closeErr
}

// fakePublisher records events and optionally fails.
type fakePublisher struct {
	mu     sync.Mutex
	events []progress.Event
	topics []string
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, event progress.Event) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	p.topics = append(p.topics, topic)
	return "msg-1", nil
}
