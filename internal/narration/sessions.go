package narration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"sampler/internal/infra"
	"sampler/internal/metrics"
)

// ErrSessionNotFound is returned for unknown or expired sessions.
var ErrSessionNotFound = errors.New("narration: session not found")

// Sessions keeps one Narrator per client and expires idle ones.
type Sessions struct {
	client      Streamer
	idleTimeout time.Duration
	now         func() time.Time
	logger      *infra.Logger
	metrics     *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	narrator *Narrator
	lastSeen time.Time
}

// NewSessions builds a registry. idleTimeout <= 0 disables expiry.
func NewSessions(client Streamer, idleTimeout time.Duration, logger *infra.Logger, m *metrics.Metrics) *Sessions {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Sessions{
		client:      client,
		idleTimeout: idleTimeout,
		now:         time.Now,
		logger:      logger,
		metrics:     m,
		sessions:    make(map[string]*session),
	}
}

// Create opens a session and returns its id.
func (s *Sessions) Create(japanese bool) string {
	id := uuid.NewString()
	n := NewNarrator(s.client, Options{
		Japanese: japanese,
		Now:      s.now,
		Logger:   s.logger,
		Metrics:  s.metrics,
	})
	s.mu.Lock()
	s.sessions[id] = &session{narrator: n, lastSeen: s.now()}
	s.mu.Unlock()
	s.logger.Debug().Str("session_id", id).Bool("japanese", japanese).Msg("narration: session opened")
	return id
}

// Offer passes a frame to the session's narrator.
func (s *Sessions) Offer(id string, frame []byte) (Decision, error) {
	n, err := s.touch(id)
	if err != nil {
		return "", err
	}
	return n.Offer(frame), nil
}

// State returns the session's narration state.
func (s *Sessions) State(id string) (State, error) {
	n, err := s.touch(id)
	if err != nil {
		return State{}, err
	}
	return n.State(), nil
}

// Delete closes and removes a session.
func (s *Sessions) Delete(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	sess.narrator.Close()
	return nil
}

// Len returns the number of open sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep closes sessions idle for longer than the timeout and returns how many.
func (s *Sessions) Sweep() int {
	if s.idleTimeout <= 0 {
		return 0
	}
	now := s.now()
	var expired []*session
	s.mu.Lock()
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) > s.idleTimeout {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()
	for _, sess := range expired {
		sess.narrator.Close()
	}
	if len(expired) > 0 {
		s.logger.Info().Int("expired", len(expired)).Msg("narration: idle sessions closed")
	}
	return len(expired)
}

// Run sweeps periodically until ctx is done, then closes every session.
func (s *Sessions) Run(ctx context.Context) {
	interval := s.idleTimeout / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Sessions) touch(id string) (*Narrator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.lastSeen = s.now()
	return sess.narrator, nil
}

// Close closes every session.
func (s *Sessions) Close() {
	s.closeAll()
}

func (s *Sessions) closeAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()
	for _, sess := range all {
		sess.narrator.Close()
	}
}
