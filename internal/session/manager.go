// Package session keeps uploaded datasets and their pending modifications in
// memory, one state machine per upload.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/sheetask/internal/dataset"
	"github.com/KaramelBytes/sheetask/internal/logging"
	"github.com/KaramelBytes/sheetask/internal/transform"
)

// State is where a session is in the query/apply cycle.
type State string

const (
	StateIdle            State = "idle"
	StateQuerying        State = "querying"
	StateDisplayed       State = "displayed"
	StateFailed          State = "failed"
	StateExecuting       State = "executing"
	StateApplied         State = "applied"
	StateExecutionFailed State = "execution_failed"
)

// Busy reports whether an oracle call or an execution is in flight.
func (s State) Busy() bool { return s == StateQuerying || s == StateExecuting }

var (
	ErrNotFound       = errors.New("session not found")
	ErrBusy           = errors.New("session is busy with another action")
	ErrNoModification = errors.New("no pending modification with that id")
	ErrCapacity       = errors.New("too many active sessions")
)

// Modification is a confirmed-or-pending plan proposed by the oracle.
type Modification struct {
	ID        string
	Query     string
	Plan      *transform.Plan
	Steps     []string
	Result    *dataset.Dataset // set once applied
	CreatedAt time.Time
	AppliedAt time.Time
}

// Session is a snapshot of one upload. Datasets are never mutated in place.
type Session struct {
	ID           string
	FileName     string
	Original     *dataset.Dataset
	Cleaned      *dataset.Dataset
	State        State
	LastError    string
	Pending      *Modification
	Applied      *Modification
	CreatedAt    time.Time
	LastAccessed time.Time
}

// Options configures a Manager.
type Options struct {
	MaxSessions int           // 0 means unlimited
	TTL         time.Duration // inactivity before cleanup; 0 disables it
	Logger      *zap.Logger
}

// Manager holds sessions keyed by id. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	max      int
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewManager returns an empty Manager.
func NewManager(o Options) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		max:      o.MaxSessions,
		ttl:      o.TTL,
		logger:   logging.OrNop(o.Logger),
		now:      time.Now,
	}
}

// Create registers a new upload in the Idle state, evicting the least
// recently used idle session when the manager is full.
func (m *Manager) Create(fileName string, original, cleaned *dataset.Dataset) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.max > 0 && len(m.sessions) >= m.max {
		if !m.evictLRU() {
			return Session{}, ErrCapacity
		}
	}
	now := m.now()
	s := &Session{
		ID:           uuid.New().String(),
		FileName:     fileName,
		Original:     original,
		Cleaned:      cleaned,
		State:        StateIdle,
		CreatedAt:    now,
		LastAccessed: now,
	}
	m.sessions[s.ID] = s
	m.logger.Info("session created", zap.String("session", s.ID), zap.String("file", fileName))
	return *s, nil
}

func (m *Manager) evictLRU() bool {
	var victim *Session
	for _, s := range m.sessions {
		if s.State.Busy() {
			continue
		}
		if victim == nil || s.LastAccessed.Before(victim.LastAccessed) {
			victim = s
		}
	}
	if victim == nil {
		return false
	}
	delete(m.sessions, victim.ID)
	m.logger.Info("session evicted", zap.String("session", victim.ID))
	return true
}

// Get returns a snapshot of the session and marks it as accessed.
func (m *Manager) Get(id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup(id)
	if err != nil {
		return Session{}, err
	}
	return *s, nil
}

// Delete discards a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	m.logger.Info("session deleted", zap.String("session", id))
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) lookup(id string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.LastAccessed = m.now()
	return s, nil
}

// BeginQuery moves a session to Querying. Chart requests use it too.
func (m *Manager) BeginQuery(id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup(id)
	if err != nil {
		return Session{}, err
	}
	if s.State.Busy() {
		return Session{}, ErrBusy
	}
	s.State = StateQuerying
	return *s, nil
}

// EndQuery records the outcome of a query. A non-nil plan becomes the pending
// modification, replacing any earlier one; a query without a plan clears it.
func (m *Manager) EndQuery(id, query string, plan *transform.Plan, steps []string, qerr error) (*Modification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	if qerr != nil {
		s.State, s.LastError = StateFailed, qerr.Error()
		return nil, nil
	}
	s.State, s.LastError = StateDisplayed, ""
	s.Pending = nil
	if plan == nil {
		return nil, nil
	}
	mod := &Modification{ID: uuid.New().String(), Query: query, Plan: plan, Steps: steps, CreatedAt: m.now()}
	s.Pending = mod
	cp := *mod
	return &cp, nil
}

// EndChart records the outcome of a chart request. Pending modifications are kept.
func (m *Manager) EndChart(id string, cerr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	if cerr != nil {
		s.State, s.LastError = StateFailed, cerr.Error()
		return nil
	}
	s.State, s.LastError = StateDisplayed, ""
	return nil
}

// BeginApply moves a session to Executing for the pending modification modID.
func (m *Manager) BeginApply(id, modID string) (Session, *Modification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup(id)
	if err != nil {
		return Session{}, nil, err
	}
	if s.State.Busy() {
		return Session{}, nil, ErrBusy
	}
	if s.Pending == nil || s.Pending.ID != modID {
		return Session{}, nil, ErrNoModification
	}
	s.State = StateExecuting
	mod := *s.Pending
	return *s, &mod, nil
}

// EndApply records the outcome of applying modID. On success the modification
// moves from pending to applied; on failure it stays pending.
func (m *Manager) EndApply(id, modID string, result *dataset.Dataset, aerr error) (*Modification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	if s.Pending == nil || s.Pending.ID != modID {
		return nil, ErrNoModification
	}
	if aerr != nil {
		s.State, s.LastError = StateExecutionFailed, aerr.Error()
		return nil, nil
	}
	applied := *s.Pending
	applied.Result = result
	applied.AppliedAt = m.now()
	s.Applied = &applied
	s.Pending = nil
	s.State, s.LastError = StateApplied, ""
	cp := applied
	return &cp, nil
}

// Modification returns the pending or applied modification with modID.
func (m *Manager) Modification(id, modID string) (*Modification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	for _, mod := range []*Modification{s.Applied, s.Pending} {
		if mod != nil && mod.ID == modID {
			cp := *mod
			return &cp, nil
		}
	}
	return nil, ErrNoModification
}

// CleanupExpired removes idle sessions not accessed within maxAge and returns
// their ids in sorted order. Busy sessions are kept.
func (m *Manager) CleanupExpired(maxAge time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-maxAge)
	var removed []string
	for id, s := range m.sessions {
		if s.State.Busy() || !s.LastAccessed.Before(cutoff) {
			continue
		}
		delete(m.sessions, id)
		removed = append(removed, id)
	}
	sort.Strings(removed)
	if len(removed) > 0 {
		m.logger.Info("expired sessions removed", zap.Int("count", len(removed)))
	}
	return removed
}

// Run removes expired sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if m.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupExpired(m.ttl)
		}
	}
}
