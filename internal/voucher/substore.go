package voucher

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Kind names one of the voucher sub-flows.
type Kind string

const (
	KindGenerate Kind = "generate"
	KindSearch   Kind = "search"
	KindShare    Kind = "share"
)

// SubSession is the short-lived state of one voucher sub-flow. It is kept
// separately from the booking session so a voucher flow can run, expire,
// and be abandoned without touching an in-progress booking.
type SubSession struct {
	UserID            string            `json:"user_id"`
	Flow              Kind              `json:"flow"`
	Step              string            `json:"step"`
	Data              map[string]string `json:"data"`
	HolderOTP         string            `json:"holder_otp,omitempty"`
	RecipientOTP      string            `json:"recipient_otp,omitempty"`
	HolderAttempts    int               `json:"holder_attempts"`
	RecipientAttempts int               `json:"recipient_attempts"`
	Choices           []Voucher         `json:"choices,omitempty"`
	StartedAt         time.Time         `json:"started_at"`
}

// NewSubSession starts a sub-flow at its first step.
func NewSubSession(userID string, flow Kind, step string, now time.Time) *SubSession {
	return &SubSession{
		UserID:    userID,
		Flow:      flow,
		Step:      step,
		Data:      make(map[string]string),
		StartedAt: now,
	}
}

// Expired reports whether the sub-flow has outlived its window. The window
// runs from StartedAt, not from the last input.
func (s *SubSession) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.StartedAt) > ttl
}

var (
	// ErrSubSessionNotFound means no sub-flow is in progress for the user.
	ErrSubSessionNotFound = errors.New("voucher: sub-session not found")
	// ErrExpired means a sub-flow existed but its window has lapsed.
	ErrExpired = errors.New("voucher: sub-session expired")
)

// SubStore persists sub-flow sessions. Get returns ErrExpired (and removes
// the record) when the flow's window has lapsed, so callers can tell an
// expired flow apart from no flow at all.
type SubStore interface {
	Get(ctx context.Context, userID string) (*SubSession, error)
	Put(ctx context.Context, s *SubSession) error
	Delete(ctx context.Context, userID string) error
}

// MemorySubStore holds sub-sessions in process memory.
type MemorySubStore struct {
	mu       sync.Mutex
	sessions map[string]*SubSession
	ttl      time.Duration
	now      func() time.Time
}

// NewMemorySubStore creates an in-memory store with the given flow window.
func NewMemorySubStore(ttl time.Duration) *MemorySubStore {
	return &MemorySubStore{
		sessions: make(map[string]*SubSession),
		ttl:      ttl,
		now:      time.Now,
	}
}

var _ SubStore = (*MemorySubStore)(nil)

func (m *MemorySubStore) Get(_ context.Context, userID string) (*SubSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrSubSessionNotFound
	}
	if s.Expired(m.now(), m.ttl) {
		delete(m.sessions, userID)
		return nil, ErrExpired
	}
	cp := *s
	return &cp, nil
}

func (m *MemorySubStore) Put(_ context.Context, s *SubSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.UserID] = &cp
	return nil
}

func (m *MemorySubStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}
