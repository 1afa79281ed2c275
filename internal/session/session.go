// Package session tracks asynchronous scan jobs between submission and
// result pickup.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/instantwaste/formscan/internal/pipeline"
)

// Status is the lifecycle state of a scan session.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Session is a snapshot of one async scan job. Result is set only once the
// status is complete.
type Session struct {
	ID        string               `json:"sessionId"`
	Status    Status               `json:"status"`
	Stage     string               `json:"stage,omitempty"`
	Percent   int                  `json:"percent"`
	Error     string               `json:"error,omitempty"`
	Result    *pipeline.ScanResult `json:"-"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// Manager holds in-flight sessions and expires abandoned ones. All methods
// are safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	done     chan struct{}
	closeOne sync.Once
}

// NewManager starts a manager whose sessions expire ttl after their last
// update. Close must be called to stop the sweeper.
func NewManager(ttl time.Duration) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		done:     make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Create registers a new pending session and returns its snapshot.
func (m *Manager) Create() Session {
	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return *s
}

// UpdateProgress records a pipeline checkpoint and moves the session to
// processing. Unknown IDs are ignored; the session may have expired.
func (m *Manager) UpdateProgress(id, stage string, percent int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	s.Status = StatusProcessing
	s.Stage = stage
	s.Percent = percent
	s.UpdatedAt = time.Now()
}

// Complete stores the finished result for pickup.
func (m *Manager) Complete(id string, result *pipeline.ScanResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	s.Status = StatusComplete
	s.Percent = 100
	s.Result = result
	s.UpdatedAt = time.Now()
}

// Fail marks the session failed with the given message.
func (m *Manager) Fail(id, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	s.Status = StatusFailed
	s.Error = message
	s.UpdatedAt = time.Now()
}

// Get returns a snapshot of the session.
func (m *Manager) Get(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// TakeResult fetches a session's snapshot and, when the session is finished,
// removes it; a result can be picked up exactly once.
func (m *Manager) TakeResult(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	snap := *s
	if s.Status == StatusComplete || s.Status == StatusFailed {
		delete(m.sessions, id)
	}
	return snap, true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops the expiry sweeper.
func (m *Manager) Close() {
	m.closeOne.Do(func() { close(m.done) })
}

func (m *Manager) sweep() {
	interval := m.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case now := <-ticker.C:
			m.expire(now)
		}
	}
}

func (m *Manager) expire(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if now.Sub(s.UpdatedAt) > m.ttl {
			delete(m.sessions, id)
			slog.Debug("session expired", "id", id, "status", s.Status)
		}
	}
}
