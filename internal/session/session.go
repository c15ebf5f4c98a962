// Package session holds the dataset the dashboard currently serves.
//
// A session is immutable once created; replacing the dataset creates a new session with a
// new ID, so readers holding the previous session keep a consistent view.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/bleedingdev/salesdash/internal/sales"
	"github.com/bleedingdev/salesdash/internal/source"
)

// ErrNoDataset is returned when no dataset has been loaded yet.
var ErrNoDataset = errors.New("no dataset loaded")

// Session is one loaded dataset. Source is the location used for reloads and may hold
// credentials; DisplaySource is its redacted form for responses and logs.
type Session struct {
	ID            string
	Source        string
	DisplaySource string
	LoadedAt      time.Time
	Dataset       *sales.Dataset
}

// Rows returns the dataset rows.
func (s *Session) Rows() []sales.Row { return s.Dataset.Rows() }

// Info describes a session for API responses.
type Info struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	LoadedAt    time.Time `json:"loaded_at"`
	Rows        int       `json:"rows"`
	Fingerprint string    `json:"fingerprint"`
}

// Info returns the session summary.
func (s *Session) Info() Info {
	return Info{
		ID:          s.ID,
		Source:      s.DisplaySource,
		LoadedAt:    s.LoadedAt,
		Rows:        s.Dataset.Len(),
		Fingerprint: s.Dataset.Fingerprint(),
	}
}

// Manager guards the current session.
type Manager struct {
	mu      sync.RWMutex
	current *Session
	now     func() time.Time
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{now: time.Now}
}

// Current returns the active session or ErrNoDataset.
func (m *Manager) Current() (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, ErrNoDataset
	}
	return m.current, nil
}

// Replace installs ds as a new session and returns it.
func (m *Manager) Replace(location string, ds *sales.Dataset) *Session {
	s := &Session{
		ID:            uuid.NewString(),
		Source:        location,
		DisplaySource: source.Redact(location),
		LoadedAt:      m.now().UTC(),
		Dataset:       ds,
	}
	m.mu.Lock()
	prev := m.current
	m.current = s
	m.mu.Unlock()

	fields := log.Fields{"session": s.ID, "source": s.DisplaySource, "rows": ds.Len()}
	if prev != nil {
		fields["previous"] = prev.ID
	}
	log.WithFields(fields).Info("Dataset session started")
	return s
}

// Clear drops the active session.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
}
