package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"casefinder-web/models"

	"github.com/google/uuid"
)

// MemorySessionRepository keeps sessions in process memory. Sessions are
// copied in and out so callers never share state with the store.
type MemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.Session
}

// NewMemorySessionRepository creates an empty in-memory session store
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[uuid.UUID]*models.Session)}
}

func cloneSession(s *models.Session) (*models.Session, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to copy session: %w", err)
	}
	out := &models.Session{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("failed to copy session: %w", err)
	}
	return out, nil
}

// GetOrCreate returns the session with the given ID, creating it if needed
func (r *MemorySessionRepository) GetOrCreate(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		session = models.NewSession(id)
		r.sessions[id] = session
	}
	return cloneSession(session)
}

// GetByID retrieves a session by ID
func (r *MemorySessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(session)
}

// Update applies fn to a copy of the session and stores it if fn succeeds
func (r *MemorySessionRepository) Update(ctx context.Context, id uuid.UUID, fn func(*models.Session) error) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	session, err := cloneSession(stored)
	if err != nil {
		return nil, err
	}
	if err := fn(session); err != nil {
		return nil, err
	}
	session.UpdatedAt = time.Now()

	saved, err := cloneSession(session)
	if err != nil {
		return nil, err
	}
	r.sessions[id] = saved
	return session, nil
}

// DeleteStale removes sessions not updated since olderThan and returns the
// file selections they still held
func (r *MemorySessionRepository) DeleteStale(ctx context.Context, olderThan time.Time) ([]*models.SelectedFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	selections := []*models.SelectedFile{}
	for id, session := range r.sessions {
		if !session.UpdatedAt.Before(olderThan) {
			continue
		}
		if session.SelectedFile != nil {
			selected := *session.SelectedFile
			selections = append(selections, &selected)
		}
		delete(r.sessions, id)
	}
	return selections, nil
}
