package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"casefinder-web/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSessionNotFound is returned when no session exists for an ID
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository handles database operations for widget sessions
type SessionRepository struct {
	db *pgxpool.Pool
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

const selectSessionColumns = `
		SELECT id, selected_file, display_limit, latest_token, view, created_at, updated_at
		FROM widget_sessions`

func scanSession(row pgx.Row) (*models.Session, error) {
	session := &models.Session{}
	err := row.Scan(
		&session.ID,
		&session.SelectedFile,
		&session.Pagination.Limit,
		&session.LatestToken,
		&session.View,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetOrCreate returns the session with the given ID, creating it if needed
func (r *SessionRepository) GetOrCreate(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	fresh := models.NewSession(id)
	query := `
		INSERT INTO widget_sessions (id, display_limit, latest_token, view)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (id) DO NOTHING`

	if _, err := r.db.Exec(ctx, query, id, fresh.Pagination.Limit, fresh.View); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return r.GetByID(ctx, id)
}

// GetByID retrieves a session by ID
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return scanSession(r.db.QueryRow(ctx, selectSessionColumns+` WHERE id = $1`, id))
}

// Update applies fn to the session inside a row-locked transaction
func (r *SessionRepository) Update(ctx context.Context, id uuid.UUID, fn func(*models.Session) error) (*models.Session, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	session, err := scanSession(tx.QueryRow(ctx, selectSessionColumns+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}

	if err := fn(session); err != nil {
		return nil, err
	}

	query := `
		UPDATE widget_sessions SET
			selected_file = $2,
			display_limit = $3,
			latest_token = $4,
			view = $5,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err = tx.QueryRow(
		ctx, query,
		session.ID,
		session.SelectedFile,
		session.Pagination.Limit,
		session.LatestToken,
		session.View,
	).Scan(&session.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit session: %w", err)
	}

	return session, nil
}

// DeleteStale removes sessions not updated since olderThan and returns the
// file selections they still held. Submissions cascade.
func (r *SessionRepository) DeleteStale(ctx context.Context, olderThan time.Time) ([]*models.SelectedFile, error) {
	query := `
		DELETE FROM widget_sessions
		WHERE updated_at < $1
		RETURNING selected_file`

	rows, err := r.db.Query(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to delete stale sessions: %w", err)
	}
	defer rows.Close()

	selections := []*models.SelectedFile{}
	for rows.Next() {
		var selected *models.SelectedFile
		if err := rows.Scan(&selected); err != nil {
			return nil, err
		}
		if selected != nil {
			selections = append(selections, selected)
		}
	}

	return selections, rows.Err()
}
