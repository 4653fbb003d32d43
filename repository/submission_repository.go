package repository

import (
	"context"

	"casefinder-web/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubmissionRepository handles database operations for the upload audit log
type SubmissionRepository struct {
	db *pgxpool.Pool
}

// NewSubmissionRepository creates a new submission repository
func NewSubmissionRepository(db *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create records a submission
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	query := `
		INSERT INTO submissions (
			session_id, token, filename, display_limit, outcome, total_found, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	return r.db.QueryRow(
		ctx, query,
		submission.SessionID,
		submission.Token,
		submission.Filename,
		submission.DisplayLimit,
		submission.Outcome,
		submission.TotalFound,
		submission.ErrorMessage,
	).Scan(&submission.ID, &submission.CreatedAt)
}

// ListBySessionID retrieves the most recent submissions of a session
func (r *SubmissionRepository) ListBySessionID(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.Submission, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, session_id, token, filename, display_limit, outcome, total_found, error_message, created_at
		FROM submissions
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	submissions := []*models.Submission{}
	for rows.Next() {
		submission := &models.Submission{}
		err := rows.Scan(
			&submission.ID,
			&submission.SessionID,
			&submission.Token,
			&submission.Filename,
			&submission.DisplayLimit,
			&submission.Outcome,
			&submission.TotalFound,
			&submission.ErrorMessage,
			&submission.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, submission)
	}

	return submissions, rows.Err()
}
