package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"casefinder-web/models"
	"casefinder-web/storage"

	"github.com/google/uuid"
)

// SessionStore persists widget sessions. Update must apply fn atomically
// with respect to other updates of the same session.
type SessionStore interface {
	GetOrCreate(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Update(ctx context.Context, id uuid.UUID, fn func(*models.Session) error) (*models.Session, error)
	DeleteStale(ctx context.Context, olderThan time.Time) ([]*models.SelectedFile, error)
}

// SubmissionLog records completed upload attempts
type SubmissionLog interface {
	Create(ctx context.Context, submission *models.Submission) error
	ListBySessionID(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.Submission, error)
}

// Searcher sends one file to the similarity backend
type Searcher interface {
	Search(ctx context.Context, filename string, data io.Reader) (*models.SimilarityResponse, error)
}

// WidgetService drives the upload widget: file selection, submission,
// result state and pagination, per session
type WidgetService struct {
	sessions    SessionStore
	files       storage.Storage
	searcher    Searcher
	submissions SubmissionLog
}

// WidgetServiceOption is a functional option for WidgetService
type WidgetServiceOption func(*WidgetService)

// WidgetWithSessionStore sets the session store
func WidgetWithSessionStore(store SessionStore) WidgetServiceOption {
	return func(s *WidgetService) {
		s.sessions = store
	}
}

// WidgetWithStorage sets the storage used for selected files
func WidgetWithStorage(files storage.Storage) WidgetServiceOption {
	return func(s *WidgetService) {
		s.files = files
	}
}

// WidgetWithSearcher sets the similarity backend client
func WidgetWithSearcher(searcher Searcher) WidgetServiceOption {
	return func(s *WidgetService) {
		s.searcher = searcher
	}
}

// WidgetWithSubmissionLog sets the optional submission audit log
func WidgetWithSubmissionLog(submissions SubmissionLog) WidgetServiceOption {
	return func(s *WidgetService) {
		s.submissions = submissions
	}
}

// NewWidgetService creates a new widget service
func NewWidgetService(opts ...WidgetServiceOption) *WidgetService {
	s := &WidgetService{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FileUpload is a file chosen by the user
type FileUpload struct {
	Filename string
	MimeType string
	Size     int64
	Data     io.Reader
}

// SubmitResult is the state after a submission attempt
type SubmitResult struct {
	Session  *models.Session
	Token    int64
	Response *models.SimilarityResponse
}

func (s *WidgetService) ready() error {
	if s.sessions == nil {
		return errors.New("session store not set")
	}
	if s.files == nil {
		return errors.New("file storage not set")
	}
	if s.searcher == nil {
		return errors.New("similarity client not set")
	}
	return nil
}

// Session returns the session, creating it on first use
func (s *WidgetService) Session(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.sessions.GetOrCreate(ctx, id)
}

// ChooseFile records the user's file choice. A nil upload clears the
// selection and hides the status line.
func (s *WidgetService) ChooseFile(ctx context.Context, id uuid.UUID, upload *FileUpload) (*models.Session, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, err := s.sessions.GetOrCreate(ctx, id); err != nil {
		return nil, err
	}

	var selected *models.SelectedFile
	if upload != nil && upload.Filename != "" {
		fileID := uuid.New()
		path, err := s.files.Save(ctx, fileID, upload.Filename, upload.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to store selected file: %w", err)
		}

		mimeType := upload.MimeType
		if mimeType == "" {
			mimeType = storage.ContentType(upload.Filename)
		}
		selected = &models.SelectedFile{
			FileID:      fileID,
			Name:        upload.Filename,
			MimeType:    mimeType,
			Size:        upload.Size,
			StoragePath: path,
		}
	}

	var previous *models.SelectedFile
	session, err := s.sessions.Update(ctx, id, func(sess *models.Session) error {
		previous = sess.SelectedFile
		sess.SelectedFile = selected
		// Responses still in flight for the previous choice are stale.
		sess.NextToken()
		sess.View.Loading = false
		if selected != nil {
			sess.View.FileStatus = "Selected File: " + selected.Name
			sess.View.FileStatusVisible = true
		} else {
			sess.View.FileStatus = ""
			sess.View.FileStatusVisible = false
		}
		return nil
	})
	if err != nil {
		if selected != nil {
			s.deleteBlob(ctx, selected.StoragePath)
		}
		return nil, err
	}

	if previous != nil {
		s.deleteBlob(ctx, previous.StoragePath)
	}
	return session, nil
}

// Submit uploads the selected file and stores the outcome in the session
// view. Exactly one request is sent per call. A response that arrives after
// a newer submission of the same session was started is dropped and
// ErrSuperseded is returned.
func (s *WidgetService) Submit(ctx context.Context, id uuid.UUID) (*SubmitResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, err := s.sessions.GetOrCreate(ctx, id); err != nil {
		return nil, err
	}

	var (
		selected *models.SelectedFile
		token    int64
		limit    int
	)
	session, err := s.sessions.Update(ctx, id, func(sess *models.Session) error {
		sess.View.ClearResults()
		limit = sess.Pagination.Limit
		if sess.SelectedFile == nil {
			token = sess.NextToken()
			sess.View.Loading = false
			sess.View.ErrorMessage = MessageNoFileSelected
			return nil
		}
		selected = sess.SelectedFile
		token = sess.NextToken()
		sess.View.Loading = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if selected == nil {
		s.record(ctx, &models.Submission{
			SessionID:    id,
			Token:        token,
			DisplayLimit: limit,
			Outcome:      models.OutcomeValidationError,
			ErrorMessage: stringPtr(MessageNoFileSelected),
		})
		return &SubmitResult{Session: session, Token: token}, &ValidationError{Reason: ErrNoFileSelected}
	}

	resp, searchErr := s.search(ctx, selected)

	// The caller may have gone away; the session must still leave the
	// loading state.
	storeCtx := context.WithoutCancel(ctx)

	var (
		superseded bool
		outcome    models.SubmissionOutcome
	)
	session, err = s.sessions.Update(storeCtx, id, func(sess *models.Session) error {
		if !sess.IsLatest(token) {
			superseded = true
			return nil
		}
		outcome = applyOutcome(sess, resp, searchErr)
		return nil
	})
	if err != nil {
		return nil, err
	}

	submission := &models.Submission{
		SessionID:    id,
		Token:        token,
		Filename:     selected.Name,
		DisplayLimit: limit,
	}

	if superseded {
		log.Printf("Discarding response for session %s: token %d superseded by %d", id, token, session.LatestToken)
		submission.Outcome = models.OutcomeSuperseded
		s.record(storeCtx, submission)
		return &SubmitResult{Session: session, Token: token}, ErrSuperseded
	}

	submission.Outcome = outcome
	if searchErr != nil {
		submission.ErrorMessage = stringPtr(session.View.ErrorMessage)
	} else {
		submission.TotalFound = resp.TotalFound
	}
	s.record(storeCtx, submission)

	return &SubmitResult{Session: session, Token: token, Response: resp}, searchErr
}

// ShowMore raises the display limit by one step and runs the full upload
// cycle again with the same file
func (s *WidgetService) ShowMore(ctx context.Context, id uuid.UUID) (*SubmitResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, err := s.sessions.GetOrCreate(ctx, id); err != nil {
		return nil, err
	}

	_, err := s.sessions.Update(ctx, id, func(sess *models.Session) error {
		sess.Pagination.Advance()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.Submit(ctx, id)
}

// RecentSubmissions lists the audit log of a session, newest first
func (s *WidgetService) RecentSubmissions(ctx context.Context, id uuid.UUID, limit int) ([]*models.Submission, error) {
	if s.submissions == nil {
		return []*models.Submission{}, nil
	}
	submissions, err := s.submissions.ListBySessionID(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	if submissions == nil {
		submissions = []*models.Submission{}
	}
	return submissions, nil
}

// ExpireSessions drops sessions idle since olderThan and deletes the files
// they had selected. It returns the number of files deleted.
func (s *WidgetService) ExpireSessions(ctx context.Context, olderThan time.Time) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	selections, err := s.sessions.DeleteStale(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to expire sessions: %w", err)
	}
	for _, selected := range selections {
		s.deleteBlob(ctx, selected.StoragePath)
	}
	return len(selections), nil
}

// DefaultSessionTTL is how long an idle session and its file are kept
const DefaultSessionTTL = 24 * time.Hour

// SessionTTLFromEnv reads SESSION_TTL. Zero disables expiry.
func SessionTTLFromEnv() (time.Duration, error) {
	raw := os.Getenv("SESSION_TTL")
	if raw == "" {
		return DefaultSessionTTL, nil
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil || ttl < 0 {
		return 0, fmt.Errorf("invalid SESSION_TTL %q", raw)
	}
	return ttl, nil
}

// SweepSessions runs ExpireSessions every interval until ctx is done
func (s *WidgetService) SweepSessions(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := s.ExpireSessions(ctx, now.Add(-ttl))
			if err != nil {
				log.Printf("Session sweep failed: %v", err)
				continue
			}
			if removed > 0 {
				log.Printf("Session sweep deleted %d stored files", removed)
			}
		}
	}
}

func (s *WidgetService) search(ctx context.Context, selected *models.SelectedFile) (*models.SimilarityResponse, error) {
	data, err := s.files.Open(ctx, selected.StoragePath)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to open selected file: %w", err)}
	}
	defer data.Close()

	return s.searcher.Search(ctx, selected.Name, data)
}

// applyOutcome writes a finished attempt into the session view
func applyOutcome(sess *models.Session, resp *models.SimilarityResponse, err error) models.SubmissionOutcome {
	view := &sess.View
	view.Loading = false

	if err != nil {
		var backendErr *BackendError
		if errors.As(err, &backendErr) {
			view.ErrorMessage = backendErr.Message
			return models.OutcomeBackendError
		}
		log.Printf("Upload request failed for session %s: %v", sess.ID, err)
		view.ErrorMessage = MessageRequestFailed
		return models.OutcomeTransportError
	}

	if len(resp.SimilarCases) > resp.TotalFound {
		log.Printf("Warning: backend returned %d cases but total_found is %d", len(resp.SimilarCases), resp.TotalFound)
	}

	view.ErrorMessage = ""
	view.Searched = true
	view.Cases = resp.SimilarCases
	view.TotalFound = resp.TotalFound

	if len(resp.SimilarCases) == 0 {
		view.NoResults = true
		return models.OutcomeNoResults
	}

	view.ShowMore = sess.Pagination.HasMore(resp.TotalFound)
	return models.OutcomeSuccess
}

func (s *WidgetService) record(ctx context.Context, submission *models.Submission) {
	if s.submissions == nil {
		return
	}
	if err := s.submissions.Create(ctx, submission); err != nil {
		log.Printf("Warning: failed to record submission for session %s: %v", submission.SessionID, err)
	}
}

func (s *WidgetService) deleteBlob(ctx context.Context, path string) {
	if err := s.files.Delete(ctx, path); err != nil {
		log.Printf("Warning: failed to delete stored file %s: %v", path, err)
	}
}

func stringPtr(s string) *string {
	return &s
}
