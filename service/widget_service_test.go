package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"casefinder-web/models"
	"casefinder-web/repository"
	"casefinder-web/storage"

	"github.com/google/uuid"
)

// fakeSearcher answers Search with the next scripted function
type fakeSearcher struct {
	mu      sync.Mutex
	calls   []string
	answers []func() (*models.SimilarityResponse, error)
}

func (f *fakeSearcher) Search(ctx context.Context, filename string, data io.Reader) (*models.SimilarityResponse, error) {
	body, _ := io.ReadAll(data)

	f.mu.Lock()
	f.calls = append(f.calls, filename+":"+string(body))
	answer := f.answers[0]
	if len(f.answers) > 1 {
		f.answers = f.answers[1:]
	}
	f.mu.Unlock()

	return answer()
}

func (f *fakeSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func respond(body string) func() (*models.SimilarityResponse, error) {
	return func() (*models.SimilarityResponse, error) {
		var resp models.SimilarityResponse
		if err := json.Unmarshal([]byte(body), &resp); err != nil {
			panic(err)
		}
		if resp.HasError() {
			return nil, &BackendError{Message: resp.Error}
		}
		return &resp, nil
	}
}

type memorySubmissionLog struct {
	mu          sync.Mutex
	submissions []*models.Submission
}

func (l *memorySubmissionLog) Create(ctx context.Context, s *models.Submission) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submissions = append(l.submissions, s)
	return nil
}

func (l *memorySubmissionLog) ListBySessionID(ctx context.Context, id uuid.UUID, limit int) ([]*models.Submission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.Submission
	for i := len(l.submissions) - 1; i >= 0 && len(out) < limit; i-- {
		if l.submissions[i].SessionID == id {
			out = append(out, l.submissions[i])
		}
	}
	return out, nil
}

func (l *memorySubmissionLog) outcomes() []models.SubmissionOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.SubmissionOutcome
	for _, s := range l.submissions {
		out = append(out, s.Outcome)
	}
	return out
}

const oneCase = `{"similar_cases":[{"Crime":"Theft","Year":2019,"Place":"Delhi","Accused Count":2,"Similarity Score":87.5,"Similarities Found":"Matching MO"}],"total_found":15}`

func newTestWidget(t *testing.T, searcher Searcher) (*WidgetService, *memorySubmissionLog, storage.Storage) {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	log := &memorySubmissionLog{}
	svc := NewWidgetService(
		WidgetWithSessionStore(repository.NewMemorySessionRepository()),
		WidgetWithStorage(files),
		WidgetWithSearcher(searcher),
		WidgetWithSubmissionLog(log),
	)
	return svc, log, files
}

func chooseFile(t *testing.T, svc *WidgetService, id uuid.UUID, name, body string) *models.Session {
	t.Helper()
	session, err := svc.ChooseFile(context.Background(), id, &FileUpload{
		Filename: name,
		Size:     int64(len(body)),
		Data:     strings.NewReader(body),
	})
	if err != nil {
		t.Fatalf("choose file: %v", err)
	}
	return session
}

func TestWidgetService_NotConfigured(t *testing.T) {
	svc := NewWidgetService()
	if _, err := svc.Submit(context.Background(), uuid.New()); err == nil {
		t.Error("expected error without dependencies")
	}
}

func TestChooseFile_ShowsAndHidesStatus(t *testing.T) {
	svc, _, files := newTestWidget(t, &fakeSearcher{})
	id := uuid.New()

	session := chooseFile(t, svc, id, "case1.pdf", "body")
	if session.View.FileStatus != "Selected File: case1.pdf" || !session.View.FileStatusVisible {
		t.Errorf("unexpected status %q visible=%v", session.View.FileStatus, session.View.FileStatusVisible)
	}
	stored := session.SelectedFile.StoragePath
	if session.SelectedFile.MimeType != "application/pdf" {
		t.Errorf("expected mime type from extension, got %s", session.SelectedFile.MimeType)
	}

	session, err := svc.ChooseFile(context.Background(), id, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.View.FileStatusVisible || session.SelectedFile != nil {
		t.Error("expected selection cleared and status hidden")
	}
	if _, err := files.Open(context.Background(), stored); !errors.Is(err, storage.ErrBlobNotFound) {
		t.Errorf("expected previous blob deleted, got %v", err)
	}
}

func TestSubmit_NoFileSelected(t *testing.T) {
	searcher := &fakeSearcher{}
	svc, log, _ := newTestWidget(t, searcher)

	result, err := svc.Submit(context.Background(), uuid.New())

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !errors.Is(err, ErrNoFileSelected) {
		t.Error("expected ErrNoFileSelected cause")
	}
	if searcher.callCount() != 0 {
		t.Errorf("expected no request, got %d", searcher.callCount())
	}
	if result.Session.View.ErrorMessage != MessageNoFileSelected {
		t.Errorf("expected validation message, got %q", result.Session.View.ErrorMessage)
	}
	if got := log.outcomes(); len(got) != 1 || got[0] != models.OutcomeValidationError {
		t.Errorf("expected validation outcome logged, got %v", got)
	}
}

func TestSubmit_RendersCasesAndShowMore(t *testing.T) {
	searcher := &fakeSearcher{answers: []func() (*models.SimilarityResponse, error){respond(oneCase)}}
	svc, log, _ := newTestWidget(t, searcher)
	id := uuid.New()
	chooseFile(t, svc, id, "case1.pdf", "report")

	result, err := svc.Submit(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	view := result.Session.View
	if view.Loading {
		t.Error("expected loading indicator hidden")
	}
	if len(view.Cases) != 1 || view.Cases[0].Crime != "Theft" || view.Cases[0].SimilarityScore.String() != "87.5" {
		t.Errorf("unexpected cases %+v", view.Cases)
	}
	if !view.ShowMore {
		t.Error("expected show more visible for 15 > 10")
	}
	if view.NoResults || view.ErrorMessage != "" {
		t.Errorf("unexpected view %+v", view)
	}
	if searcher.calls[0] != "case1.pdf:report" {
		t.Errorf("expected selected file sent, got %q", searcher.calls[0])
	}
	if got := log.outcomes(); len(got) != 1 || got[0] != models.OutcomeSuccess {
		t.Errorf("expected success logged, got %v", got)
	}
}

func TestSubmit_EmptyResults(t *testing.T) {
	searcher := &fakeSearcher{answers: []func() (*models.SimilarityResponse, error){respond(`{"similar_cases":[],"total_found":0}`)}}
	svc, _, _ := newTestWidget(t, searcher)
	id := uuid.New()
	chooseFile(t, svc, id, "case1.pdf", "report")

	result, err := svc.Submit(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Session.View.NoResults {
		t.Error("expected no results indicator")
	}
	if result.Session.View.ShowMore || len(result.Session.View.Cases) != 0 {
		t.Errorf("unexpected view %+v", result.Session.View)
	}
}

func TestSubmit_BackendError(t *testing.T) {
	searcher := &fakeSearcher{answers: []func() (*models.SimilarityResponse, error){respond(`{"error":"Unsupported file type"}`)}}
	svc, _, _ := newTestWidget(t, searcher)
	id := uuid.New()
	chooseFile(t, svc, id, "case1.exe", "x")

	result, err := svc.Submit(context.Background(), id)

	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	view := result.Session.View
	if view.ErrorMessage != "Unsupported file type" {
		t.Errorf("expected backend message, got %q", view.ErrorMessage)
	}
	if len(view.Cases) != 0 || view.NoResults || view.ShowMore || view.Loading {
		t.Errorf("expected empty results, got %+v", view)
	}
}

func TestSubmit_TransportError(t *testing.T) {
	searcher := &fakeSearcher{answers: []func() (*models.SimilarityResponse, error){
		func() (*models.SimilarityResponse, error) {
			return nil, &TransportError{Err: errors.New("connection refused")}
		},
	}}
	svc, log, _ := newTestWidget(t, searcher)
	id := uuid.New()
	chooseFile(t, svc, id, "case1.pdf", "x")

	result, err := svc.Submit(context.Background(), id)

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if result.Session.View.ErrorMessage != MessageRequestFailed {
		t.Errorf("expected generic message, got %q", result.Session.View.ErrorMessage)
	}
	if result.Session.View.Loading {
		t.Error("expected loading indicator hidden")
	}
	if got := log.outcomes(); len(got) != 1 || got[0] != models.OutcomeTransportError {
		t.Errorf("expected transport error logged, got %v", got)
	}
}

func TestSubmit_ReplacesPreviousResults(t *testing.T) {
	searcher := &fakeSearcher{answers: []func() (*models.SimilarityResponse, error){respond(oneCase)}}
	svc, _, _ := newTestWidget(t, searcher)
	id := uuid.New()
	chooseFile(t, svc, id, "case1.pdf", "report")

	for i := 0; i < 2; i++ {
		result, err := svc.Submit(context.Background(), id)
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if len(result.Session.View.Cases) != 1 {
			t.Errorf("submit %d: expected 1 case, got %d", i, len(result.Session.View.Cases))
		}
	}
}

func TestSubmit_ErrorClearsOldResults(t *testing.T) {
	searcher := &fakeSearcher{answers: []func() (*models.SimilarityResponse, error){
		respond(oneCase),
		respond(`{"error":"Uploaded file is empty"}`),
	}}
	svc, _, _ := newTestWidget(t, searcher)
	id := uuid.New()
	chooseFile(t, svc, id, "case1.pdf", "report")

	if _, err := svc.Submit(context.Background(), id); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	result, _ := svc.Submit(context.Background(), id)
	if len(result.Session.View.Cases) != 0 || result.Session.View.ShowMore {
		t.Errorf("expected results cleared, got %+v", result.Session.View)
	}
}

func TestShowMore_AdvancesLimitAndResubmits(t *testing.T) {
	searcher := &fakeSearcher{answers: []func() (*models.SimilarityResponse, error){respond(oneCase)}}
	svc, _, _ := newTestWidget(t, searcher)
	id := uuid.New()
	chooseFile(t, svc, id, "case1.pdf", "report")

	if _, err := svc.Submit(context.Background(), id); err != nil {
		t.Fatalf("submit: %v", err)
	}

	result, err := svc.ShowMore(context.Background(), id)
	if err != nil {
		t.Fatalf("show more: %v", err)
	}
	if result.Session.Pagination.Limit != 20 {
		t.Errorf("expected limit 20, got %d", result.Session.Pagination.Limit)
	}
	if result.Session.View.ShowMore {
		t.Error("expected show more hidden for 15 <= 20")
	}
	if searcher.callCount() != 2 || searcher.calls[1] != "case1.pdf:report" {
		t.Errorf("expected same file re-sent, got %v", searcher.calls)
	}

	submissions, _ := svc.RecentSubmissions(context.Background(), id, 10)
	if len(submissions) != 2 || submissions[0].DisplayLimit != 20 {
		t.Errorf("expected latest submission at limit 20, got %+v", submissions)
	}
}

func TestShowMore_WithoutFile(t *testing.T) {
	searcher := &fakeSearcher{}
	svc, _, _ := newTestWidget(t, searcher)

	result, err := svc.ShowMore(context.Background(), uuid.New())
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if result.Session.Pagination.Limit != 20 {
		t.Errorf("expected limit 20, got %d", result.Session.Pagination.Limit)
	}
	if searcher.callCount() != 0 {
		t.Error("expected no request")
	}
}

func TestSubmit_StaleResponseDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	slow := func() (*models.SimilarityResponse, error) {
		close(started)
		<-release
		return respond(`{"similar_cases":[{"Crime":"Stale"}],"total_found":40}`)()
	}
	fast := respond(`{"similar_cases":[{"Crime":"Fresh"}],"total_found":1}`)

	searcher := &fakeSearcher{answers: []func() (*models.SimilarityResponse, error){slow, fast}}
	svc, log, _ := newTestWidget(t, searcher)
	id := uuid.New()
	chooseFile(t, svc, id, "case1.pdf", "report")

	type outcome struct {
		result *SubmitResult
		err    error
	}
	first := make(chan outcome, 1)
	go func() {
		result, err := svc.Submit(context.Background(), id)
		first <- outcome{result, err}
	}()

	<-started
	second, err := svc.Submit(context.Background(), id)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if second.Session.View.Cases[0].Crime != "Fresh" {
		t.Fatalf("expected fresh results, got %+v", second.Session.View.Cases)
	}

	close(release)
	got := <-first
	if !errors.Is(got.err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", got.err)
	}

	session, err := svc.Session(context.Background(), id)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if len(session.View.Cases) != 1 || session.View.Cases[0].Crime != "Fresh" {
		t.Errorf("expected stale response ignored, got %+v", session.View.Cases)
	}
	if session.View.ShowMore {
		t.Error("expected show more from the fresh response")
	}

	outcomes := log.outcomes()
	if len(outcomes) != 2 || outcomes[1] != models.OutcomeSuperseded {
		t.Errorf("expected superseded outcome logged last, got %v", outcomes)
	}
}

func TestSubmit_ResponseAfterSelectionClearedDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	slow := func() (*models.SimilarityResponse, error) {
		close(started)
		<-release
		return respond(oneCase)()
	}

	searcher := &fakeSearcher{answers: []func() (*models.SimilarityResponse, error){slow}}
	svc, _, _ := newTestWidget(t, searcher)
	id := uuid.New()
	chooseFile(t, svc, id, "a.pdf", "report")

	first := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), id)
		first <- err
	}()

	<-started
	if _, err := svc.ChooseFile(context.Background(), id, nil); err != nil {
		t.Fatalf("clear selection: %v", err)
	}
	_, err := svc.Submit(context.Background(), id)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	close(release)
	if err := <-first; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}

	session, err := svc.Session(context.Background(), id)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	view := session.View
	if view.ErrorMessage != MessageNoFileSelected {
		t.Errorf("expected validation message kept, got %q", view.ErrorMessage)
	}
	if len(view.Cases) != 0 || view.ShowMore || view.Searched {
		t.Errorf("expected no results next to the error, got %+v", view)
	}
}

func TestChooseFile_SupersedesInFlightSubmit(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	slow := func() (*models.SimilarityResponse, error) {
		close(started)
		<-release
		return respond(oneCase)()
	}

	searcher := &fakeSearcher{answers: []func() (*models.SimilarityResponse, error){slow}}
	svc, _, _ := newTestWidget(t, searcher)
	id := uuid.New()
	chooseFile(t, svc, id, "a.pdf", "report")

	first := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), id)
		first <- err
	}()

	<-started
	chooseFile(t, svc, id, "b.pdf", "other")

	close(release)
	if err := <-first; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}

	session, err := svc.Session(context.Background(), id)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if len(session.View.Cases) != 0 {
		t.Errorf("expected results for a.pdf dropped, got %+v", session.View.Cases)
	}
	if session.View.Loading {
		t.Error("expected loading indicator hidden")
	}
	if session.View.FileStatus != "Selected File: b.pdf" {
		t.Errorf("unexpected status %q", session.View.FileStatus)
	}
}

func TestExpireSessions_DeletesStoredFiles(t *testing.T) {
	svc, _, files := newTestWidget(t, &fakeSearcher{})
	id := uuid.New()
	session := chooseFile(t, svc, id, "case1.pdf", "report")
	stored := session.SelectedFile.StoragePath

	removed, err := svc.ExpireSessions(context.Background(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if removed != 0 {
		t.Errorf("expected active session kept, removed %d", removed)
	}

	removed, err = svc.ExpireSessions(context.Background(), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 file deleted, got %d", removed)
	}
	if _, err := files.Open(context.Background(), stored); !errors.Is(err, storage.ErrBlobNotFound) {
		t.Errorf("expected stored file deleted, got %v", err)
	}

	fresh, err := svc.Session(context.Background(), id)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if fresh.SelectedFile != nil || fresh.View.FileStatusVisible {
		t.Errorf("expected a new empty session, got %+v", fresh)
	}
}

func TestRecentSubmissions_EmptyIsNotNil(t *testing.T) {
	svc, _, _ := newTestWidget(t, &fakeSearcher{})

	submissions, err := svc.RecentSubmissions(context.Background(), uuid.New(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if submissions == nil {
		t.Error("expected empty slice, got nil")
	}
}

func TestSessionTTLFromEnv(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
		err  bool
	}{
		{"", DefaultSessionTTL, false},
		{"2h", 2 * time.Hour, false},
		{"0", 0, false},
		{"-1h", 0, true},
		{"tomorrow", 0, true},
	}
	for _, tt := range tests {
		t.Setenv("SESSION_TTL", tt.raw)
		got, err := SessionTTLFromEnv()
		if tt.err {
			if err == nil {
				t.Errorf("SESSION_TTL=%q: expected error", tt.raw)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("SESSION_TTL=%q: got %v, %v; want %v", tt.raw, got, err, tt.want)
		}
	}
}
