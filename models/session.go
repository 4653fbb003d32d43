package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	// InitialDisplayLimit is the number of cases a fresh session asks to see
	InitialDisplayLimit = 10
	// DisplayLimitStep is added on every "show more"
	DisplayLimitStep = 10
)

// Pagination tracks how many results the user intends to see
type Pagination struct {
	Limit int `json:"limit"`
}

// NewPagination returns pagination at the initial limit
func NewPagination() Pagination {
	return Pagination{Limit: InitialDisplayLimit}
}

// Advance raises the limit by one step
func (p *Pagination) Advance() {
	if p.Limit <= 0 {
		p.Limit = InitialDisplayLimit
	}
	p.Limit += DisplayLimitStep
}

// HasMore reports whether the backend found more cases than the current limit
func (p Pagination) HasMore(totalFound int) bool {
	return totalFound > p.Limit
}

// SelectedFile is the file currently chosen in a session
type SelectedFile struct {
	FileID      uuid.UUID `json:"file_id"`
	Name        string    `json:"name"`
	MimeType    string    `json:"mime_type"`
	Size        int64     `json:"size"`
	StoragePath string    `json:"storage_path"`
}

// WidgetView is everything the page shows for a session
type WidgetView struct {
	FileStatus        string       `json:"file_status"`
	FileStatusVisible bool         `json:"file_status_visible"`
	Loading           bool         `json:"loading"`
	ErrorMessage      string       `json:"error_message"`
	NoResults         bool         `json:"no_results"`
	Cases             []CaseRecord `json:"cases"`
	TotalFound        int          `json:"total_found"`
	ShowMore          bool         `json:"show_more"`
	Searched          bool         `json:"searched"`
}

// ClearResults resets the result region before a new attempt
func (v *WidgetView) ClearResults() {
	v.ErrorMessage = ""
	v.NoResults = false
	v.Cases = nil
	v.TotalFound = 0
	v.ShowMore = false
	v.Searched = false
}

// Value implements driver.Valuer for JSONB
func (v WidgetView) Value() (driver.Value, error) {
	return json.Marshal(v)
}

// Scan implements sql.Scanner for JSONB
func (v *WidgetView) Scan(value interface{}) error {
	if value == nil {
		*v = WidgetView{}
		return nil
	}

	var bytes []byte
	switch val := value.(type) {
	case []byte:
		bytes = val
	case string:
		bytes = []byte(val)
	default:
		*v = WidgetView{}
		return nil
	}

	if len(bytes) == 0 {
		*v = WidgetView{}
		return nil
	}

	return json.Unmarshal(bytes, v)
}

// Session is the widget state of one browser
type Session struct {
	ID           uuid.UUID     `json:"id"`
	SelectedFile *SelectedFile `json:"selected_file,omitempty"`
	Pagination   Pagination    `json:"pagination"`
	LatestToken  int64         `json:"latest_token"`
	View         WidgetView    `json:"view"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// NewSession returns an empty session with the initial display limit
func NewSession(id uuid.UUID) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Pagination: NewPagination(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NextToken issues the token for a new submission
func (s *Session) NextToken() int64 {
	s.LatestToken++
	return s.LatestToken
}

// IsLatest reports whether token belongs to the most recent submission
func (s *Session) IsLatest(token int64) bool {
	return s.LatestToken == token
}
