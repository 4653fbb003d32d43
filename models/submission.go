package models

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionOutcome records how an upload attempt ended
type SubmissionOutcome string

const (
	OutcomeSuccess         SubmissionOutcome = "success"
	OutcomeNoResults       SubmissionOutcome = "no_results"
	OutcomeBackendError    SubmissionOutcome = "backend_error"
	OutcomeTransportError  SubmissionOutcome = "transport_error"
	OutcomeValidationError SubmissionOutcome = "validation_error"
	OutcomeSuperseded      SubmissionOutcome = "superseded"
)

// Submission is one audited upload attempt
type Submission struct {
	ID           uuid.UUID         `json:"id"`
	SessionID    uuid.UUID         `json:"session_id"`
	Token        int64             `json:"token"`
	Filename     string            `json:"filename"`
	DisplayLimit int               `json:"display_limit"`
	Outcome      SubmissionOutcome `json:"outcome"`
	TotalFound   int               `json:"total_found"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}
