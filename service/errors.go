package service

import "errors"

const (
	// MessageNoFileSelected is shown when submit is used without a file
	MessageNoFileSelected = "Please select a file."
	// MessageRequestFailed is shown for any transport failure
	MessageRequestFailed = "Error processing the request."
)

var (
	ErrNoFileSelected = errors.New("no file selected")
	ErrSuperseded     = errors.New("response superseded by a newer submission")
)

// ValidationError is returned when a submission is rejected before any
// request is sent
type ValidationError struct {
	Reason error
}

func (e *ValidationError) Error() string {
	return MessageNoFileSelected
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// BackendError carries the error string returned by the similarity backend
type BackendError struct {
	Message    string
	StatusCode int
}

func (e *BackendError) Error() string {
	return e.Message
}

// TransportError covers network failures, timeouts and unreadable bodies.
// Its message is generic; the cause is kept for logs.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return MessageRequestFailed
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
