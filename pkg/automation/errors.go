package automation

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the dispatcher can tag its envelope
type Kind string

const (
	KindValidation Kind = "ValidationError"
	KindGeneration Kind = "GenerationError"
	KindDownload   Kind = "DownloadError"
	KindUpload     Kind = "UploadError"
	KindPost       Kind = "PostError"
	KindInternal   Kind = "InternalError"
)

// Error is returned by every Automation operation that can fail
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind carried by err, or KindInternal for anything else
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
