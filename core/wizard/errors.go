package wizard

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrLastSection       = errors.New("already on the last section")
	ErrSectionOutOfRange = errors.New("section out of range")
	ErrJumpNotAllowed    = errors.New("jumping to this section is not allowed")
	ErrNotLastSection    = errors.New("the form can only be submitted from the last section")
	ErrSubmitInFlight    = errors.New("a submission is already in progress")
)

// ValidationError reports the required fields left empty in a section.
type ValidationError struct {
	Section int
	Label   string
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("section %d (%s): missing required fields: %s", e.Section, e.Label, strings.Join(e.Missing, ", "))
}

// SubmissionError wraps any failure of the submission round trip.
// The draft is left untouched so the submission can be retried.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return "submission failed: " + e.Err.Error()
}

func (e *SubmissionError) Cause() error  { return e.Err }
func (e *SubmissionError) Unwrap() error { return e.Err }
