package stories

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/lantern/internal/lookup"
)

var (
	// ErrInvalidSubmission matches every *ValidationError raised for stories.
	ErrInvalidSubmission = errors.New("stories: invalid submission")
	// ErrInvalidNote matches every *ValidationError raised for lantern notes.
	ErrInvalidNote = errors.New("stories: invalid note")
	// ErrNoteRejected matches *ContentRejection.
	ErrNoteRejected = errors.New("stories: note rejected by content filter")
	// ErrInvalidCode is returned for every failed code lookup.
	ErrInvalidCode = lookup.ErrInvalidCode
	// ErrStoryNotFound covers unknown, deleted and non-visible stories.
	ErrStoryNotFound = errors.New("stories: story not found")
	// ErrNoteNotFound indicates an unknown note id.
	ErrNoteNotFound = errors.New("stories: note not found")
	// ErrNoEligibleStory means the lantern pool is empty.
	ErrNoEligibleStory = errors.New("stories: no eligible story")
	// ErrInvalidStatus indicates a status outside the allowed transitions.
	ErrInvalidStatus = errors.New("stories: invalid status")
)

// ValidationError lists every problem found in an input.
type ValidationError struct {
	kind     error
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", e.kind, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == e.kind
}

// ContentRejection carries the content filter reasons for a note.
type ContentRejection struct {
	Reasons []string
}

func (e *ContentRejection) Error() string {
	return fmt.Sprintf("%v: %s", ErrNoteRejected, strings.Join(e.Reasons, "; "))
}

func (e *ContentRejection) Is(target error) bool {
	return target == ErrNoteRejected
}

// ServiceError reports a storage or infrastructure failure. Its code has the
// form "stories.<operation>.<reason>".
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
