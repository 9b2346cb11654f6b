package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline package. Callers branch on these with
// errors.Is to decide between retrying with different providers and giving
// up on the document.
var (
	// ErrOCRUnavailable is returned when no OCR provider produced tokens
	// for any page of the document.
	ErrOCRUnavailable = errors.New("ocr unavailable")

	// ErrExtractionFailed is returned when the backend pass sequence
	// exhausted its retries without a usable response.
	ErrExtractionFailed = errors.New("extraction failed")
)

// StageError wraps a failure with the stage it occurred in. The message
// names the stage and the cause but never includes document content.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage string, sentinel, cause error) error {
	if sentinel != nil {
		cause = fmt.Errorf("%w: %w", sentinel, cause)
	}
	return &StageError{Stage: stage, Err: cause}
}
