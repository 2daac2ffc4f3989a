package pipeline

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/samvaad-ai/speech-service/cmd/server/internal/transcript"
)

// ErrorCode classifies a pipeline failure for callers and metrics.
type ErrorCode string

const (
	// VALIDATION_FAILED covers malformed uploads, unsupported audio
	// containers, and invalid timestamps from a provider. Never retried.
	VALIDATION_FAILED ErrorCode = "VALIDATION_FAILED"

	// ARTIFACT_MISSING means the temporary audio artifact could not be
	// persisted or vanished mid-request.
	ARTIFACT_MISSING ErrorCode = "ARTIFACT_MISSING"

	// DIARIZATION_FAILED means the speaker diarization backend failed.
	DIARIZATION_FAILED ErrorCode = "DIARIZATION_FAILED"

	// RECOGNITION_FAILED means the speech recognition backend failed.
	RECOGNITION_FAILED ErrorCode = "RECOGNITION_FAILED"

	// ALIGNMENT_INVARIANT signals a core engine bug (unordered output,
	// result-count mismatch). Fails the request loudly.
	ALIGNMENT_INVARIANT ErrorCode = "ALIGNMENT_INVARIANT"
)

// Error is a classified pipeline failure. All failure paths converge on this
// type at the orchestrator boundary; nothing is swallowed silently and no
// partial transcript accompanies one.
type Error struct {
	Code      ErrorCode `json:"code"`
	Stage     State     `json:"stage"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error code to the external response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case VALIDATION_FAILED:
		return http.StatusBadRequest
	case ARTIFACT_MISSING:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func newError(code ErrorCode, stage State, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Stage:     stage,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewValidationError creates a client-attributable validation failure.
func NewValidationError(stage State, message string, cause error) *Error {
	return newError(VALIDATION_FAILED, stage, message, cause)
}

// NewArtifactError creates a missing-artifact failure.
func NewArtifactError(stage State, message string, cause error) *Error {
	return newError(ARTIFACT_MISSING, stage, message, cause)
}

// NewDiarizationError creates a diarization provider failure.
func NewDiarizationError(cause error) *Error {
	return newError(DIARIZATION_FAILED, StateDiarizing, "speaker diarization failed", cause)
}

// NewRecognitionError creates a recognition provider failure.
func NewRecognitionError(cause error) *Error {
	return newError(RECOGNITION_FAILED, StateRecognizing, "speech recognition failed", cause)
}

// NewInvariantError wraps a core engine contract violation.
func NewInvariantError(cause error) *Error {
	return newError(ALIGNMENT_INVARIANT, StateAligning, "alignment produced an inconsistent transcript", cause)
}

// classifyAlignError maps engine errors to the taxonomy: provider timestamp
// rejections are client-visible validation failures, invariant violations
// are internal bugs.
func classifyAlignError(err error) *Error {
	var valErr *transcript.ValidationError
	if errors.As(err, &valErr) {
		return NewValidationError(StateAligning, "provider returned invalid timestamps", err)
	}
	var invErr *transcript.InvariantError
	if errors.As(err, &invErr) {
		return NewInvariantError(err)
	}
	return NewInvariantError(err)
}

// AsError extracts a classified pipeline error, wrapping anything
// unclassified as a recognition-stage internal failure. Handlers use it to
// translate run failures into HTTP responses.
func AsError(err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return newError(RECOGNITION_FAILED, StateFailed, "internal pipeline failure", err)
}
