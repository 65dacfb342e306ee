package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuestionsUnavailable indicates the question bank could not be loaded.
	ErrQuestionsUnavailable = errors.New("questions unavailable")
	// ErrNoQuestions is returned when a question source yields an empty set.
	ErrNoQuestions = errors.New("question source returned no questions")
	// ErrOptionNotFound indicates a selected option index is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrIndexOutOfRange is returned when an answer index is outside the question list.
	ErrIndexOutOfRange = errors.New("question index out of range")
	// ErrQuestionMismatch indicates an answer does not belong to the question at its index.
	ErrQuestionMismatch = errors.New("answer does not match question at index")
	// ErrUnanswered is returned when advancing past a question without an answer.
	ErrUnanswered = errors.New("current question has no answer")
	// ErrNoAnswers is returned when submitting without any valid answer.
	ErrNoAnswers = errors.New("no answers to submit")
	// ErrWrongScreen is returned when an action does not apply to the active screen.
	ErrWrongScreen = errors.New("action not available on this screen")
	// ErrSubmissionInFlight is returned when completion is requested twice.
	ErrSubmissionInFlight = errors.New("submission already in flight")
	// ErrStaleResponse marks a response that arrived for a superseded attempt.
	ErrStaleResponse = errors.New("response belongs to a previous attempt")
	// ErrBankNotFound indicates the requested question bank does not exist.
	ErrBankNotFound = errors.New("question bank not found")
	// ErrSnapshotNotFound indicates no context snapshot is stored for a session.
	ErrSnapshotNotFound = errors.New("context snapshot not found")
	// ErrAssistantUnavailable is returned when no assistant endpoint is configured.
	ErrAssistantUnavailable = errors.New("assistant not configured")
	// ErrMalformedPayload indicates a collaborator answered with an unexpected body.
	ErrMalformedPayload = errors.New("malformed payload")
)

// FetchError reports a failure to load the question set.
type FetchError struct {
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch questions: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("fetch questions: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SubmissionError reports a rejected or failed scoring call. Status and Body
// carry the raw response for diagnostics when one was received.
type SubmissionError struct {
	Status int
	Body   string
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("submit answers: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("submit answers: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// AssistantError reports a failed assistant turn.
type AssistantError struct {
	Status int
	Err    error
}

func (e *AssistantError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("assistant: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("assistant: %v", e.Err)
}

func (e *AssistantError) Unwrap() error { return e.Err }
