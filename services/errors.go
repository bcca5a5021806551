package services

import "errors"

// Error taxonomy for the interview turn protocol. Transient model errors are
// retried inside GeminiService; content errors (malformed output, schema
// violations) get one corrective-prompt retry in the interview manager; the
// rest surface immediately with session state untouched.
var (
	// ErrModelUnavailable indicates a network or service failure reaching
	// the generation backend after retries were exhausted.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrModelTimeout indicates the generation call exceeded its deadline.
	ErrModelTimeout = errors.New("model timeout")

	// ErrMalformedModelOutput indicates the model reply carried no parsable
	// fenced JSON block.
	ErrMalformedModelOutput = errors.New("malformed model output")

	// ErrSchemaViolation indicates the fenced JSON parsed but was missing
	// required fields or carried uncoercible values.
	ErrSchemaViolation = errors.New("model output violates schema")

	// ErrEmptyAnswer rejects a submission whose transcript and written text
	// are both empty, before any network call is made.
	ErrEmptyAnswer = errors.New("empty answer")

	// ErrSessionBusy rejects a second submission while one is in flight for
	// the same session.
	ErrSessionBusy = errors.New("session busy")

	// ErrSessionCompleted rejects submissions to a terminal session.
	ErrSessionCompleted = errors.New("session already completed")

	// ErrSessionNotFound is returned when the session does not exist or
	// does not belong to the requesting user.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionStartFailed wraps any inner error during session start.
	ErrSessionStartFailed = errors.New("session start failed")

	// ErrTurnProcessingFailed wraps any inner error while processing an
	// answer; the session is left unchanged so the client can retry.
	ErrTurnProcessingFailed = errors.New("turn processing failed")
)
