package scheduler

import "errors"

// ErrorKind is the closed taxonomy of failures this package produces. Every
// error surfaced to a caller carries exactly one kind; there are no bare
// failures.
type ErrorKind string

const (
	// Admission-time kinds.
	KindQueueFull         ErrorKind = "queue_full"
	KindModelNotAvailable ErrorKind = "model_not_available"
	KindShuttingDown      ErrorKind = "shutting_down"

	// In-turn kinds, inspected by the retry classifier.
	KindSwitchFailed   ErrorKind = "switch_failed"
	KindSubmitFailed   ErrorKind = "submit_failed"
	KindStageTimeout   ErrorKind = "stage_timeout"
	KindStreamStalled  ErrorKind = "stream_stalled"
	KindParseFailure   ErrorKind = "parse_failure"
	KindUpstreamError  ErrorKind = "upstream_error"
	KindQuotaExhausted ErrorKind = "quota_exhausted"
	KindCancelled      ErrorKind = "cancelled"

	// Terminal kinds the classifier maps exhausted retries onto.
	KindModelUnavailable ErrorKind = "model_unavailable"
	KindUpstreamTimeout  ErrorKind = "upstream_timeout"
	KindProtocolError    ErrorKind = "protocol_error"
)

// TurnError is the error type for everything that can go wrong while a
// request is admitted or driven through the browser.
type TurnError struct {
	Kind  ErrorKind
	Msg   string
	Cause error
}

func (e *TurnError) Error() string {
	s := string(e.Kind)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *TurnError) Unwrap() error { return e.Cause }

func newTurnError(kind ErrorKind, msg string, cause error) *TurnError {
	return &TurnError{Kind: kind, Msg: msg, Cause: cause}
}

// KindOf extracts the error kind, or empty string for foreign errors.
func KindOf(err error) ErrorKind {
	var te *TurnError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

func kindIs(err error, kind ErrorKind) bool { return KindOf(err) == kind }

// IsQueueFull reports whether err indicates backpressure (return 429).
func IsQueueFull(err error) bool { return kindIs(err, KindQueueFull) }

// IsModelNotAvailable reports whether the requested model is absent from the
// registry or disabled.
func IsModelNotAvailable(err error) bool { return kindIs(err, KindModelNotAvailable) }

// IsShuttingDown reports whether admission was refused because the scheduler
// is draining for shutdown.
func IsShuttingDown(err error) bool { return kindIs(err, KindShuttingDown) }

// IsQuotaExhausted reports whether the console ran out of free generations.
func IsQuotaExhausted(err error) bool { return kindIs(err, KindQuotaExhausted) }

// IsCancelled reports whether the turn ended because the client gave up.
func IsCancelled(err error) bool { return kindIs(err, KindCancelled) }
