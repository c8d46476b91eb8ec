package scheduler

// Action is the classifier's verdict for one failure.
type Action int

const (
	// ActionRetrySameTurn re-issues the submit without re-queueing behind
	// other requests and without touching model state.
	ActionRetrySameTurn Action = iota
	// ActionRetryFreshTurn re-drives the turn from model reconciliation
	// with the current-model belief invalidated.
	ActionRetryFreshTurn
	// ActionTerminal resolves the turn FAILED with the returned kind.
	ActionTerminal
)

func (a Action) String() string {
	switch a {
	case ActionRetrySameTurn:
		return "retry_same_turn"
	case ActionRetryFreshTurn:
		return "retry_fresh_turn"
	case ActionTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// FailureRecord accumulates what the classifier needs about one turn's
// failures. It lives only while the turn is being driven.
type FailureRecord struct {
	TurnID string
	// Attempt counts failed attempts so far, including the one being
	// classified.
	Attempt int
	// FreshRetries counts fresh re-drives already consumed.
	FreshRetries int
	// ContentEmitted is set once any delta reached the client. A turn that
	// already delivered content is never re-driven: a retry would duplicate
	// output the client has seen.
	ContentEmitted bool
	LastKind       ErrorKind
}

// Classifier decides whether a failed turn is re-driven or resolved.
type Classifier struct {
	// MaxAttempts bounds total attempts per turn.
	MaxAttempts int
}

// Classify maps a failure onto an action. For terminal verdicts the second
// return value is the kind surfaced to the client; for retries it is the
// kind that would become terminal if the retry budget were exhausted.
func (c Classifier) Classify(rec FailureRecord) (Action, ErrorKind) {
	switch rec.LastKind {
	case KindCancelled:
		return ActionTerminal, KindCancelled
	case KindParseFailure:
		return ActionTerminal, KindProtocolError
	case KindQuotaExhausted, KindUpstreamError:
		return ActionTerminal, rec.LastKind

	case KindStageTimeout, KindSubmitFailed:
		if rec.ContentEmitted {
			return ActionTerminal, KindUpstreamTimeout
		}
		if rec.Attempt < c.MaxAttempts {
			return ActionRetrySameTurn, rec.LastKind
		}
		return ActionTerminal, rec.LastKind

	case KindSwitchFailed:
		if rec.FreshRetries < 1 && rec.Attempt < c.MaxAttempts {
			return ActionRetryFreshTurn, KindModelUnavailable
		}
		return ActionTerminal, KindModelUnavailable

	case KindStreamStalled:
		if rec.ContentEmitted {
			return ActionTerminal, KindUpstreamTimeout
		}
		if rec.FreshRetries < 1 && rec.Attempt < c.MaxAttempts {
			return ActionRetryFreshTurn, KindUpstreamTimeout
		}
		return ActionTerminal, KindUpstreamTimeout

	default:
		return ActionTerminal, rec.LastKind
	}
}
