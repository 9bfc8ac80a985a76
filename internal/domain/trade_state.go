package domain

// TradeState state of a trade context. There is no pending state:
// a trade call is a synchronous request/response.
type TradeState int

const (
	TradeStateIdle TradeState = iota
	TradeStateSubmitting
	TradeStateSucceeded
	TradeStateFailed
)

// String returns the string representation of the state
func (s TradeState) String() string {
	switch s {
	case TradeStateIdle:
		return "idle"
	case TradeStateSubmitting:
		return "submitting"
	case TradeStateSucceeded:
		return "succeeded"
	case TradeStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CanTransition reports whether the state machine allows moving from s to next.
func (s TradeState) CanTransition(next TradeState) bool {
	switch s {
	case TradeStateIdle:
		return next == TradeStateSubmitting
	case TradeStateSubmitting:
		return next == TradeStateSucceeded || next == TradeStateFailed
	case TradeStateSucceeded, TradeStateFailed:
		return next == TradeStateIdle
	default:
		return false
	}
}
