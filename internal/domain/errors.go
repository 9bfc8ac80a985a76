package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInsufficientFunds usable balance does not cover the trade.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInsufficientHoldings fewer units held than requested.
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	// ErrStaleAsset the asset or holding was already sold or transferred elsewhere.
	ErrStaleAsset = errors.New("stale asset")
	// ErrNetwork transport failure, including timeouts.
	ErrNetwork = errors.New("network error")
	// ErrServerRejected the server refused the request with a message.
	ErrServerRejected = errors.New("server rejected request")
	// ErrTradeInProgress another submission is in flight for the same trade context.
	ErrTradeInProgress = errors.New("trade already in progress")
)

// InsufficientHoldingsError carries the held count so callers can clamp the quantity.
type InsufficientHoldingsError struct {
	AssetID   string
	Requested int
	Held      int
}

func (e *InsufficientHoldingsError) Error() string {
	return fmt.Sprintf("insufficient holdings for %s: requested %d, held %d", e.AssetID, e.Requested, e.Held)
}

// Is matches ErrInsufficientHoldings.
func (e *InsufficientHoldingsError) Is(target error) bool {
	return target == ErrInsufficientHoldings
}

// NetworkError wraps a transport failure.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

// Unwrap returns the transport error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is matches ErrNetwork.
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// ServerRejectedError a refusal whose message must be shown verbatim.
type ServerRejectedError struct {
	Status  int
	Code    string
	Message string
}

func (e *ServerRejectedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server rejected request (%d %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("server rejected request (%d): %s", e.Status, e.Message)
}

// Is matches ErrServerRejected.
func (e *ServerRejectedError) Is(target error) bool {
	return target == ErrServerRejected
}

// UserAction hint for the UI next to an error message.
type UserAction string

const (
	ActionNone          UserAction = "none"
	ActionDeposit       UserAction = "deposit"
	ActionClampQuantity UserAction = "clamp_quantity"
	ActionReload        UserAction = "reload"
	ActionRetry         UserAction = "retry"
	ActionWait          UserAction = "wait"
)

// UserMessage actionable copy for a trade error.
type UserMessage struct {
	Title  string
	Body   string
	Action UserAction
	// SuggestedQuantity is set with ActionClampQuantity.
	SuggestedQuantity int
}

// UserMessageFor maps an error of the trade taxonomy to a retryable message.
// Nothing here is fatal: unknown errors degrade to a retry prompt.
func UserMessageFor(err error) UserMessage {
	if err == nil {
		return UserMessage{Action: ActionNone}
	}

	var holdingsErr *InsufficientHoldingsError
	var rejected *ServerRejectedError

	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return UserMessage{
			Title:  "Insufficient balance",
			Body:   "Your usable balance does not cover this purchase. Top up your wallet to continue.",
			Action: ActionDeposit,
		}
	case errors.As(err, &holdingsErr):
		return UserMessage{
			Title:             "Not enough units",
			Body:              fmt.Sprintf("You only hold %d unit(s). Sell %d instead?", holdingsErr.Held, holdingsErr.Held),
			Action:            ActionClampQuantity,
			SuggestedQuantity: holdingsErr.Held,
		}
	case errors.Is(err, ErrInsufficientHoldings):
		return UserMessage{
			Title:  "Not enough units",
			Body:   "You do not hold enough units of this BOOM.",
			Action: ActionClampQuantity,
		}
	case errors.Is(err, ErrStaleAsset):
		return UserMessage{
			Title:  "Already sold",
			Body:   "This BOOM was already sold or transferred. Reload to see your current holdings.",
			Action: ActionReload,
		}
	case errors.As(err, &rejected):
		return UserMessage{
			Title:  "Request refused",
			Body:   rejected.Message,
			Action: ActionRetry,
		}
	case errors.Is(err, ErrTradeInProgress):
		return UserMessage{
			Title:  "Please wait",
			Body:   "A trade is already being processed.",
			Action: ActionWait,
		}
	default:
		return UserMessage{
			Title:  "Connection problem",
			Body:   "We could not reach the server. Please try again.",
			Action: ActionRetry,
		}
	}
}
