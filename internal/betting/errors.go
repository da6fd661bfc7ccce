package betting

import "errors"

// Code is the machine-readable reason a request was rejected.
type Code string

const (
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeInvalidStake       Code = "INVALID_STAKE"
	CodeSelfBet            Code = "SELF_BET"
	CodeNotFound           Code = "NOT_FOUND"
	CodeOwnerMismatch      Code = "OWNER_MISMATCH"
	CodeAlreadyCompleted   Code = "ALREADY_COMPLETED"
	CodeExercisePast       Code = "EXERCISE_PAST"
	CodeDuplicateBet       Code = "DUPLICATE_BET"
	CodeForbidden          Code = "FORBIDDEN"
	CodeBlockedByActive    Code = "BLOCKED_BY_ACTIVE_BETS"
	CodeToggleWindowClosed Code = "TOGGLE_WINDOW_CLOSED"
	CodeSlotTaken          Code = "SLOT_TAKEN"
)

// RejectionError is a user-facing refusal. It is never retried.
type RejectionError struct {
	Code Code
	msg  string
}

func (e *RejectionError) Error() string { return e.msg }

// Is matches any RejectionError with the same code, so a detailed
// INVALID_INPUT still satisfies errors.Is(err, ErrInvalidInput).
func (e *RejectionError) Is(target error) bool {
	t, ok := target.(*RejectionError)
	return ok && t.Code == e.Code
}

func reject(code Code, msg string) *RejectionError {
	return &RejectionError{Code: code, msg: msg}
}

var (
	ErrInvalidInput       = reject(CodeInvalidInput, "targetUserId, scheduleId, prediction and amount are required")
	ErrInvalidStake       = reject(CodeInvalidStake, "bet amount must be between 50 and 1000")
	ErrSelfBet            = reject(CodeSelfBet, "cannot bet on your own exercise")
	ErrNotFound           = reject(CodeNotFound, "schedule not found")
	ErrOwnerMismatch      = reject(CodeOwnerMismatch, "schedule does not belong to target user")
	ErrAlreadyCompleted   = reject(CodeAlreadyCompleted, "cannot bet on completed exercise")
	ErrExercisePast       = reject(CodeExercisePast, "cannot bet on past exercises")
	ErrDuplicateBet       = reject(CodeDuplicateBet, "you already have an active bet on this exercise")
	ErrForbidden          = reject(CodeForbidden, "schedule belongs to another user")
	ErrBlockedByActive    = reject(CodeBlockedByActive, "cannot delete schedule with active bets")
	ErrToggleWindowClosed = reject(CodeToggleWindowClosed, "completion can only be changed on or before the exercise day")
	ErrSlotTaken          = reject(CodeSlotTaken, "a schedule already exists for this date and time slot")
)

// ErrAlreadyResolved is returned by Resolve for a bet that is not ACTIVE.
var ErrAlreadyResolved = errors.New("betting: bet already resolved")

// CodeOf extracts the rejection code from err, if any.
func CodeOf(err error) (Code, bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return "", false
}
