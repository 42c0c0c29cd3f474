package apperror

import "errors"

// Reason is a machine-readable error code shared by every transport.
type Reason string

const (
	ReasonNotHost         Reason = "not_host"
	ReasonInvalidPhase    Reason = "invalid_phase_for_operation"
	ReasonDeadPlayer      Reason = "dead_player"
	ReasonDeadTarget      Reason = "dead_target"
	ReasonSelfTarget      Reason = "self_target"
	ReasonRoleMismatch    Reason = "role_mismatch"
	ReasonDuplicateAction Reason = "duplicate_action"
	ReasonNoSuchTarget    Reason = "no_such_target"
	ReasonTooFewPlayers   Reason = "too_few_players"
	ReasonAlreadyStarted  Reason = "already_started"
	ReasonTerminal        Reason = "terminal"
	ReasonStoreConflict   Reason = "store_conflict"

	ReasonSessionNotFound Reason = "session_not_found"
	ReasonRoomFull        Reason = "room_full"
	ReasonUnknownAction   Reason = "unknown_action"
	ReasonInvalidRequest  Reason = "invalid_request"
)

// Error carries a Reason plus a message that can be shown to players.
type Error struct {
	Reason  Reason
	Message string
}

func (that *Error) Error() string {
	return that.Message
}

// Is matches any *Error with the same Reason, so a re-worded error still satisfies errors.Is.
func (that *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}

	return other.Reason == that.Reason
}

// WithMessage returns a copy with a more specific display message.
func (that *Error) WithMessage(msg string) *Error {
	return &Error{Reason: that.Reason, Message: msg}
}

var (
	ErrNotHost         = &Error{ReasonNotHost, "only the host can do this"}
	ErrInvalidPhase    = &Error{ReasonInvalidPhase, "this is not allowed in the current phase"}
	ErrDeadPlayer      = &Error{ReasonDeadPlayer, "dead players cannot perform actions"}
	ErrDeadTarget      = &Error{ReasonDeadTarget, "you cannot target a dead player"}
	ErrSelfTarget      = &Error{ReasonSelfTarget, "you cannot target yourself with this action"}
	ErrRoleMismatch    = &Error{ReasonRoleMismatch, "this action is not valid for your role"}
	ErrDuplicateAction = &Error{ReasonDuplicateAction, "you have already performed an action this phase"}
	ErrNoSuchTarget    = &Error{ReasonNoSuchTarget, "target player does not exist"}
	ErrTooFewPlayers   = &Error{ReasonTooFewPlayers, "not enough players to start"}
	ErrAlreadyStarted  = &Error{ReasonAlreadyStarted, "game has already started"}
	ErrTerminal        = &Error{ReasonTerminal, "game is over"}
	ErrStoreConflict   = &Error{ReasonStoreConflict, "session was modified concurrently, try again"}

	ErrSessionNotFound = &Error{ReasonSessionNotFound, "session not found"}
	ErrRoomFull        = &Error{ReasonRoomFull, "room is full"}
	ErrUnknownAction   = &Error{ReasonUnknownAction, "unknown action"}
	ErrInvalidRequest  = &Error{ReasonInvalidRequest, "invalid request"}
)

// ReasonOf extracts the Reason from an error chain, or "" when there is none.
func ReasonOf(err error) Reason {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Reason
	}

	return ""
}
