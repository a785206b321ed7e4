// internal/errs/errs.go
package errs

import "errors"

// Code is a machine-readable failure kind. Clients dispatch on the code,
// never on the human-readable message.
type Code string

const (
	Unauthenticated Code = "UNAUTHENTICATED"

	LobbyNotFound Code = "LOBBY_NOT_FOUND"
	LobbyNotOpen  Code = "LOBBY_NOT_OPEN"
	LobbyNotHost  Code = "LOBBY_NOT_HOST"
	LobbyNotFull  Code = "LOBBY_NOT_FULL"
	AlreadyIn     Code = "ALREADY_IN"
	LobbyFull     Code = "LOBBY_FULL"

	InsufficientFunds Code = "INSUFFICIENT_FUNDS"

	GameNotFound  Code = "GAME_NOT_FOUND"
	GameNotActive Code = "GAME_NOT_ACTIVE"

	TurnNotYours     Code = "TURN_NOT_YOURS"
	DeadlineExceeded Code = "DEADLINE_EXCEEDED"

	EmptyPlay            Code = "EMPTY_PLAY"
	CardNotOwned         Code = "CARD_NOT_OWNED"
	FirstPlayMustHave3S  Code = "FIRST_PLAY_MUST_INCLUDE_3S"
	InvalidCombination   Code = "INVALID_COMBINATION"
	DoesNotBeatLast      Code = "DOES_NOT_BEAT_LAST"
	InvalidCard          Code = "INVALID_CARD"
	MissingRequestID     Code = "MISSING_REQUEST_ID"
	InvalidMode          Code = "INVALID_MODE"
	InvalidStake         Code = "INVALID_STAKE"
	InternalError        Code = "INTERNAL_ERROR"
	UnknownMessageType   Code = "UNKNOWN_MESSAGE_TYPE"
	NotPlayerInGame      Code = "NOT_PLAYER_IN_GAME"
	CodeExhausted        Code = "CODE_EXHAUSTED"
	IdempotencyRequired  Code = "IDEMPOTENCY_KEY_REQUIRED"
	DuplicateIdempotency Code = "DUPLICATE_IDEMPOTENCY_KEY"
)

// Error pairs a Code with an optional message. The message is advisory only.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// New builds an Error for the given code.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// CodeOf unwraps err down to an *Error and returns its code.
// Unrecognized errors map to INTERNAL_ERROR.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return InternalError
}

// Is lets errors.Is match two Errors by code alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}
