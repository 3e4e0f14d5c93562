package domain

import (
	"errors"
	"fmt"
)

// Kind classifies every error the ledger returns to its callers.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidAmount
	KindInvalidRequest
	KindAccountNotFound
	KindSelfTransfer
	KindInsufficientBalance
	KindLimitExceeded
	KindConflict
	KindTimeout
	KindInfrastructure
)

var kindNames = map[Kind]string{
	KindUnknown:             "UNKNOWN",
	KindInvalidAmount:       "INVALID_AMOUNT",
	KindInvalidRequest:      "INVALID_REQUEST",
	KindAccountNotFound:     "ACCOUNT_NOT_FOUND",
	KindSelfTransfer:        "SELF_TRANSFER",
	KindInsufficientBalance: "INSUFFICIENT_BALANCE",
	KindLimitExceeded:       "LIMIT_EXCEEDED",
	KindConflict:            "CONFLICT",
	KindTimeout:             "TIMEOUT",
	KindInfrastructure:      "INFRASTRUCTURE",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KIND(%d)", int(k))
}

// Error is the single error type surfaced by the ledger.
// Op names the operation ("transfer", "top-up", ...), Err carries the cause if any.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidAmount       = &Error{Kind: KindInvalidAmount, Msg: "amount must be positive and within limits"}
	ErrInvalidRequest      = &Error{Kind: KindInvalidRequest, Msg: "invalid request"}
	ErrAccountNotFound     = &Error{Kind: KindAccountNotFound, Msg: "account not found"}
	ErrSelfTransfer        = &Error{Kind: KindSelfTransfer, Msg: "cannot transfer to yourself"}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance, Msg: "insufficient balance"}
	ErrLimitExceeded       = &Error{Kind: KindLimitExceeded, Msg: "limit exceeded"}
	ErrConflict            = &Error{Kind: KindConflict, Msg: "concurrent modification"}
	ErrTimeout             = &Error{Kind: KindTimeout, Msg: "deadline exceeded"}
	ErrInfrastructure      = &Error{Kind: KindInfrastructure, Msg: "ledger unavailable"}
)

// Errors of the account registry and notification inbox, which sit outside the ledger taxonomy.
var (
	ErrUsernameTaken        = errors.New("username already taken")
	ErrNotificationNotFound = errors.New("notification not found")
)

// E builds an error of the given kind.
func E(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap attaches a kind to a lower-level cause.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of err, or KindUnknown if err is not a ledger error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable is true only for transient failures a caller may resubmit unchanged.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindTimeout:
		return true
	}
	return false
}
