// Package errcode defines the registry's closed numeric error-code space and
// the semantic error kinds in-process callers see.
package errcode

import "fmt"

// Code is a stable, wire-transported numeric error code.
type Code int64

const (
	OK                         Code = 0
	UNKNOWN                    Code = 1
	MEMORY                     Code = 2
	INVALID_ARGUMENTS          Code = 3
	EOF                        Code = 4
	BPACK_INVALID_FORMAT       Code = 5
	BPACK_WRITE                Code = 6
	BPACK_READ                Code = 7
	BUNPACK_INVALID_DATA       Code = 8
	CHANNEL_BUSY               Code = 9
	CHANNEL_FAILED             Code = 10
	REGISTRY_NO_SUCH_KEY       Code = 11
	REGISTRY_UNKNOWN_IDENTIFIER Code = 12
	REGISTRY_INVALID_STATE     Code = 13
	DATABASE_OPEN              Code = 14
	DATABASE_INVALID           Code = 15
	DATABASE_NO_SUCH_KEY       Code = 16
	DATABASE_IO                Code = 17
	DATABASE_TYPE_MISMATCH     Code = 18
	DATABASE_TYPE_UNKNOWN      Code = 19
	SERVER_INIT                Code = 20
	SERVER_SHUTDOWN             Code = 21
	SERVER_PROCESS             Code = 22
	HMAC_VERIFICATION_FAILED   Code = 23
)

// Kind is the closed set of semantic error kinds exposed to in-process
// callers.
type Kind int

const (
	KindNone Kind = iota
	KindArgument
	KindBusy
	KindFailure
	KindProtocol
	KindNoSuchKey
	KindTypeMismatch
	KindInvalidState
	KindResource
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindArgument:
		return "argument"
	case KindBusy:
		return "busy"
	case KindFailure:
		return "failure"
	case KindProtocol:
		return "protocol"
	case KindNoSuchKey:
		return "no-such-key"
	case KindTypeMismatch:
		return "type-mismatch"
	case KindInvalidState:
		return "invalid-state"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Error is the registry's error type. It carries both the wire code (so the
// dispatcher can transport it in an ERROR packet) and the semantic kind (so
// callers can branch on cause without parsing strings).
type Error struct {
	Code Code
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("registry: %s (code %d)", e.Kind, e.Code)
}

func New(code Code, kind Kind, msg string) *Error {
	return &Error{Code: code, Kind: kind, Msg: msg}
}

func Newf(code Code, kind Kind, format string, args ...interface{}) *Error {
	return &Error{Code: code, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// FromCode maps a numeric wire code (as received in an ERROR packet) back to
// a semantic Kind. Unrecognized codes map to KindUnknown.
func FromCode(code Code) Kind {
	switch code {
	case OK:
		return KindNone
	case INVALID_ARGUMENTS:
		return KindArgument
	case CHANNEL_BUSY:
		return KindBusy
	case CHANNEL_FAILED, HMAC_VERIFICATION_FAILED:
		return KindFailure
	case BPACK_INVALID_FORMAT, BUNPACK_INVALID_DATA:
		return KindProtocol
	case REGISTRY_NO_SUCH_KEY, DATABASE_NO_SUCH_KEY:
		return KindNoSuchKey
	case DATABASE_TYPE_MISMATCH:
		return KindTypeMismatch
	case REGISTRY_INVALID_STATE, DATABASE_INVALID, DATABASE_IO:
		return KindInvalidState
	case MEMORY:
		return KindResource
	default:
		return KindUnknown
	}
}

// ErrNotSupported is returned by channel variants for operations their
// contract does not grant them — any of the four may be absent in a given
// variant.
var ErrNotSupported = New(UNKNOWN, KindFailure, "operation not supported by this channel")
