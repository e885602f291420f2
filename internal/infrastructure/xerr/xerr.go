// Package xerr classifies errors that cross the exchange/reconciliation
// boundary so monitor loops can branch without type-switching on raw errors.
package xerr

import "fmt"

// Kind is the taxonomy from spec §7.
type Kind int

const (
	KindUnknown Kind = iota
	KindRateLimited
	KindTransient
	KindInvalidResponse
	KindNotFound
	KindConfig
	KindBotExecution
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "RateLimited"
	case KindTransient:
		return "Transient"
	case KindInvalidResponse:
		return "InvalidResponse"
	case KindNotFound:
		return "NotFound"
	case KindConfig:
		return "Config"
	case KindBotExecution:
		return "BotExecution"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying error with a Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind, returning nil if err is nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// RateLimited wraps err as KindRateLimited.
func RateLimited(op string, err error) error { return New(KindRateLimited, op, err) }

// Transient wraps err as KindTransient.
func Transient(op string, err error) error { return New(KindTransient, op, err) }

// InvalidResponse wraps err as KindInvalidResponse.
func InvalidResponse(op string, err error) error { return New(KindInvalidResponse, op, err) }

// NotFound wraps err as KindNotFound.
func NotFound(op string, err error) error { return New(KindNotFound, op, err) }

// Config wraps err as KindConfig.
func Config(op string, err error) error { return New(KindConfig, op, err) }

// KindOf extracts the Kind from err, or KindUnknown if err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err (or anything it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// As walks err's Unwrap chain and reports the first *Error it finds,
// storing it in target. It does not use the stdlib errors package.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
