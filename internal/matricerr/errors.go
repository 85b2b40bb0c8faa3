// Package matricerr defines the closed error-kind taxonomy shared by every
// Matric component, so callers can branch on failure category without
// depending on any one package's concrete error type.
package matricerr

import (
	"errors"
	"fmt"
)

// Kind is a closed taxonomy of failure categories. Every error that crosses
// a component boundary carries exactly one Kind.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindNotFound
	KindConflict
	KindUnauthorized
	KindTimeout
	KindDatabase
	KindExternal
	KindInference
	KindCrypto
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindTimeout:
		return "timeout"
	case KindDatabase:
		return "database"
	case KindExternal:
		return "external"
	case KindInference:
		return "inference"
	case KindCrypto:
		return "crypto"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// CryptoSubkind further classifies KindCrypto errors. It is deliberately
// coarse: callers outside the crypto package only ever learn the subkind,
// never which internal step failed.
type CryptoSubkind int

const (
	CryptoUnknown CryptoSubkind = iota
	CryptoDecryption
	CryptoInvalidFormat
	CryptoInvalidAddress
	CryptoInvalidKeyfile
)

func (s CryptoSubkind) String() string {
	switch s {
	case CryptoDecryption:
		return "decryption"
	case CryptoInvalidFormat:
		return "invalid_format"
	case CryptoInvalidAddress:
		return "invalid_address"
	case CryptoInvalidKeyfile:
		return "invalid_keyfile"
	default:
		return "unknown"
	}
}

// Error wraps an inner error with a Kind so callers can branch with Is
// without needing sentinel values per package.
type Error struct {
	Kind    Kind
	Crypto  CryptoSubkind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Kind == KindCrypto && e.Crypto != CryptoUnknown {
		if e.Message != "" {
			return fmt.Sprintf("%s (%s): %s", e.Kind, e.Crypto, e.Message)
		}
		return fmt.Sprintf("%s (%s)", e.Kind, e.Crypto)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func new_(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func Invalid(format string, args ...any) *Error    { return new_(KindInvalidInput, format, args...) }
func NotFound(format string, args ...any) *Error   { return new_(KindNotFound, format, args...) }
func Conflict(format string, args ...any) *Error   { return new_(KindConflict, format, args...) }
func Unauthorized(format string, args ...any) *Error {
	return new_(KindUnauthorized, format, args...)
}
func TimeoutErr(format string, args ...any) *Error { return new_(KindTimeout, format, args...) }
func Internal(format string, args ...any) *Error   { return new_(KindInternal, format, args...) }

// Database wraps a lower-level database error, preserving it for
// errors.Is/As chains while tagging it as KindDatabase.
func Database(err error, format string, args ...any) *Error {
	return &Error{Kind: KindDatabase, Message: fmt.Sprintf(format, args...), Err: err}
}

// External wraps a failure from an out-of-process collaborator (an
// inference provider's HTTP call, an external binary, object storage).
func External(err error, format string, args ...any) *Error {
	return &Error{Kind: KindExternal, Message: fmt.Sprintf(format, args...), Err: err}
}

func Inference(err error, format string, args ...any) *Error {
	return &Error{Kind: KindInference, Message: fmt.Sprintf(format, args...), Err: err}
}

// Crypto constructs an opaque cryptographic error. Per policy, the Message
// must never describe which internal step failed.
func Crypto(sub CryptoSubkind, message string) *Error {
	return &Error{Kind: KindCrypto, Crypto: sub, Message: message}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, k Kind) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind == k
	}
	return false
}

// IsCrypto reports whether err is a KindCrypto error of the given subkind.
func IsCrypto(err error, sub CryptoSubkind) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind == KindCrypto && me.Crypto == sub
	}
	return false
}
