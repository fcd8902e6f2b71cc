// Package casserr defines the error taxonomy shared across the storage
// engine so callers (the CLI, a future request router) can branch on error
// kind without depending on which package produced the error.
package casserr

import "errors"

// Sentinel errors. Wrap with fmt.Errorf("...: %w", ErrX) at the call site;
// use errors.Is to test, or Kind to recover the ErrorKind for mapping to an
// external fault code.
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrInvalidRange   = errors.New("invalid range")
	ErrCorruption     = errors.New("corruption")
	ErrTransaction    = errors.New("transaction failed")
	ErrIo             = errors.New("io error")
	ErrAuthentication = errors.New("authentication failed")
)

// ErrorKind classifies an error for callers that need a stable, language-
// independent category (e.g. to pick an S3 fault code) without inspecting
// error text.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindNotFound
	KindAlreadyExists
	KindInvalidRange
	KindCorruption
	KindTransaction
	KindIo
	KindAuthentication
)

// Kind classifies err by walking its wrap chain against the sentinels
// above. Errors that don't match any sentinel classify as KindOther.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindOther
	// Authentication is checked before NotFound: an unknown access key
	// wraps both sentinels (it is also, incidentally, a missing index
	// entry), but callers need the narrower Authentication classification.
	case errors.Is(err, ErrAuthentication):
		return KindAuthentication
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyExists):
		return KindAlreadyExists
	case errors.Is(err, ErrInvalidRange):
		return KindInvalidRange
	case errors.Is(err, ErrCorruption):
		return KindCorruption
	case errors.Is(err, ErrTransaction):
		return KindTransaction
	case errors.Is(err, ErrIo):
		return KindIo
	default:
		return KindOther
	}
}
