// Package kderrors classifies the error taxonomy that KeeperData's
// subsystems surface, in the sentinel-plus-wrapper idiom the teacher
// uses for storage-error classification.
package kderrors

import (
	"errors"
	"fmt"
)

// Crypto error kinds.
var (
	ErrBadCredentials = errors.New("crypto: bad credentials (invalid padding on decrypt)")
	ErrCryptoIO       = errors.New("crypto: stream io error")
)

// Storage error kinds.
var (
	ErrStorageNotFound   = errors.New("storage: not found")
	ErrStorageConflict   = errors.New("storage: conflict")
	ErrStorageTransient  = errors.New("storage: transient failure")
	ErrStoragePermanent  = errors.New("storage: permanent failure")
)

// Query error kinds.
var (
	ErrBadExpression   = errors.New("query: bad filter expression")
	ErrBadRange        = errors.New("query: bad range")
	ErrStoreUnavailable = errors.New("query: store unavailable")
)

// Cross-cutting kinds.
var (
	ErrDomain            = errors.New("domain rule violation")
	ErrNotFound          = errors.New("resource not found")
	ErrLockLostOwnership = errors.New("lock: lost ownership")
	ErrTimeout           = errors.New("operation timed out")
)

// KeeperError wraps an underlying error with a classification kind,
// the operation, and an optional subject (file key, collection, etc).
// Mirrors the teacher's StorageError{Kind, Op, Path, Err} shape.
type KeeperError struct {
	Kind    error
	Op      string
	Subject string
	Err     error
}

func (e *KeeperError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Subject, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As chain traversal.
func (e *KeeperError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel kind.
func (e *KeeperError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// New wraps err with a classification kind, operation, and subject.
// Returns nil if err is nil.
func New(kind error, op, subject string, err error) error {
	if err == nil {
		return nil
	}
	return &KeeperError{Kind: kind, Op: op, Subject: subject, Err: err}
}
