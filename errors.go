package lmcs

import "github.com/leandroasilva/lmcs-db/internal/errs"

// ValidationError, CorruptionError, CryptoError, LockError,
// TransactionError, and ConcurrencyError are re-exported at the package
// boundary so callers can use errors.As without importing internal
// packages directly.
type (
	ValidationError  = errs.ValidationError
	CorruptionError  = errs.CorruptionError
	CryptoError      = errs.CryptoError
	LockError        = errs.LockError
	TransactionError = errs.TransactionError
	ConcurrencyError = errs.ConcurrencyError
)

// ErrorOccurrence is one entry of the recent-errors ring buffer surfaced by
// Database.Stats().
type ErrorOccurrence = errs.Occurrence
