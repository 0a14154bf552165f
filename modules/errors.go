package modules

import "github.com/NebulousLabs/errors"

// The error taxonomy of the system. Workers and managers classify failures
// by extending them with one of these sentinels; callers test with the Is*
// helpers rather than comparing errors directly.
var (
	// ErrRetryable marks transient failures: transport drops, timeouts,
	// server overload. The queue absorbs these until retries exhaust.
	ErrRetryable = errors.New("retryable failure")

	// ErrPermanent marks failures that will not succeed on retry, such as
	// an article exceeding the relay's size limit.
	ErrPermanent = errors.New("permanent failure")

	// ErrIntegrity marks data that failed an AEAD tag or hash check.
	ErrIntegrity = errors.New("integrity failure")

	// ErrAccessDenied is returned when credentials cannot unwrap a share.
	// No distinction is made between an unknown user and a wrong share.
	ErrAccessDenied = errors.New("access denied")

	// ErrNotFound is returned when an article or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrQuotaExceeded is returned when admission control rejects new work.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrInvalidFormat is returned for malformed wire data or invalid
	// publish parameters.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrCancelled is returned when an operation is abandoned due to
	// shutdown or an expired deadline. Tasks remain recoverable.
	ErrCancelled = errors.New("operation cancelled")
)

// Retryable classifies an error as retryable.
func Retryable(err error) error { return errors.Extend(err, ErrRetryable) }

// Permanent classifies an error as permanent.
func Permanent(err error) error { return errors.Extend(err, ErrPermanent) }

// IsRetryable returns true if the error is classified as retryable.
func IsRetryable(err error) bool { return errors.Contains(err, ErrRetryable) }

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool { return errors.Contains(err, ErrPermanent) }

// IsIntegrity returns true if the error indicates an integrity failure.
func IsIntegrity(err error) bool { return errors.Contains(err, ErrIntegrity) }

// IsAccessDenied returns true if the error indicates denied access.
func IsAccessDenied(err error) bool { return errors.Contains(err, ErrAccessDenied) }

// IsNotFound returns true if the error indicates a missing article or
// record.
func IsNotFound(err error) bool { return errors.Contains(err, ErrNotFound) }

// IsInvalidFormat returns true if the error indicates malformed data.
func IsInvalidFormat(err error) bool { return errors.Contains(err, ErrInvalidFormat) }

// IsCancelled returns true if the error indicates a cancelled operation.
func IsCancelled(err error) bool { return errors.Contains(err, ErrCancelled) }
