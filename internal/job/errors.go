package job

import "errors"

var (
	// ErrNotFound is returned when a job id is unknown to the store.
	ErrNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a requested change violates the
	// lifecycle rules. Retrying the identical call can never succeed.
	ErrInvalidTransition = errors.New("invalid job transition")

	// ErrConflict is returned when a concurrent update was serialized ahead
	// of this one. Callers should re-fetch the job and decide against the
	// fresh snapshot.
	ErrConflict = errors.New("job modified concurrently")

	// ErrStorage is returned when the store cannot complete an operation.
	// Transient; callers may retry with backoff.
	ErrStorage = errors.New("job storage unavailable")
)

func IsNotFound(err error) bool          { return errors.Is(err, ErrNotFound) }
func IsInvalidTransition(err error) bool { return errors.Is(err, ErrInvalidTransition) }
func IsConflict(err error) bool          { return errors.Is(err, ErrConflict) }
func IsStorage(err error) bool           { return errors.Is(err, ErrStorage) }
