package errors

import "errors"

var (
	// ErrProvider marks a failed or empty response from the embedding
	// provider. Provider failures are retried, then surfaced per item.
	ErrProvider = errors.New("provider")
	// ErrValidation marks a vector or dimension rule violation.
	ErrValidation = errors.New("validation")
	// ErrCodec marks malformed or truncated binary vector data.
	ErrCodec = errors.New("codec")
	// ErrStorage marks a durable-storage I/O failure.
	ErrStorage = errors.New("storage")
	// ErrNotSupported marks an operation a backend cannot perform at all,
	// as opposed to one that failed transiently.
	ErrNotSupported = errors.New("not supported")
	// ErrNotFound marks a missing record.
	ErrNotFound = errors.New("not found")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
