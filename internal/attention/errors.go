package attention

import "errors"

var (
	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("attention: invalid config")

	// ErrNotInitialized is returned by head projections used before Initialize.
	ErrNotInitialized = errors.New("attention: engine not initialized")
)
