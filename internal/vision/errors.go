package vision

import "errors"

// Failure taxonomy for a describe call. Callers branch with errors.Is to pick
// a user-facing message; only rate limits and transport failures are ever
// retried, and that happens inside the client.
var (
	ErrAuth          = errors.New("authentication with the description service failed")
	ErrRateLimit     = errors.New("description service rate limit exceeded")
	ErrTransport     = errors.New("could not reach the description service")
	ErrEmptyResponse = errors.New("description service returned no usable answer")
	ErrUpstream      = errors.New("description service reported a processing failure")
)
