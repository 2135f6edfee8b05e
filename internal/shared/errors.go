package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthDenied       = fmt.Errorf("authentication denied")
	ErrStateMismatch    = fmt.Errorf("oauth state mismatch")
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrTokenUnavailable = fmt.Errorf("no usable token available")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API errors
	ErrRateLimited     = fmt.Errorf("rate limited")
	ErrServerTransient = fmt.Errorf("transient server error")
	ErrClientRequest   = fmt.Errorf("request rejected")
	ErrInvalidResponse = fmt.Errorf("invalid response")

	// Sync errors
	ErrFileSync = fmt.Errorf("file sync failed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)
