package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Store errors
	ErrNotFound   = fmt.Errorf("record not found")
	ErrStoreWrite = fmt.Errorf("store write failed")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrCourseNotFound     = fmt.Errorf("course not found")
	ErrTimeout            = fmt.Errorf("operation timed out")

	// Transfer errors
	ErrTransport = fmt.Errorf("transfer failed")
	ErrCancelled = fmt.Errorf("cancelled")

	// Notification errors
	ErrNotifyFailed = fmt.Errorf("notification delivery failed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
