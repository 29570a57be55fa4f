// Package emoji provides the status symbols used in CLI output.
package emoji

const (
	// Success marks a completed operation or a healthy state.
	Success = "✓"

	// Stop marks a shutdown or a blocking failure.
	Stop = "✗"
)
