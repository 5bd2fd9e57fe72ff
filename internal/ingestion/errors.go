package ingestion

import "errors"

// ErrorClass buckets an error into the error taxonomy. The worker uses it
// to tell transient claim errors apart from all others.
type ErrorClass int

const (
	// ErrorClassUnknown covers any error not otherwise classified; routed
	// to job-level failWithRetry.
	ErrorClassUnknown ErrorClass = iota
	// ErrorClassConfiguration is a missing or invalid provider setting.
	ErrorClassConfiguration
	// ErrorClassTransient is a database-starting-up / connection-refused
	// condition. Never consumes an attempt.
	ErrorClassTransient
)

var (
	// ErrConfiguration wraps configuration-error causes.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransient wraps transient-infrastructure causes.
	ErrTransient = errors.New("transient infrastructure error")
	// ErrJobNotFound signals a claim or status write against a job row
	// that no longer exists.
	ErrJobNotFound = errors.New("job not found")
	// ErrPathEscapesRoot signals a storedPath that resolves outside the
	// configured upload root.
	ErrPathEscapesRoot = errors.New("stored path escapes upload root")
	// ErrUnsupportedFormat signals a file extension the active extractor
	// does not handle.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

// ClassifyError inspects err for the sentinel markers the infrastructure
// layers attach and returns the matching ErrorClass.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	if errors.Is(err, ErrConfiguration) {
		return ErrorClassConfiguration
	}
	if errors.Is(err, ErrTransient) {
		return ErrorClassTransient
	}
	return ErrorClassUnknown
}
