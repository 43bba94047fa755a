package cloudinventory

import "errors"

// ErrCredentialsUnavailable is returned when no API token is configured.
var ErrCredentialsUnavailable = errors.New("cloudinventory: credentials unavailable")

// errTransientFailure is an internal sentinel wrapping the underlying cause
// once the retry budget for an HTTP call is exhausted. It never escapes this
// package; callers see only ErrTransientFailure.
type errTransientFailure struct {
	cause error
}

func (e *errTransientFailure) Error() string {
	return "cloudinventory: transient failure: " + e.cause.Error()
}

func (e *errTransientFailure) Unwrap() error {
	return e.cause
}

// ErrTransientFailure is returned by ListVLANAddresses once the retry budget
// for an underlying HTTP call has been exhausted. Callers at the allocator
// boundary treat this as CloudUnavailable.
var ErrTransientFailure = &errTransientFailure{cause: errors.New("retry budget exhausted")}

func newTransientFailure(cause error) error {
	return &errTransientFailure{cause: cause}
}

func isTransientFailure(err error) bool {
	var t *errTransientFailure
	return errors.As(err, &t)
}
