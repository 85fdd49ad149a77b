package execctx

import "errors"

// NotReadyError is returned by proxy operations when the context is not in
// the ready state (stopped, or mid-transition). Clients should retry.
type NotReadyError struct {
	State State
}

func (e *NotReadyError) Error() string {
	return "execution context not ready: state " + e.State.String()
}

// IsNotReady reports whether err indicates the context was not ready.
func IsNotReady(err error) bool {
	var t *NotReadyError
	return errors.As(err, &t)
}
