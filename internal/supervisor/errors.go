package supervisor

import (
	"errors"
	"fmt"
)

// StartupTimeoutError reports that the subprocess never answered the health
// check within the poll budget. Fatal to that start attempt; the caller
// decides whether to retry.
type StartupTimeoutError struct {
	Attempts int
}

func (e *StartupTimeoutError) Error() string {
	return fmt.Sprintf("llama-server not ready after %d health checks", e.Attempts)
}

// IsStartupTimeout reports whether err indicates an exhausted health-check
// budget.
func IsStartupTimeout(err error) bool {
	var t *StartupTimeoutError
	return errors.As(err, &t)
}

// StartupIoError reports that the subprocess could not be spawned at all
// (missing executable, permission error, early exit before ready).
type StartupIoError struct {
	Msg string
	Err error
}

func (e *StartupIoError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *StartupIoError) Unwrap() error { return e.Err }

// IsStartupIo reports whether err indicates a spawn failure.
func IsStartupIo(err error) bool {
	var t *StartupIoError
	return errors.As(err, &t)
}

// ProxyConnectionError reports that the subprocess was unreachable during a
// proxied request. Surfaced per-request; never fatal to the gateway.
type ProxyConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ProxyConnectionError) Error() string {
	return "proxy " + e.Endpoint + ": " + e.Err.Error()
}

func (e *ProxyConnectionError) Unwrap() error { return e.Err }

// IsProxyConnection reports whether err indicates an unreachable subprocess.
func IsProxyConnection(err error) bool {
	var t *ProxyConnectionError
	return errors.As(err, &t)
}
