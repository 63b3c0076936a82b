package main

import "errors"

var (
	// errSessionCredential marks a missing, unparseable, or unauthorized
	// session credential. Startup aborts on it.
	errSessionCredential = errors.New("session credential missing or invalid")
	errInvalidConfig     = errors.New("invalid config")

	errPresenceQuery = errors.New("presence query failed")
	errSend          = errors.New("send failed")
)

// isFatalStartupError reports whether err should abort startup rather than
// be retried.
func isFatalStartupError(err error) bool {
	return errors.Is(err, errSessionCredential) || errors.Is(err, errInvalidConfig)
}
