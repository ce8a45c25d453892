package dogtag

import (
	"errors"
	"fmt"
)

// ErrAlgorithmInvalid is returned by key generation when the algorithm has
// no KRA equivalent.
var ErrAlgorithmInvalid = errors.New("dogtag: invalid algorithm passed in")

// NotSupportedError reports an operation the plugin deliberately does not
// implement.
type NotSupportedError struct {
	Reason string
}

func (e *NotSupportedError) Error() string {
	if e.Reason == "" {
		return "dogtag: operation not supported by Dogtag plugin"
	}
	return "dogtag: operation not supported by Dogtag plugin: " + e.Reason
}

func notSupported(format string, args ...any) *NotSupportedError {
	return &NotSupportedError{Reason: fmt.Sprintf(format, args...)}
}
