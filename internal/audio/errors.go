package audio

import (
	"errors"
	"fmt"
)

// ErrorKind classifies errors returned by this package. Use errors.Is to
// check for a specific kind.
type ErrorKind string

const (
	// ErrDevice is returned when enumerating devices fails, when a
	// selected device does not exist, or when there is no default output
	// device.
	ErrDevice ErrorKind = "audio device error"

	// ErrUnsupportedFormat is returned when a device's native sample
	// format can not be converted to float32.
	ErrUnsupportedFormat ErrorKind = "unsupported sample format"

	// ErrStreamBuild is returned when the driver fails to build a capture
	// or render stream.
	ErrStreamBuild ErrorKind = "unable to build audio stream"

	// ErrStreamConfig is returned when the device configuration can not be
	// queried or is invalid.
	ErrStreamConfig ErrorKind = "invalid audio stream config"
)

func (k ErrorKind) Error() string {
	return string(k)
}

// kindError is an error of a specific kind, optionally wrapping a driver
// error.
type kindError struct {
	kind  ErrorKind
	msg   string
	inner error
}

func (ke kindError) Error() string {
	switch {
	case ke.msg != "" && ke.inner != nil:
		return fmt.Sprintf("%s: %s: %v", ke.kind, ke.msg, ke.inner)
	case ke.msg != "":
		return fmt.Sprintf("%s: %s", ke.kind, ke.msg)
	case ke.inner != nil:
		return fmt.Sprintf("%s: %v", ke.kind, ke.inner)
	default:
		return string(ke.kind)
	}
}

func (ke kindError) Unwrap() []error {
	if ke.inner != nil {
		return []error{ke.kind, ke.inner}
	}
	return []error{ke.kind}
}

func makeKindError(kind ErrorKind, msg string, inner error) kindError {
	return kindError{kind: kind, msg: msg, inner: inner}
}

// KindFromError returns the kind of the given error or an empty kind.
func KindFromError(err error) ErrorKind {
	var res ErrorKind
	if errors.As(err, &res) {
		return res
	}
	return ""
}

var errAudioDisabledCompilation = errors.New("audio was disabled during compilation")
