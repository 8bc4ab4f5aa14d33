package discovery

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork is the kind of socket failures during discovery.
	ErrNetwork = errors.New("network error")

	// ErrNoServerFound is returned when no server replied to a discovery
	// request before the timeout.
	ErrNoServerFound = fmt.Errorf("%w: no server found", ErrNetwork)
)
