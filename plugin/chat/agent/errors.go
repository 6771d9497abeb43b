package agent

import "errors"

var (
	// ErrNoDefaultAgent indicates no default agent is contributed for a
	// location. Fatal to the session being initialized, not process-wide.
	ErrNoDefaultAgent = errors.New("no default agent contributed")

	// ErrUnknownAgent indicates an agent ID that is not registered.
	ErrUnknownAgent = errors.New("unknown agent")
)
