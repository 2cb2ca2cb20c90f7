package mount

import "fmt"

// Scope selects where the field listens for pointer and resize events
type Scope int

const (
	// ScopeWindow sizes the field to the window and normalizes pointer
	// positions against it
	ScopeWindow Scope = iota
	// ScopeContainer sizes the field to the container, normalizes pointer
	// positions against the container and observes container resizes
	ScopeContainer
)

func (s Scope) String() string {
	switch s {
	case ScopeWindow:
		return "window"
	case ScopeContainer:
		return "container"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// ParseScope parses the configuration spelling of a scope
func ParseScope(s string) (Scope, error) {
	switch s {
	case "", "window":
		return ScopeWindow, nil
	case "container":
		return ScopeContainer, nil
	default:
		return 0, fmt.Errorf("mount: unknown scope %q", s)
	}
}

// State is the lifecycle state of a Controller
type State int

const (
	StateUnmounted State = iota
	StateLoading
	StateActive
	// StateFailed shows the static fallback until Unmount
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnmounted:
		return "unmounted"
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
