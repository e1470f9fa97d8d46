package compiler

import "errors"

// State is the readiness of the transpiler.
type State int32

const (
	Uninitialized State = iota
	Loading
	Ready
	LoadFailed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case LoadFailed:
		return "load_failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == Ready || s == LoadFailed
}

var (
	// ErrNotReady is returned by Compile before the transpiler has loaded.
	ErrNotReady = errors.New("compiler not ready")
	// ErrLoadFailed is returned once loading failed; it is terminal for the
	// bridge's lifetime.
	ErrLoadFailed = errors.New("compiler failed to load")
)
