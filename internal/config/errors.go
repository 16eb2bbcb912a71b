package config

import "fmt"

// ErrorKind says which loading phase rejected the configuration.
type ErrorKind int

const (
	LoadError ErrorKind = iota
	InterpolationError
	ValidationError
)

func (k ErrorKind) String() string {
	switch k {
	case LoadError:
		return "load"
	case InterpolationError:
		return "interpolation"
	case ValidationError:
		return "validation"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned for any configuration problem. It is always fatal and
// happens before any process starts.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s error: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("config %s error: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
