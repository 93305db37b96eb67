package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// TransitionError is returned when a lifecycle operation is called from a
// state that does not allow it, such as TestEnd without TestStart.
type TransitionError struct {
	// Cleaner names the cleaner that rejected the call, if known.
	Cleaner string

	Op   Op
	From State

	// Allowed lists the states Op may be called from.
	Allowed []State
}

func (e *TransitionError) Error() string {
	var b strings.Builder
	if e.Cleaner != "" {
		b.WriteString(e.Cleaner)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "illegal transition: %s from %s", e.Op, e.From)
	if len(e.Allowed) > 0 {
		names := make([]string, len(e.Allowed))
		for i, s := range e.Allowed {
			names[i] = s.String()
		}
		fmt.Fprintf(&b, " (allowed from %s)", strings.Join(names, ", "))
	}
	return b.String()
}

// IsTransitionError reports whether err wraps a *TransitionError.
func IsTransitionError(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

// CleanerError attributes an error to the cleaner and operation that
// produced it.
type CleanerError struct {
	Cleaner string
	Op      Op
	Err     error
}

func (e *CleanerError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Cleaner, e.Op, e.Err)
}

func (e *CleanerError) Unwrap() error {
	return e.Err
}
