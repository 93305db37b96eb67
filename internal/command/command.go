package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Command is a single store operation: a lower-case name and its arguments,
// not including the name itself.
type Command struct {
	Name string
	Args []any
}

// New creates a Command, lower-casing the name.
func New(name string, args ...any) Command {
	return Command{Name: strings.ToLower(name), Args: args}
}

// FromArgs builds a Command from a full argument vector whose first element
// is the command name, as go-redis Cmder.Args returns it.
func FromArgs(argv []any) Command {
	if len(argv) == 0 {
		return Command{}
	}
	name, _ := argString(argv[0])
	return New(name, argv[1:]...)
}

// Spec returns the classification of the command.
func (c Command) Spec() (Spec, bool) {
	return Lookup(c.Name)
}

// Kind returns the command's Kind, or Untracked.
func (c Command) Kind() Kind {
	return Classify(c.Name)
}

// Keys returns the keys the command references.
func (c Command) Keys() []string {
	return Extract(c.Name, c.Args)
}

// String renders the command the way redis-cli echoes it.
func (c Command) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	for _, arg := range c.Args {
		s, _ := argString(arg)
		b.WriteByte(' ')
		b.WriteString(strconv.Quote(s))
	}
	return b.String()
}

// argString renders an argument the way go-redis writes it on the wire.
// The boolean result is false for values that are not wire scalars
// (option maps, slices).
func argString(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case int:
		return strconv.Itoa(v), true
	case int8:
		return strconv.FormatInt(int64(v), 10), true
	case int16:
		return strconv.FormatInt(int64(v), 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint:
		return strconv.FormatUint(uint64(v), 10), true
	case uint8:
		return strconv.FormatUint(uint64(v), 10), true
	case uint16:
		return strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 64), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		if v {
			return "1", true
		}
		return "0", true
	case time.Time:
		return v.Format(time.RFC3339Nano), true
	case time.Duration:
		return strconv.FormatInt(v.Nanoseconds(), 10), true
	case nil:
		return "", true
	case map[string]any, map[string]string:
		return "", false
	case fmt.Stringer:
		return v.String(), true
	default:
		return fmt.Sprint(v), true
	}
}
