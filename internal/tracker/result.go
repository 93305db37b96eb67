package tracker

import (
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Result is the real reply a command produced: a decoded value or an error.
type Result struct {
	Value any
	Err   error
}

type changedMarker struct{}

// Changed stands in for a reply that is unknown. It always signals a change,
// so a missing result can only produce an extra repair delete, never a
// missed key.
var Changed = Result{Value: changedMarker{}}

// SignalsChange reports whether a Conditional command with this reply
// modified its keys: boolean true or an integer count above zero.
//
// A reply error from the server (WRONGTYPE, redis.Nil) means the command
// did nothing. Any other error leaves the outcome unknown and counts as a
// change.
func (r Result) SignalsChange() bool {
	if r.Err != nil {
		if errors.Is(r.Err, redis.Nil) {
			return false
		}
		var rerr redis.Error
		if errors.As(r.Err, &rerr) {
			return false
		}
		return true
	}
	return valueSignalsChange(r.Value)
}

func valueSignalsChange(v any) bool {
	switch v := v.(type) {
	case changedMarker:
		return true
	case nil:
		return false
	case bool:
		return v
	case int64:
		return v > 0
	case int:
		return v > 0
	case float64:
		return v > 0
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			// A status reply such as OK.
			return true
		}
		return n > 0
	case error:
		return Result{Err: v}.SignalsChange()
	default:
		return true
	}
}

// resultOf reads the reply a go-redis command was given.
func resultOf(cmd redis.Cmder) Result {
	if err := cmd.Err(); err != nil {
		return Result{Err: err}
	}
	switch c := cmd.(type) {
	case *redis.BoolCmd:
		return Result{Value: c.Val()}
	case *redis.IntCmd:
		return Result{Value: c.Val()}
	case *redis.FloatCmd:
		return Result{Value: c.Val()}
	case *redis.StatusCmd:
		return Result{Value: c.Val()}
	case *redis.StringCmd:
		return Result{Value: c.Val()}
	case *redis.Cmd:
		return Result{Value: c.Val()}
	case *redis.SliceCmd:
		return Result{Value: c.Val()}
	default:
		return Changed
	}
}

// execResults turns the reply of an EXEC issued through Do into per-command
// results. A nil slice means the transaction produced no results at all.
func execResults(res Result) []Result {
	if res.Err != nil {
		return nil
	}
	vals, ok := res.Value.([]any)
	if !ok {
		return nil
	}
	out := make([]Result, len(vals))
	for i, v := range vals {
		if err, ok := v.(error); ok {
			out[i] = Result{Err: err}
			continue
		}
		out[i] = Result{Value: v}
	}
	return out
}
