package command

import (
	"strconv"
	"strings"
)

// Extract returns the keys referenced by a command, in first-seen order and
// without duplicates. Unknown command names yield nil.
func Extract(name string, args []any) []string {
	spec, ok := Lookup(name)
	if !ok {
		return nil
	}
	return extractRule(spec.Rule, args)
}

func extractRule(rule Rule, args []any) []string {
	switch rule {
	case First:
		return keysOf(head(args, 1))
	case FirstTwo:
		return keysOf(head(args, 2))
	case All:
		return keysOf(args)
	case ExcludeFirst:
		if len(args) == 0 {
			return nil
		}
		return keysOf(args[1:])
	case ExcludeLast:
		if len(args) <= 1 {
			return keysOf(args)
		}
		return keysOf(args[:len(args)-1])
	case ExcludeOptions:
		args, _ = splitOptions(args)
		return keysOf(args)
	case Alternate:
		out := make([]any, 0, (len(args)+1)/2)
		for i := 0; i < len(args); i += 2 {
			out = append(out, args[i])
		}
		return keysOf(out)
	case SortStore:
		return sortStore(args)
	case NumKeys:
		if len(args) == 0 {
			return nil
		}
		return countedKeys(args[1:])
	case LeadingNumKeys:
		return countedKeys(args)
	case Second:
		if len(args) < 2 {
			return nil
		}
		return keysOf(args[1:2])
	case GeoStore:
		return geoStore(args)
	case Streams:
		return streamKeys(args)
	default:
		return nil
	}
}

func head(args []any, n int) []any {
	if len(args) < n {
		return args
	}
	return args[:n]
}

// splitOptions separates a trailing options map from the positional arguments.
func splitOptions(args []any) ([]any, map[string]string) {
	if len(args) == 0 {
		return args, nil
	}
	switch opts := args[len(args)-1].(type) {
	case map[string]any:
		flat := make(map[string]string, len(opts))
		for k, v := range opts {
			s, _ := argString(v)
			flat[strings.ToLower(k)] = s
		}
		return args[:len(args)-1], flat
	case map[string]string:
		flat := make(map[string]string, len(opts))
		for k, v := range opts {
			flat[strings.ToLower(k)] = v
		}
		return args[:len(args)-1], flat
	}
	return args, nil
}

// sortStore finds the destination of SORT key ... STORE dest.
func sortStore(args []any) []string {
	positional, opts := splitOptions(args)
	if dest, ok := opts["store"]; ok && dest != "" {
		return []string{dest}
	}
	// Index 0 is the source key, which may itself be named "store".
	for i := 1; i+1 < len(positional); i++ {
		s, ok := argString(positional[i])
		if ok && strings.EqualFold(s, "store") {
			return keysOf(positional[i+1 : i+2])
		}
	}
	return nil
}

// geoStore finds the destination of GEORADIUS ... STORE|STOREDIST dest.
// Without either clause the command only reads.
func geoStore(args []any) []string {
	for i := 1; i+1 < len(args); i++ {
		s, ok := argString(args[i])
		if ok && (strings.EqualFold(s, "store") || strings.EqualFold(s, "storedist")) {
			return keysOf(args[i+1 : i+2])
		}
	}
	return nil
}

// streamKeys handles [GROUP g c] [COUNT n] [BLOCK ms] [NOACK] STREAMS
// key [key ...] id [id ...].
func streamKeys(args []any) []string {
	for i := 0; i < len(args); {
		s, _ := argString(args[i])
		switch strings.ToLower(s) {
		case "group":
			i += 3
		case "count", "block":
			i += 2
		case "noack":
			i++
		case "streams":
			rest := args[i+1:]
			return keysOf(rest[:len(rest)/2])
		default:
			return nil
		}
	}
	return nil
}

// countedKeys handles numkeys key [key ...] arg [arg ...], as found after
// the script of EVAL or at the start of LMPOP.
func countedKeys(args []any) []string {
	if len(args) == 0 {
		return nil
	}
	s, ok := argString(args[0])
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return nil
	}
	rest := args[1:]
	if n > len(rest) {
		n = len(rest)
	}
	return keysOf(rest[:n])
}

func keysOf(args []any) []string {
	if len(args) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(args))
	keys := make([]string, 0, len(args))
	for _, arg := range args {
		s, ok := argString(arg)
		if !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		keys = append(keys, s)
	}
	if len(keys) == 0 {
		return nil
	}
	return keys
}
