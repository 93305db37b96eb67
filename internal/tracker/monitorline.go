package tracker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/keyscrub/internal/command"
)

// monitorLine is one parsed MONITOR entry:
//
//	1339518083.107412 [0 127.0.0.1:60866] "SET" "key" "value"
type monitorLine struct {
	DB      string
	Addr    string
	Command command.Command
}

func parseMonitorLine(line string) (monitorLine, error) {
	line = strings.TrimPrefix(strings.TrimSpace(line), "+")

	open := strings.IndexByte(line, '[')
	if open < 0 {
		return monitorLine{}, fmt.Errorf("monitor line %q: missing client block", line)
	}
	closing := strings.IndexByte(line[open:], ']')
	if closing < 0 {
		return monitorLine{}, fmt.Errorf("monitor line %q: unterminated client block", line)
	}
	closing += open

	var ml monitorLine
	client := strings.Fields(line[open+1 : closing])
	if len(client) > 0 {
		ml.DB = client[0]
	}
	if len(client) > 1 {
		ml.Addr = client[1]
	}

	tokens, err := splitQuoted(line[closing+1:])
	if err != nil {
		return monitorLine{}, fmt.Errorf("monitor line %q: %w", line, err)
	}
	if len(tokens) == 0 {
		return monitorLine{}, fmt.Errorf("monitor line %q: no command", line)
	}
	args := make([]any, len(tokens))
	for i, tok := range tokens {
		args[i] = tok
	}
	ml.Command = command.FromArgs(args)
	return ml, nil
}

// splitQuoted splits a run of double-quoted, space-separated tokens as
// Redis renders them with sdscatrepr.
func splitQuoted(s string) ([]string, error) {
	var tokens []string
	i := 0
	for i < len(s) {
		if s[i] == ' ' {
			i++
			continue
		}
		if s[i] != '"' {
			return nil, fmt.Errorf("unexpected %q at offset %d", s[i], i)
		}
		end := i + 1
		for end < len(s) && s[end] != '"' {
			if s[end] == '\\' {
				end++
			}
			end++
		}
		if end >= len(s) {
			return nil, fmt.Errorf("unterminated token at offset %d", i)
		}
		tok, err := strconv.Unquote(s[i : end+1])
		if err != nil {
			return nil, fmt.Errorf("token at offset %d: %w", i, err)
		}
		tokens = append(tokens, tok)
		i = end + 1
	}
	return tokens, nil
}
