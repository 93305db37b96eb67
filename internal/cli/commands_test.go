package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommands_FilterByKind(t *testing.T) {
	out, err := execute(t, "commands", "--kind", "flush_all")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.True(t, strings.HasPrefix(lines[1], "flushall "))
	assert.True(t, strings.HasPrefix(lines[2], "flushdb "))
	assert.True(t, strings.HasPrefix(lines[3], "swapdb "))
}

func TestCommands_JSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "commands")
	require.NoError(t, err)

	var resp struct {
		Data []CommandEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.NotEmpty(t, resp.Data)
	assert.Contains(t, resp.Data, CommandEntry{Name: "set", Kind: "mutating", Rule: "first"})
	assert.Contains(t, resp.Data, CommandEntry{Name: "sadd", Kind: "conditional", Rule: "first"})
}

func TestCommands_UnknownKind(t *testing.T) {
	_, err := execute(t, "commands", "--kind", "bogus")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
