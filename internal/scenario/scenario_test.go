package scenario

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/keyscrub/internal/lifecycle"
	"github.com/roach88/keyscrub/internal/report"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestScenarios_Golden(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)
	require.Len(t, scenarios, 4)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			res, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.Empty(t, res.Failures)

			var buf bytes.Buffer
			require.NoError(t, WriteTranscript(&buf, res))
			newGoldie(t).Assert(t, s.Name, buf.Bytes())
		})
	}
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	s := &Scenario{
		Name: "wrong",
		Seed: []Step{{Do: []string{"SET", "A", "1"}}},
		Tests: []Test{{
			Name:   "t",
			Steps:  []Step{{Do: []string{"SET", "B", "1"}}},
			Expect: &TestExpect{Cleaned: []string{"C"}},
		}},
		Expect: &SuiteExpect{
			Keys:   map[string]string{"A": "2", "Z": "1"},
			Absent: []string{"A"},
		},
	}
	require.NoError(t, s.Validate())

	res, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, res.Pass())
	assert.Equal(t, []string{
		"t: cleaned: got [B], want [C]",
		`final: A: got "1", want "2"`,
		`final: Z: missing, want "1"`,
		"final: A: present, want absent",
	}, res.Failures)

	var buf bytes.Buffer
	require.NoError(t, WriteTranscript(&buf, res))
	assert.Contains(t, buf.String(), "FAIL t: cleaned: got [B], want [C]\n")
	assert.Contains(t, buf.String(), "result: fail\n")
}

func TestRun_ServerErrorsAreScript(t *testing.T) {
	s := &Scenario{
		Name: "wrongtype",
		Seed: []Step{{Do: []string{"SET", "str", "x"}}},
		Tests: []Test{{
			Name:  "t",
			Steps: []Step{{Do: []string{"LPUSH", "str", "y"}}, {Do: []string{"GET", "missing"}}},
		}},
	}
	res, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, res.Pass())
	require.Len(t, res.Tests, 1)
	require.Len(t, res.Tests[0].Records, 1, "LPUSH on the wrong type still counts as a write")
	assert.Equal(t, "str", res.Tests[0].Records[0].Key)
}

func TestRun_ExtraSinkAndIgnoreKeys(t *testing.T) {
	s := &Scenario{
		Name: "extra",
		Tests: []Test{{
			Name:  "t",
			Steps: []Step{{Do: []string{"SET", "tmp:1", "x"}}, {Do: []string{"SET", "keep", "x"}}},
		}},
	}
	extra := &report.Collector{}
	var calls []string
	res, err := Run(context.Background(), s,
		WithSink(extra),
		WithIgnoreKeys("tmp:*"),
		WithCleaners(recordingCleaner{calls: &calls}),
	)
	require.NoError(t, err)
	require.Len(t, extra.Records(), 1)
	assert.Equal(t, "keep", extra.Records()[0].Key)
	assert.Equal(t, extra.Records(), res.Tests[0].Records)
	assert.Equal(t, []string{"suite_start", "test_start", "test_end", "suite_end"}, calls)
}

type recordingCleaner struct {
	calls *[]string
}

func (c recordingCleaner) Name() string { return "recording" }

func (c recordingCleaner) SuiteStart(context.Context) error {
	*c.calls = append(*c.calls, "suite_start")
	return nil
}

func (c recordingCleaner) TestStart(context.Context, lifecycle.Strategy) error {
	*c.calls = append(*c.calls, "test_start")
	return nil
}

func (c recordingCleaner) TestEnd(context.Context, lifecycle.Strategy) error {
	*c.calls = append(*c.calls, "test_end")
	return nil
}

func (c recordingCleaner) SuiteEnd(context.Context, lifecycle.Strategy) error {
	*c.calls = append(*c.calls, "suite_end")
	return nil
}

func (c recordingCleaner) ResetSuite(context.Context, lifecycle.Strategy) error {
	*c.calls = append(*c.calls, "reset_suite")
	return nil
}

func TestRun_BadStrategy(t *testing.T) {
	_, err := Run(context.Background(), &Scenario{Name: "x", Strategy: "nuke", Tests: []Test{{Name: "t"}}})
	assert.EqualError(t, err, `unknown strategy "nuke"`)
}

func TestRun_MonitorNeedsURL(t *testing.T) {
	_, err := Run(context.Background(), &Scenario{Name: "x", Tests: []Test{{Name: "t"}}}, WithMonitor())
	assert.EqualError(t, err, "monitor mode needs a redis url")
}

func TestRun_BadIgnorePattern(t *testing.T) {
	_, err := Run(context.Background(), &Scenario{Name: "x", IgnoreKeys: []string{"["}, Tests: []Test{{Name: "t"}}})
	assert.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no name", "tests: [{name: t}]", "name is required"},
		{"no tests", "name: x", "tests list is required"},
		{"unnamed test", "name: x\ntests: [{steps: []}]", "tests[0]: name is required"},
		{"two kinds", "name: x\ntests: [{name: t, steps: [{do: [GET, a], untracked: [GET, b]}]}]", "tests[0].steps[0]: exactly one of"},
		{"empty step", "name: x\nseed: [{}]\ntests: [{name: t}]", "seed[0]: exactly one of"},
		{"empty tx command", "name: x\ntests: [{name: t, steps: [{tx: [[]]}]}]", "command 0 is empty"},
		{"unknown field", "name: x\ntests: [{name: t}]\nasserts: []", "field asserts not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "s.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("testdata/nope.yaml")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadDir_SkipsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("name: b\ntests: [{name: t}]"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("name: a\ntests: [{name: t}]"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	got, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "b", got[1].Name)
}
