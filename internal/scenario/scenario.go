// Package scenario replays scripted Redis traffic through a full cleanup
// lifecycle and checks what the cleaner reported and left behind.
//
// A scenario file seeds the database, then runs tests in order. Each test
// may write fixtures before TestStart and runs its steps between TestStart
// and TestEnd. Expectations are checked per test and at suite end.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario is one scripted suite.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Strategy is a lifecycle strategy name. Empty means pseudo_delete.
	Strategy string `yaml:"strategy,omitempty"`

	// IgnoreKeys hides matching keys from the transcript. They are still
	// cleaned.
	IgnoreKeys []string `yaml:"ignore_keys,omitempty"`

	// Seed runs untracked before the suite starts and forms the baseline.
	Seed []Step `yaml:"seed,omitempty"`

	Tests  []Test       `yaml:"tests"`
	Expect *SuiteExpect `yaml:"expect,omitempty"`
}

// Test is one test of the suite.
type Test struct {
	Name string `yaml:"name"`

	// Fixtures run before TestStart, outside the test.
	Fixtures []Step `yaml:"fixtures,omitempty"`
	Steps    []Step `yaml:"steps"`

	// Reset calls ResetSuite after TestEnd.
	Reset bool `yaml:"reset,omitempty"`

	Expect *TestExpect `yaml:"expect,omitempty"`
}

// Step issues Redis commands. Exactly one field is set.
type Step struct {
	// Do runs one command on the tracked client.
	Do []string `yaml:"do,omitempty"`
	// Tx runs commands in a MULTI/EXEC transaction on the tracked client.
	Tx [][]string `yaml:"tx,omitempty"`
	// Discard queues commands after MULTI and then discards them.
	Discard [][]string `yaml:"discard,omitempty"`
	// Untracked runs one command on the housekeeping client.
	Untracked []string `yaml:"untracked,omitempty"`
	// Suspended runs one command on the tracked client with tracking
	// suspended.
	Suspended []string `yaml:"suspended,omitempty"`
}

// TestExpect lists the keys a test should report, by status.
type TestExpect struct {
	Leftover []string `yaml:"leftover,omitempty"`
	Cleaned  []string `yaml:"cleaned,omitempty"`
	Altered  []string `yaml:"altered,omitempty"`
}

// SuiteExpect checks the suite end report and the final database.
type SuiteExpect struct {
	New     []string `yaml:"new,omitempty"`
	Deleted []string `yaml:"deleted,omitempty"`
	Altered []string `yaml:"altered,omitempty"`

	// Keys maps string keys to their expected final value.
	Keys map[string]string `yaml:"keys,omitempty"`
	// Absent keys must not exist at the end.
	Absent []string `yaml:"absent,omitempty"`
}

// Load reads and validates a scenario file. Unknown fields are rejected.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &s, nil
}

// LoadDir loads every .yaml and .yml file in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]*Scenario, 0, len(names))
	for _, name := range names {
		s, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Validate checks required fields and step shapes.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if len(s.Tests) == 0 {
		return errors.New("tests list is required and must be non-empty")
	}
	for i, step := range s.Seed {
		if err := step.validate(); err != nil {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
	}
	for i, t := range s.Tests {
		if t.Name == "" {
			return fmt.Errorf("tests[%d]: name is required", i)
		}
		for j, step := range t.Fixtures {
			if err := step.validate(); err != nil {
				return fmt.Errorf("tests[%d].fixtures[%d]: %w", i, j, err)
			}
		}
		for j, step := range t.Steps {
			if err := step.validate(); err != nil {
				return fmt.Errorf("tests[%d].steps[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

func (s Step) validate() error {
	set := 0
	for _, ok := range []bool{
		len(s.Do) > 0, len(s.Tx) > 0, len(s.Discard) > 0,
		len(s.Untracked) > 0, len(s.Suspended) > 0,
	} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one of do, tx, discard, untracked, suspended is required (got %d)", set)
	}
	for i, cmd := range slices.Concat(s.Tx, s.Discard) {
		if len(cmd) == 0 {
			return fmt.Errorf("command %d is empty", i)
		}
	}
	return nil
}
