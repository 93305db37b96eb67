package lifecycle

import (
	"fmt"
	"strings"
)

// State is the position of a cleaner in the suite/test lifecycle.
type State int

const (
	Unstarted State = iota
	SuiteActive
	TestActive
	SuiteEnded
)

var stateNames = map[State]string{
	Unstarted:   "unstarted",
	SuiteActive: "suite_active",
	TestActive:  "test_active",
	SuiteEnded:  "suite_ended",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Op is a lifecycle operation.
type Op string

const (
	OpSuiteStart Op = "suite_start"
	OpTestStart  Op = "test_start"
	OpTestEnd    Op = "test_end"
	OpSuiteEnd   Op = "suite_end"
	OpResetSuite Op = "reset_suite"
)

// transitions lists, per operation, the states it may start from and the
// state it leads to.
var transitions = map[Op]struct {
	from []State
	to   State
}{
	OpSuiteStart: {from: []State{Unstarted, SuiteEnded}, to: SuiteActive},
	OpTestStart:  {from: []State{SuiteActive}, to: TestActive},
	OpTestEnd:    {from: []State{TestActive}, to: SuiteActive},
	OpSuiteEnd:   {from: []State{SuiteActive, TestActive}, to: SuiteEnded},
	OpResetSuite: {from: []State{SuiteActive, TestActive}, to: SuiteActive},
}

// Next returns the state op leads to from s, or a *TransitionError.
func Next(s State, op Op) (State, error) {
	t, ok := transitions[op]
	if !ok {
		return s, &TransitionError{Op: op, From: s}
	}
	for _, from := range t.from {
		if from == s {
			return t.to, nil
		}
	}
	return s, &TransitionError{Op: op, From: s, Allowed: t.from}
}

// Strategy selects how dirty keys are handled.
type Strategy int

const (
	// PseudoDelete deletes test-created keys and reports the rest.
	PseudoDelete Strategy = iota
	// ReportOnly reports the same records but deletes nothing.
	ReportOnly
)

func (s Strategy) String() string {
	switch s {
	case PseudoDelete:
		return "pseudo_delete"
	case ReportOnly:
		return "report_only"
	default:
		return "unknown"
	}
}

// ParseStrategy accepts the String form, case-insensitively, with dashes or
// underscores.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ReplaceAll(strings.ToLower(s), "-", "_") {
	case "", "pseudo_delete":
		return PseudoDelete, nil
	case "report_only":
		return ReportOnly, nil
	default:
		return PseudoDelete, fmt.Errorf("unknown strategy %q", s)
	}
}
