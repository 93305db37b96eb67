// Package report describes and renders the keys a cleaner found dirty.
//
// Cleaners produce Records and hand them to a Sink. Sinks never influence
// cleanup: a record is produced whether or not the key is later deleted,
// and ignore patterns only hide records.
package report

import (
	"context"
	"time"
)

// Status says what happened to a key.
type Status string

const (
	// StatusLeftover: dirtied before TestStart, outside any test.
	StatusLeftover Status = "leftover"
	// StatusCleaned: created by a test and deleted at TestEnd.
	StatusCleaned Status = "cleaned"
	// StatusAltered: a baseline key that a test modified.
	StatusAltered Status = "altered"
	// StatusNew: present at suite end but not in the baseline.
	StatusNew Status = "new"
	// StatusDeleted: in the baseline but gone at suite end.
	StatusDeleted Status = "deleted"
	// StatusDirty: currently dirty, seen through ReviewRows.
	StatusDirty Status = "dirty"
	// StatusError: a cleaner failed.
	StatusError Status = "error"
)

// Phase names the lifecycle call that produced a record.
type Phase string

const (
	PhaseSuiteStart Phase = "suite_start"
	PhaseTestStart  Phase = "test_start"
	PhaseTestEnd    Phase = "test_end"
	PhaseSuiteEnd   Phase = "suite_end"
	PhaseResetSuite Phase = "reset_suite"
	PhaseReview     Phase = "review"
)

// Record is one reported key, or one cleaner failure when Status is
// StatusError.
type Record struct {
	Cleaner string        `json:"cleaner"`
	Phase   Phase         `json:"phase"`
	Status  Status        `json:"status"`
	Key     string        `json:"key,omitempty"`
	Type    string        `json:"type,omitempty"`
	TTL     time.Duration `json:"-"`
	Value   string        `json:"value,omitempty"`
	Deleted bool          `json:"deleted"`
	Error   string        `json:"error,omitempty"`
}

// NoExpiry is the TTL of a key without an expiry, or of a missing key.
const NoExpiry time.Duration = -1

// Sink receives records. Implementations must not retain the slice.
type Sink interface {
	Report(ctx context.Context, records []Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, records []Record) error

func (f SinkFunc) Report(ctx context.Context, records []Record) error {
	return f(ctx, records)
}

type discard struct{}

func (discard) Report(context.Context, []Record) error { return nil }

// Discard drops every record. Cleaners skip fetching key details when
// reporting to Discard.
var Discard Sink = discard{}

// Enabled reports whether records sent to s are observed by anyone.
func Enabled(s Sink) bool {
	return s != nil && s != Discard
}
