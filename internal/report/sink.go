package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"golang.org/x/text/unicode/norm"
)

// LogSink writes one log entry per record.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Report(ctx context.Context, records []Record) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, r := range records {
		if r.Status == StatusError {
			logger.ErrorContext(ctx, "cleaner failed",
				"cleaner", r.Cleaner, "phase", r.Phase, "error", r.Error)
			continue
		}
		logger.InfoContext(ctx, "dirty key",
			"cleaner", r.Cleaner,
			"phase", r.Phase,
			"status", r.Status,
			"key", r.Key,
			"type", r.Type,
			"ttl", formatTTL(r.TTL),
			"deleted", r.Deleted,
		)
	}
	return nil
}

// TextSink renders records as an aligned table. Keys are NFC-normalised so
// visually identical keys line up and compare equal in diffs.
type TextSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{w: w}
}

func (s *TextSink) Report(_ context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tw := tabwriter.NewWriter(s.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLEANER\tPHASE\tSTATUS\tKEY\tTYPE\tTTL\tACTION\tVALUE")
	for _, r := range records {
		if r.Status == StatusError {
			fmt.Fprintf(tw, "%s\t%s\t%s\t-\t-\t-\t-\t%s\n",
				r.Cleaner, r.Phase, r.Status, singleLine(r.Error))
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Cleaner, r.Phase, r.Status,
			singleLine(norm.NFC.String(r.Key)),
			dash(r.Type), formatTTL(r.TTL), action(r), singleLine(r.Value))
	}
	return tw.Flush()
}

// JSONSink writes one JSON object per record (JSON Lines).
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

type jsonRecord struct {
	Record
	TTLMillis int64 `json:"ttl_ms"`
}

func (s *JSONSink) Report(_ context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		ttl := int64(-1)
		if r.TTL >= 0 {
			ttl = r.TTL.Milliseconds()
		}
		if err := s.enc.Encode(jsonRecord{Record: r, TTLMillis: ttl}); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
	}
	return nil
}

// Collector keeps every record in memory.
type Collector struct {
	mu      sync.Mutex
	records []Record
}

func (c *Collector) Report(_ context.Context, records []Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, records...)
	return nil
}

// Records returns a copy of everything collected so far.
func (c *Collector) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.records...)
}

// Reset forgets collected records.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = nil
}

// Filter hides records whose key matches any glob pattern (path.Match
// syntax). Error records always pass.
type Filter struct {
	Next     Sink
	Patterns []string
}

// NewFilter validates patterns and wraps next.
func NewFilter(next Sink, patterns ...string) (*Filter, error) {
	for _, p := range patterns {
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("ignore pattern %q: %w", p, err)
		}
	}
	return &Filter{Next: next, Patterns: patterns}, nil
}

// Ignored reports whether key matches an ignore pattern.
func (f *Filter) Ignored(key string) bool {
	for _, p := range f.Patterns {
		if ok, _ := path.Match(p, key); ok {
			return true
		}
	}
	return false
}

func (f *Filter) Report(ctx context.Context, records []Record) error {
	kept := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Status != StatusError && f.Ignored(r.Key) {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == 0 {
		return nil
	}
	return f.Next.Report(ctx, kept)
}

// Tee sends records to every sink and returns the first error.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, records []Record) error {
		var first error
		for _, s := range sinks {
			if err := s.Report(ctx, records); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}

func formatTTL(d time.Duration) string {
	if d < 0 {
		return "-"
	}
	return d.String()
}

func action(r Record) string {
	if r.Deleted {
		return "deleted"
	}
	return "kept"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func singleLine(s string) string {
	if s == "" {
		return "-"
	}
	return strings.NewReplacer("\n", `\n`, "\t", `\t`, "\r", `\r`).Replace(s)
}
