package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/roach88/keyscrub/internal/report"
)

// SnapshotOptions holds flags for the snapshot command.
type SnapshotOptions struct {
	*RootOptions
	RedisURL string
	Match    string
	Limit    int
}

// SnapshotEntry describes one key.
type SnapshotEntry struct {
	Key       string `json:"key"`
	Type      string `json:"type"`
	TTLMillis int64  `json:"ttl_ms"`
	Value     string `json:"value,omitempty"`
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "List the keys of a Redis database",
		Long: `List every key with its type, TTL and a truncated value, as the
cleaner would report it. Useful to capture a baseline by hand.

Examples:
  keyscrub snapshot
  keyscrub snapshot --match "session:*" --format json
  keyscrub snapshot --redis redis://localhost:6380/1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RedisURL, "redis", "", "redis url (overrides config)")
	cmd.Flags().StringVar(&opts.Match, "match", "", "SCAN MATCH pattern")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "stop after this many keys (0 = all)")

	return cmd
}

func runSnapshot(ctx context.Context, opts *SnapshotOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	url := opts.RedisURL
	if url == "" {
		cfg, err := opts.loadConfig()
		if err != nil {
			return err
		}
		url = cfg.Redis.URL
	}
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid redis url", err)
	}
	rdb := redis.NewClient(ropts)
	defer rdb.Close()

	var keys []string
	iter := rdb.Scan(ctx, 0, opts.Match, 1000).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if opts.Limit > 0 && len(keys) >= opts.Limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return WrapExitError(ExitCommandError, "failed to scan keys", err)
	}
	sort.Strings(keys)
	opts.formatter(cmd).VerboseLog("scanned %d keys", len(keys))

	entries := make([]SnapshotEntry, 0, len(keys))
	for _, key := range keys {
		r, err := report.Fetch(ctx, rdb, report.Record{Key: key})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read key", err)
		}
		if r.Type == "none" {
			// Expired or deleted since the scan.
			continue
		}
		ttl := int64(-1)
		if r.TTL >= 0 {
			ttl = r.TTL.Milliseconds()
		}
		entries = append(entries, SnapshotEntry{Key: key, Type: r.Type, TTLMillis: ttl, Value: r.Value})
	}

	return opts.formatter(cmd).Success(entries, func(w io.Writer) error {
		if len(entries) == 0 {
			fmt.Fprintln(w, "No keys.")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tTYPE\tTTL\tVALUE")
		for _, e := range entries {
			ttl := "-"
			if e.TTLMillis >= 0 {
				ttl = (time.Duration(e.TTLMillis) * time.Millisecond).String()
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Key, e.Type, ttl, e.Value)
		}
		return tw.Flush()
	})
}
