package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/keyscrub/internal/command"
)

// ClassifyResult describes how one command is tracked.
type ClassifyResult struct {
	Command string   `json:"command"`
	Known   bool     `json:"known"`
	Kind    string   `json:"kind"`
	Rule    string   `json:"rule"`
	Keys    []string `json:"keys"`
}

// NewClassifyCommand creates the classify command.
func NewClassifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <command> [args...]",
		Short: "Show how a Redis command is tracked",
		Long: `Classify a Redis command and list the keys it would mark dirty.

Arguments after the command name are taken verbatim, so negative numbers
need no quoting.

Examples:
  keyscrub classify SET user:1 ada
  keyscrub classify EVAL "return 1" 2 a b arg
  keyscrub classify LRANGE queue 0 -1`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(rootOpts, args, cmd)
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func runClassify(opts *RootOptions, args []string, cmd *cobra.Command) error {
	argv := make([]any, len(args))
	for i, a := range args {
		argv[i] = a
	}
	c := command.FromArgs(argv)
	spec, known := c.Spec()

	keys := c.Keys()
	if keys == nil {
		keys = []string{}
	}
	res := ClassifyResult{
		Command: c.String(),
		Known:   known,
		Kind:    c.Kind().String(),
		Rule:    spec.Rule.String(),
		Keys:    keys,
	}

	return opts.formatter(cmd).Success(res, func(w io.Writer) error {
		fmt.Fprintln(w, res.Command)
		fmt.Fprintf(w, "kind: %s\n", res.Kind)
		if known {
			fmt.Fprintf(w, "rule: %s\n", res.Rule)
		}
		if len(keys) > 0 {
			fmt.Fprintf(w, "keys: %s\n", strings.Join(keys, " "))
		} else {
			fmt.Fprintln(w, "keys: -")
		}
		return nil
	})
}
