package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/keyscrub/internal/command"
)

// CommandEntry is one row of the classification table.
type CommandEntry struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Rule string `json:"rule"`
}

// NewCommandsCommand creates the commands command.
func NewCommandsCommand(rootOpts *RootOptions) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "commands",
		Short: "List classified Redis commands",
		Long: `List every command keyscrub knows, with its kind and key rule.
Commands missing from the list are untracked.

Examples:
  keyscrub commands
  keyscrub commands --kind conditional`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommands(rootOpts, kind, cmd)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only list commands of this kind")
	return cmd
}

func runCommands(opts *RootOptions, kind string, cmd *cobra.Command) error {
	entries := []CommandEntry{}
	for _, name := range command.Names() {
		spec, _ := command.Lookup(name)
		if kind != "" && spec.Kind.String() != kind {
			continue
		}
		entries = append(entries, CommandEntry{Name: name, Kind: spec.Kind.String(), Rule: spec.Rule.String()})
	}
	if kind != "" && len(entries) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown kind %q", kind))
	}

	return opts.formatter(cmd).Success(entries, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tKIND\tRULE")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, e.Kind, e.Rule)
		}
		return tw.Flush()
	})
}
