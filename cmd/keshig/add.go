package main

import (
	"fmt"

	"github.com/openmined/keshig/internal/tracker"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newAddCmd())
}

func newAddCmd() *cobra.Command {
	var prune bool

	cmd := &cobra.Command{
		Use:   "add <path>...",
		Short: "Move modified or untracked files into the cache",
		Long: "For each path that git reports as modified or untracked, moves the file into\n" +
			".git/bin-cache and records it in .git/bin-index.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, args, prune)
		},
	}

	cmd.Flags().BoolVar(&prune, "prune", false, "drop index entries of missing paths whose cached content is also gone")
	return cmd
}

// runAdd handles every path and keeps going after a failure; the command
// fails if any path did.
func runAdd(cmd *cobra.Command, paths []string, prune bool) error {
	cmd.SilenceUsage = true
	out := cmd.OutOrStdout()

	engine, err := newEngine(cmd, tracker.WithPrune(prune))
	if err != nil {
		return err
	}

	failed := 0
	for _, path := range paths {
		if err := cmd.Context().Err(); err != nil {
			return err
		}

		outcome, err := engine.Add(cmd.Context(), path)
		if err != nil {
			if len(paths) == 1 {
				return err
			}
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %s\n", red.Render("failed"), path, err)
			continue
		}

		switch outcome.Action {
		case tracker.ActionRelocated:
			verb := "added"
			if outcome.Replaced {
				verb = "updated"
			}
			fmt.Fprintf(out, "%s %s %s\n", green.Render(verb), outcome.Path, gray.Render(outcome.Entry.Identifier))
		case tracker.ActionUnchanged:
			fmt.Fprintf(out, "%s %s %s\n", yellow.Render("unchanged"), outcome.Path, gray.Render(outcome.Entry.Identifier))
		default:
			fmt.Fprintf(out, "%s %s %s\n", gray.Render("skipped"), outcome.Path, gray.Render(statusLabel(outcome)))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errReported, failed, len(paths))
	}
	return nil
}

func statusLabel(o *tracker.Outcome) string {
	if o.Status == nil || len(o.Status.Codes) == 0 {
		return "(no changes)"
	}
	return fmt.Sprintf("(git status %v)", o.Status.Codes)
}
