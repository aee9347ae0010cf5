package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/openmined/keshig/internal/tracker"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newListCmd())
}

func newListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List files recorded in the index",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the index as JSON")
	return cmd
}

type listReport struct {
	Entries []tracker.Listing `json:"entries"`
	Corrupt []corruptRecord   `json:"corrupt,omitempty"`
}

type corruptRecord struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

func runList(cmd *cobra.Command, asJSON bool) error {
	cmd.SilenceUsage = true
	out := cmd.OutOrStdout()

	engine, err := newEngine(cmd)
	if err != nil {
		return err
	}

	listings, corrupt, err := engine.List()
	if err != nil {
		return err
	}

	if asJSON {
		report := listReport{Entries: listings}
		if report.Entries == nil {
			report.Entries = []tracker.Listing{}
		}
		for _, rec := range corrupt {
			report.Corrupt = append(report.Corrupt, corruptRecord{Line: rec.Line, Reason: rec.Reason})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if len(listings) == 0 {
		fmt.Fprintln(out, "(no entries)")
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, l := range listings {
		size := red.Render("missing")
		if l.Cached {
			size = humanize.IBytes(uint64(l.Size))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", l.Path, size, gray.Render(l.Identifier))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if n := len(corrupt); n > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %d malformed index %s skipped\n",
			yellow.Render("warning:"), n, plural(n, "record", "records"))
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
