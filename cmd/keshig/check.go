package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/openmined/keshig/internal/tracker"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newCheckCmd())
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report files that should be added to the cache",
		Long: "Walks the working tree and reports files that exceed check.threshold, match a\n" +
			"check.track pattern, or contain binary data. Nothing is moved.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd)
		},
	}
}

func runCheck(cmd *cobra.Command) error {
	cmd.SilenceUsage = true
	out := cmd.OutOrStdout()

	engine, err := newEngine(cmd)
	if err != nil {
		return err
	}

	candidates, err := engine.Check(cmd.Context())
	if err != nil {
		return err
	}

	if len(candidates) == 0 {
		fmt.Fprintln(out, "nothing to add")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, c := range candidates {
		reasons := make([]string, len(c.Reasons))
		for i, r := range c.Reasons {
			reasons[i] = string(r)
		}
		note := ""
		switch {
		case c.Changed:
			note = yellow.Render("indexed, changed")
		case c.Indexed:
			note = gray.Render("indexed")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Path, humanize.IBytes(uint64(c.Size)), strings.Join(reasons, ","), note)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "%d %s to review, add with 'keshig add <path>'\n",
		len(candidates), plural(len(candidates), "file", "files"))
	return nil
}
