package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/keshig/internal/config"
	"github.com/openmined/keshig/internal/index"
	"github.com/openmined/keshig/internal/utils"
	"github.com/openmined/keshig/internal/workspace"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <url>",
		Short: "Set up keshig in the current git repository",
		Long:  "Writes the remote URL to .git/keshig and creates the cache directory and index.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, args[0])
		},
	}
}

func runInit(cmd *cobra.Command, url string) error {
	cmd.SilenceUsage = true
	out := cmd.OutOrStdout()

	ws, err := workspace.Discover(repoDir(cmd))
	if err != nil {
		return err
	}

	cfg, err := config.Init(ws.ConfigPath, url)
	if errors.Is(err, config.ErrAlreadyInitialized) {
		existing, lerr := config.Load(ws.ConfigPath)
		if lerr != nil {
			return lerr
		}
		fmt.Fprintln(out, "keshig already initialized")
		printInit(cmd, ws, existing)
		return nil
	}
	if err != nil {
		return err
	}

	if !utils.CommandAvailable("git") {
		slog.Warn("git not found in PATH, 'keshig add' needs it to read file status")
	}

	if err := ws.Setup(); err != nil {
		return err
	}
	if _, err := index.NewStore(ws.IndexPath).Load(); err != nil {
		return err
	}

	fmt.Fprintln(out, "keshig initialized")
	printInit(cmd, ws, cfg)
	return nil
}

func printInit(cmd *cobra.Command, ws *workspace.Workspace, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Repository: %s\n", green.Render(ws.Root))
	fmt.Fprintf(out, "URL:        %s\n", cyan.Render(cfg.URL))
	fmt.Fprintf(out, "Cache:      %s\n", cyan.Render(ws.CacheDir))
}
