package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/openmined/keshig/internal/config"
	"github.com/openmined/keshig/internal/tracker"
	"github.com/openmined/keshig/internal/utils"
	"github.com/openmined/keshig/internal/vcs"
	"github.com/openmined/keshig/internal/workspace"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

// repoDir is the directory the command acts on: --dir, then KESHIG_DIR,
// then the working directory.
func repoDir(cmd *cobra.Command) string {
	if f := cmd.Flag("dir"); f != nil && f.Changed {
		return f.Value.String()
	}
	if dir := viper.GetString("dir"); dir != "" {
		return dir
	}
	return "."
}

// openWorkspace finds the repository around repoDir and loads its settings,
// falling back to defaults when keshig was never initialized there.
func openWorkspace(cmd *cobra.Command) (*workspace.Workspace, *config.Config, error) {
	ws, err := workspace.Discover(repoDir(cmd))
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadOrDefault(ws.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	return ws, cfg, nil
}

func newEngine(cmd *cobra.Command, opts ...tracker.Option) (*tracker.Engine, error) {
	ws, cfg, err := openWorkspace(cmd)
	if err != nil {
		return nil, err
	}

	git := vcs.NewGit()
	git.Timeout = viper.GetDuration("timeout")

	base, err := utils.ResolvePath(repoDir(cmd))
	if err != nil {
		return nil, err
	}

	return tracker.New(ws, append([]tracker.Option{
		tracker.WithConfig(cfg),
		tracker.WithStatusReporter(git),
		tracker.WithBaseDir(base),
	}, opts...)...), nil
}
