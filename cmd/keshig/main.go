package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/keshig/internal/utils"
	"github.com/openmined/keshig/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = newRootCmd()

// closes the log file opened by setupLogging, if any
var closeLog = func() error { return nil }

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keshig",
		Short: "Keep large binary files out of git history",
		Long: "keshig moves large or binary files of a git working tree into a local cache\n" +
			"under .git/bin-cache and records them in .git/bin-index.",
		Version:       version.Detailed(),
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadSettings(cmd)
		},
		RunE: runRoot,
	}

	cmd.PersistentFlags().SortFlags = false
	cmd.PersistentFlags().StringP("dir", "C", ".", "run as if started in this directory")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().String("log-file", "", "also write logs to this file")
	cmd.PersistentFlags().Duration("timeout", 0, "timeout for each git subprocess (0 disables)")

	cmd.Flags().SortFlags = false
	cmd.Flags().String("init", "", "same as 'keshig init <url>'")
	cmd.Flags().StringArray("add", nil, "same as 'keshig add <path>', may be repeated")
	cmd.Flags().Bool("list", false, "same as 'keshig list'")
	cmd.Flags().Bool("check", false, "same as 'keshig check'")
	cmd.MarkFlagsMutuallyExclusive("init", "add", "list", "check")

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if cerr := closeLog(); cerr != nil {
		fmt.Fprintf(os.Stderr, "%s: close log file: %s\n", red.Render("WARN"), cerr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", red.Render("ERROR"), err)
		stop()
		os.Exit(1)
	}
}

// runRoot dispatches the flag forms (--init, --add, --list, --check) to the
// same handlers as the subcommands.
func runRoot(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	switch {
	case flags.Changed("init"):
		url, _ := flags.GetString("init")
		return runInit(cmd, url)
	case flags.Changed("add"):
		paths, _ := flags.GetStringArray("add")
		return runAdd(cmd, append(paths, args...), false)
	case flags.Changed("list"):
		return runList(cmd, false)
	case flags.Changed("check"):
		return runCheck(cmd)
	}

	if len(args) > 0 {
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd.Help()
}

func loadSettings(cmd *cobra.Command) error {
	for _, name := range []string{"dir", "verbose", "log-file", "timeout"} {
		if err := viper.BindPFlag(name, cmd.Flag(name)); err != nil {
			return err
		}
	}

	viper.SetEnvPrefix("KESHIG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := setupLogging(os.Stderr, viper.GetBool("verbose"), viper.GetString("log-file")); err != nil {
		return err
	}
	slog.Debug("keshig", "version", version.Short(), "command", cmd.Name())
	return nil
}

// setupLogging installs a tint handler on w and, when logFile is set, tees
// every record at debug level into that file.
func setupLogging(w io.Writer, verbose bool, logFile string) error {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	if os.Getenv("NO_COLOR") != "" {
		noColor = true
	}

	var handler slog.Handler = tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	})

	if logFile != "" {
		if err := utils.EnsureParent(logFile); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		closeLog = file.Close

		fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
		handler = utils.NewMultiLogHandler(handler, fileHandler)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// errReported is returned once per-path failures have been printed.
var errReported = errors.New("one or more paths failed")
