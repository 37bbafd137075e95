package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/arkvault/internal/config"
	"github.com/tonimelisma/arkvault/internal/vaulterr"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagServer     string
	flagDataDir    string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
var resolvedCfg *config.Resolved

// newRootCmd builds the root command with all subcommands registered.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "arkvault",
		Short:   "End-to-end encrypted file vault client",
		Long:    "Encrypts files locally, stores them in an arkvault server, and verifies them on the way back.",
		Version: version,
		// We print errors ourselves, with hints.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagServer, "server", "", "vault server URL (overrides server_url)")
	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "directory for tokens and the local catalog")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newRegisterCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newRevokeAllCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newStrengthCmd())
	cmd.AddCommand(newTOTPSetupCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration and stores it in
// resolvedCfg. Only explicitly set flags override lower layers.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{ConfigPath: flagConfigPath}

	if cmd.Flags().Changed("server") {
		cli.ServerURL = &flagServer
	}

	if cmd.Flags().Changed("data-dir") {
		cli.DataDir = &flagDataDir
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates the process logger. The config file sets the baseline
// level; --verbose and --quiet override it. Format "auto" writes text to a
// terminal and JSON otherwise.
func buildLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	format := "auto"

	if resolvedCfg != nil {
		level = parseLevel(resolvedCfg.LogLevel)
		format = resolvedCfg.LogFormat
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !isTerminal(w)) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// errorHint returns a follow-up instruction for err, or "".
func errorHint(err error) string {
	switch {
	case errors.Is(err, vaulterr.ErrSessionExpired):
		return "the account key is locked; run 'arkvault login' to unlock it"
	case errors.Is(err, vaulterr.ErrAuthenticationRequired):
		return "run 'arkvault login'"
	case errors.Is(err, vaulterr.ErrCryptoInit):
		return "the crypto engine could not start; this is not recoverable in this process"
	case errors.Is(err, vaulterr.ErrNetwork):
		return "check the server URL and your connection, then retry"
	case errors.Is(err, errNoServer):
		return "pass --server or set server_url in " + config.DefaultConfigPath()
	default:
		return ""
	}
}

// printError writes err and its hint to w.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)

	if hint := errorHint(err); hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
}
