package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nao1215/sitemirror/internal/config"
	"github.com/nao1215/sitemirror/internal/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix is the prefix of environment variables that set flags,
// e.g. SITEMIRROR_MAX_PAGES=50.
const envPrefix = "SITEMIRROR"

// NewRootCmd creates the root command for sitemirror.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitemirror",
		Short: "Mirror websites for offline browsing",
		Long: `sitemirror downloads a website with every stylesheet, image, script and
font its pages use, and rewrites the references so the copy can be browsed
offline.

Every flag can also be set through an environment variable named
SITEMIRROR_<FLAG>, e.g. SITEMIRROR_MAX_PAGES=50.

Onion seeds are mirrored through Tor. By default an embedded Tor daemon is
started; use --external-tor to use an existing Tor proxy instead.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	cmd.AddCommand(NewMirrorCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newViper binds the flags of cmd, inherited ones included, to a fresh
// viper instance that also reads SITEMIRROR_* environment variables.
// An explicit flag wins over the environment, which wins over the default.
//
// Design decision: We use a viper instance per command instead of the
// global one so that tests can run commands in parallel.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.InheritedFlags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	return v, nil
}

// setupLogger creates the secure logger of a command run.
func setupLogger(w io.Writer, verbose, jsonFormat bool) *slog.Logger {
	if jsonFormat {
		return log.NewSecureJSONLogger(w, verbose)
	}
	return log.NewSecureLogger(w, verbose)
}

// dbDir returns the history database directory: --db-dir if set, the XDG
// data directory otherwise.
func dbDir(v *viper.Viper) string {
	if dir := v.GetString("db-dir"); dir != "" {
		return dir
	}
	return config.XDGDataDir()
}
