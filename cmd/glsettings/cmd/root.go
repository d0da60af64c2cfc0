package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
var version = "dev"

// defaultConfigPath is used when neither --config nor GLSETTINGS_CONFIG is set.
const defaultConfigPath = "configs/config.yaml"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "glsettings",
	Short: "Gray Logic settings CLI",
	Long: `glsettings inspects and changes the settings of a Gray Logic node.

Commands:
  local   - work on the node database directly (daemon stopped)
  remote  - talk to a running glsettingsd over MQTT
  token   - mint a bearer token for the settings API`,
	SilenceUsage: true,
}

// Execute runs the root command until it finishes or a signal arrives.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		printError("glsettings", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $GLSETTINGS_CONFIG or ./configs/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")
	rootCmd.SilenceErrors = true
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads the config named by --config or GLSETTINGS_CONFIG.
// Without either, a missing default file falls back to built-in defaults.
func loadConfig() (*config.Config, error) {
	path, explicit := cfgFile, cfgFile != ""
	if !explicit {
		if env := os.Getenv("GLSETTINGS_CONFIG"); env != "" {
			path, explicit = env, true
		} else {
			path = defaultConfigPath
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger keeps logs on stderr so command output stays clean.
func newLogger(cfg *config.Config) *logging.Logger {
	lc := cfg.Logging
	lc.Format = "text"
	lc.Level = "warn"
	if verbose {
		lc.Level = "debug"
	}
	return logging.NewWithWriter(lc, version, os.Stderr)
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
}
