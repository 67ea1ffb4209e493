package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/smartlecturer/lecturer/internal/api"
	"github.com/smartlecturer/lecturer/internal/config"
	"github.com/smartlecturer/lecturer/internal/home"
	"github.com/smartlecturer/lecturer/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "lecturer",
	Short: "Explain lecture slides page by page with a vision model",
	Long: `Lecturer sends every page of a slide deck to a vision-language model and
lays the generated explanation out beside the original page.

Each output page is three times as wide as the source: the slide on the left,
up to three columns of explanation on the right, and a continuation page when
the text does not fit.

Explanations can be exported as JSON and later recomposed without calling
the model again.`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.lecturer/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "lecturer home directory (default: ~/.lecturer)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn or error",
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Load .env file if present (ignore errors)
		_ = godotenv.Load()
		return api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}

// newLogger writes to stderr so stdout carries only command results.
func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})), nil
}

// env is what every command that touches configuration needs.
type env struct {
	home   *home.Dir
	config *config.Manager
	logger *slog.Logger
}

func loadEnv() (*env, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	mgr, err := config.NewManager(cfgFile, h.Path(), logger)
	if err != nil {
		return nil, err
	}
	if f := mgr.File(); f != "" {
		logger.Debug("config loaded", "file", f)
	}
	return &env{home: h, config: mgr, logger: logger}, nil
}
