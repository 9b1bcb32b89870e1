package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mihaisavezi/llm-bridge/internal/config"
)

const (
	AppName     = "llm-bridge"
	Version     = "0.3.0"
	LogFilename = "llmb.log"
)

var (
	logger  *slog.Logger
	homeDir string
	baseDir string
	cfgMgr  *config.Manager
	logSink io.Closer
)

func init() {
	// Initialize logger
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger = slog.New(handler)

	// Setup directories
	var err error
	homeDir, err = os.UserHomeDir()
	if err != nil {
		logger.Error("Failed to get home directory", "error", err)
		os.Exit(1)
	}

	baseDir = filepath.Join(homeDir, "."+AppName)
	if dir := os.Getenv("LLMB_HOME"); dir != "" {
		baseDir = dir
	}
	cfgMgr = config.NewManager(baseDir)
}

var rootCmd = &cobra.Command{
	Use:     "llmb",
	Short:   "LLM Bridge - one request shape for many model providers",
	Long:    `Builds, sends and decodes requests for OpenAI-compatible, Anthropic and Gemini providers, either directly from the CLI or through a local sidecar service.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		logFile, _ := cmd.Flags().GetBool("log-file")
		return setupLogging(verbose, logFile)
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if logSink != nil {
			logSink.Close()
		}
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolP("log-file", "l", false, "also write logs to "+LogFilename+" in the config directory")

	// Add subcommands
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(configCmd)
}

// setupLogging sends logs to stderr so stdout carries only answers.
func setupLogging(verbose, logFile bool) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var out io.Writer = os.Stderr
	if logFile {
		if err := os.MkdirAll(baseDir, 0750); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(baseDir, LogFilename), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logSink = f
		out = io.MultiWriter(os.Stderr, f)
	}

	logger = slog.New(slog.NewTextHandler(out, opts))
	cfgMgr.SetLogger(logger)
	return nil
}

func ensureConfigExists() error {
	if !cfgMgr.Exists() {
		color.Yellow("Configuration not found")
		fmt.Fprintln(os.Stderr, "Please run 'llmb config init' to set up your configuration")
		return fmt.Errorf("configuration required")
	}
	return nil
}

// loadConfig loads and validates the configuration file.
func loadConfig() (*config.Config, error) {
	if err := ensureConfigExists(); err != nil {
		return nil, err
	}
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
