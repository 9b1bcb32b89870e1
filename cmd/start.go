package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mihaisavezi/llm-bridge/internal/process"
	"github.com/mihaisavezi/llm-bridge/internal/server"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sidecar service",
	Long:  `Start the LLM bridge sidecar in the foreground. The configuration file is watched and reloaded on change.`,
	RunE:  runStart,
}

func runStart(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	color.Green("Starting %s v%s...", AppName, Version)
	logger.Info("Starting server",
		"host", cfg.Host,
		"port", cfg.Port,
		"providers", len(cfg.Providers),
		"cache", cfg.Cache.Backend,
	)

	// Setup process management
	procMgr := process.NewManager(baseDir, logger)
	if err := procMgr.WritePID(); err != nil {
		return err
	}
	defer procMgr.CleanupPID()

	srv, err := server.New(cfgMgr, logger)
	if err != nil {
		return err
	}
	return srv.Start()
}
