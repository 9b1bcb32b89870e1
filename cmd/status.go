package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mihaisavezi/llm-bridge/internal/process"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sidecar service status",
	Long:  `Display the current status of the LLM bridge sidecar.`,
	Run:   runStatus,
}

func runStatus(_ *cobra.Command, _ []string) {
	procMgr := process.NewManager(baseDir, logger)
	cfg := cfgMgr.Get()

	running := procMgr.IsRunning()
	pid := procMgr.ReadPID()
	refs := procMgr.ReadRef()

	color.Blue("Status for %s:", AppName)
	fmt.Printf("  %-15s: %v\n", "Running", running)
	fmt.Printf("  %-15s: %d\n", "PID", pid)

	if cfg != nil {
		fmt.Printf("  %-15s: %s\n", "Endpoint", endpoint(cfg.Host, cfg.Port))
		fmt.Printf("  %-15s: %s\n", "Default", cfg.DefaultProvider)
		fmt.Printf("  %-15s: %d\n", "Providers", len(cfg.Providers))
		fmt.Printf("  %-15s: %s\n", "Cache", cfg.Cache.Backend)
	}

	fmt.Printf("  %-15s: %s\n", "Config Path", cfgMgr.GetPath())
	fmt.Printf("  %-15s: %d\n", "References", refs)
	fmt.Printf("  %-15s: v%s\n", "Version", Version)
}

func endpoint(host string, port int) string {
	return fmt.Sprintf("http://%s:%d", host, port)
}
