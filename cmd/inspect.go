package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
	"github.com/mihaisavezi/llm-bridge/internal/server"
)

var inspectFlags requestFlags

var inspectCmd = &cobra.Command{
	Use:   "inspect [prompt]",
	Short: "Print the request that would be sent",
	Long: `Build the provider request for a prompt without sending it. Secrets in
headers and the URL are masked. Adjustments made to fit the model's
capabilities are listed on stderr.`,
	Args: cobra.ArbitraryArgs,
	RunE: runInspect,
}

func init() {
	addRequestFlags(inspectCmd, &inspectFlags)
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	prompt, err := readPrompt(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	req := inspectFlags.request(cmd, []llm.Message{{Role: llm.RoleUser, Content: prompt}})

	callCfg, err := resolve(cfg, req)
	if err != nil {
		return err
	}
	callCfg.Features.Streaming = inspectFlags.stream

	env, err := server.NewBackend(cfg, logger, nil, nil).Runner.Inspect(req.Messages, callCfg)
	if err != nil {
		return err
	}

	for _, a := range env.Adjustments {
		color.New(color.FgYellow).Fprintf(os.Stderr, "adjusted %s\n", a)
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
