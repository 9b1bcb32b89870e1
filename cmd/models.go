package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mihaisavezi/llm-bridge/internal/capabilities"
	"github.com/mihaisavezi/llm-bridge/internal/llm"
	"github.com/mihaisavezi/llm-bridge/internal/server"
)

var modelsCmd = &cobra.Command{
	Use:   "models [provider]",
	Short: "List providers, or the model families of one provider",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runModels,
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg := cfgMgr.Get()
	registry := server.NewBackend(cfg, logger, nil, nil).Registry
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		color.Blue("Providers:")
		for _, id := range registry.List() {
			d, _ := registry.Catalog().Lookup(id)
			mark := " "
			if cfg.RequestConfig(id).APIKey != "" {
				mark = "*"
			}
			fmt.Fprintf(out, " %s %-12s %-24s %s\n", mark, id, d.DefaultModel(), d.BaseURL)
		}
		fmt.Fprintln(out, "\n* has an API key configured")
		return nil
	}

	id, err := llm.ParseProviderID(args[0])
	if err != nil {
		return err
	}
	d, _ := registry.Catalog().Lookup(id)
	settings, _ := cfg.Provider(id)

	color.Blue("%s (%s)", d.Name, id)
	fmt.Fprintf(out, "  %-15s: %s\n", "Base URL", d.BaseURL)
	fmt.Fprintf(out, "  %-15s: %s\n", "Models", strings.Join(settings.AllowedModels(d.Models), ", "))
	if len(settings.ModelWhitelist) > 0 {
		fmt.Fprintf(out, "  %-15s: %s\n", "Whitelist", strings.Join(settings.ModelWhitelist, ", "))
	}

	fmt.Fprintln(out, "\nModel families:")
	for _, spec := range registry.Adjuster().Table().Entries(id) {
		prefix := spec.Prefix
		if prefix == "" {
			prefix = "(baseline)"
		}
		fmt.Fprintf(out, "  %-28s %s\n", prefix, describeSpec(spec))
	}
	return nil
}

func describeSpec(spec capabilities.ModelSpec) string {
	var parts []string
	if spec.Reasoning != capabilities.ReasoningNone {
		parts = append(parts, "reasoning="+spec.Reasoning.String())
	}
	if spec.AlwaysReasons {
		parts = append(parts, "always-reasons")
	}
	if len(spec.Efforts) > 0 {
		parts = append(parts, "efforts="+strings.Join(spec.Efforts, "|"))
	}
	if len(spec.ThinkingLevels) > 0 {
		parts = append(parts, "levels="+strings.Join(spec.ThinkingLevels, "|"))
	}
	if spec.MaxTemperature > 0 {
		parts = append(parts, fmt.Sprintf("max-temp=%g", spec.MaxTemperature))
	}
	if spec.TokenField != "" {
		parts = append(parts, "token-field="+spec.TokenField)
	}
	for _, c := range spec.Capabilities {
		parts = append(parts, string(c))
	}
	return strings.Join(parts, " ")
}
