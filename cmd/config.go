package cmd

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mihaisavezi/llm-bridge/internal/config"
	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the LLM bridge configuration.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration interactively",
	Long:  `Initialize configuration by prompting for provider details. With --example a starter file reading keys from the environment is written instead.`,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration with secrets masked.`,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Validate the current configuration for errors.`,
	RunE:  runConfigValidate,
}

var configInitExample bool

func init() {
	configInitCmd.Flags().BoolVar(&configInitExample, "example", false, "write a starter config without prompting")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	if configInitExample {
		if err := cfgMgr.CreateExample(); err != nil {
			return fmt.Errorf("failed to write example configuration: %w", err)
		}
		color.Green("Example configuration written to: %s", cfgMgr.GetPath())
		return nil
	}

	color.Blue("LLM Bridge Configuration Setup")
	color.Yellow("Follow the prompts to configure your default provider.")

	reader := bufio.NewReader(os.Stdin)
	ask := func(label string) string {
		fmt.Print(label)
		v, _ := reader.ReadString('\n')
		return strings.TrimSpace(v)
	}

	providerName := ask("\nProvider (e.g., openai, anthropic, gemini, openrouter): ")
	id, err := llm.ParseProviderID(providerName)
	if err != nil {
		return err
	}

	apiKey := ask(fmt.Sprintf("API Key (leave empty to read %s): ", config.APIKeyEnv(id)))
	baseURL := ask("API URL (leave empty for the provider default): ")
	model := ask("Default Model (leave empty for the provider default): ")
	sidecarKey := ask("Sidecar API Key (optional, for authentication): ")

	provider := config.ProviderSettings{
		Name:   string(id),
		APIKey: apiKey,
		URL:    baseURL,
	}
	if model != "" {
		provider.Models = []string{model}
	}

	cfg := &config.Config{
		Host:            config.DefaultHost,
		Port:            config.DefaultPort,
		APIKey:          sidecarKey,
		DefaultProvider: string(id),
		Providers:       []config.ProviderSettings{provider},
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := cfgMgr.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	color.Green("Configuration saved successfully to: %s", cfgMgr.GetPath())
	color.Cyan("Try it with: llmb ask \"hello\"")

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		color.Yellow("No configuration found. Run 'llmb config init' to create one.")
		return nil
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	masked := *cfg
	masked.APIKey = maskString(cfg.APIKey)
	masked.Providers = make([]config.ProviderSettings, len(cfg.Providers))
	for i, p := range cfg.Providers {
		p.APIKey = maskString(p.APIKey)
		masked.Providers[i] = p
	}
	if u, err := url.Parse(masked.Cache.RedisURL); err == nil && masked.Cache.RedisURL != "" {
		masked.Cache.RedisURL = u.Redacted()
	}

	color.Blue("Current Configuration (%s):", cfgMgr.GetPath())
	data, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))

	return nil
}

func runConfigValidate(_ *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		return fmt.Errorf("no configuration found")
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		color.Red("Configuration validation failed:")
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Printf("  - %s\n", line)
		}
		return fmt.Errorf("configuration validation failed")
	}

	for _, p := range cfg.Providers {
		id, _ := llm.ParseProviderID(p.Name)
		if cfg.RequestConfig(id).APIKey == "" && id != llm.ProviderOllama && id != llm.ProviderCustom {
			color.Yellow("  provider %s has no API key (set api_key or %s)", p.Name, config.APIKeyEnv(id))
		}
	}

	color.Green("Configuration is valid!")
	return nil
}

func maskString(s string) string {
	if s == "" {
		return ""
	}
	return llm.MaskSecret(s)
}
