package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mihaisavezi/llm-bridge/internal/config"
	"github.com/mihaisavezi/llm-bridge/internal/handlers"
	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

// requestFlags are shared by ask and inspect.
type requestFlags struct {
	provider    string
	model       string
	system      string
	temperature float64
	maxTokens   int
	reasoning   bool
	effort      string
	budget      int
	level       string
	webSearch   bool
	caching     bool
	stream      bool
}

func addRequestFlags(cmd *cobra.Command, f *requestFlags) {
	flags := cmd.Flags()
	flags.StringVarP(&f.provider, "provider", "p", "", "provider id or alias (default from config)")
	flags.StringVarP(&f.model, "model", "m", "", "model name (default is the provider's first model)")
	flags.StringVarP(&f.system, "system", "s", "", "system prompt")
	flags.Float64VarP(&f.temperature, "temperature", "t", 0, "sampling temperature")
	flags.IntVar(&f.maxTokens, "max-tokens", 0, "output token limit")
	flags.BoolVar(&f.reasoning, "reasoning", false, "ask for reasoning with the model's defaults")
	flags.StringVar(&f.effort, "effort", "", "reasoning effort (low, medium, high)")
	flags.IntVar(&f.budget, "budget", 0, "reasoning token budget")
	flags.StringVar(&f.level, "level", "", "thinking level (minimal, low, medium, high)")
	flags.BoolVar(&f.webSearch, "web-search", false, "enable or disable web search for this call")
	flags.BoolVar(&f.caching, "cache-system", false, "mark the system prompt for provider-side caching")
	flags.BoolVar(&f.stream, "stream", false, "stream the response")
}

// request turns the flags the user actually set into a QueryRequest so the
// config file keeps supplying everything else.
func (f *requestFlags) request(cmd *cobra.Command, messages []llm.Message) handlers.QueryRequest {
	flags := cmd.Flags()
	req := handlers.QueryRequest{
		Provider: f.provider,
		Model:    f.model,
		Messages: messages,
	}

	if flags.Changed("system") {
		req.System = &f.system
	}
	if flags.Changed("temperature") {
		req.Temperature = llm.Float(f.temperature)
	}
	if flags.Changed("max-tokens") {
		req.MaxTokens = llm.Int(f.maxTokens)
	}
	if flags.Changed("web-search") {
		req.WebSearch = llm.Bool(f.webSearch)
	}
	if flags.Changed("cache-system") {
		req.EnableCaching = llm.Bool(f.caching)
	}

	r := llm.Reasoning{Enabled: f.reasoning, Effort: f.effort, BudgetTokens: f.budget, Level: f.level}
	if r.Requested() {
		r.Enabled = true
		req.Reasoning = &r
	}
	return req
}

// resolve produces the call config for req on top of cfg.
func resolve(cfg *config.Config, req handlers.QueryRequest) (llm.Config, error) {
	id, err := cfg.ResolveProvider(req.Provider)
	if err != nil {
		return llm.Config{}, err
	}

	callCfg := req.Apply(cfg.RequestConfig(id))
	if err := cfg.CheckModel(id, callCfg.Model); err != nil {
		return llm.Config{}, err
	}
	return callCfg, nil
}

// readPrompt takes the prompt from args, or from stdin when it is "-" or
// missing.
func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return strings.Join(args, " "), nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt from stdin: %w", err)
	}

	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}
	return prompt, nil
}
