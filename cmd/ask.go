package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mihaisavezi/llm-bridge/internal/config"
	"github.com/mihaisavezi/llm-bridge/internal/handlers"
	"github.com/mihaisavezi/llm-bridge/internal/llm"
	"github.com/mihaisavezi/llm-bridge/internal/process"
	"github.com/mihaisavezi/llm-bridge/internal/providers"
	"github.com/mihaisavezi/llm-bridge/internal/query"
	"github.com/mihaisavezi/llm-bridge/internal/server"
)

var (
	askFlags         requestFlags
	askViaServer     bool
	askShowReasoning bool
)

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send a prompt to a provider",
	Long: `Send a prompt to a provider and print the answer. With no prompt, or a
prompt of "-", the prompt is read from stdin.

With --via-server the request goes through the local sidecar, which is
started on demand and stopped again once no CLI invocation is using it.`,
	Args: cobra.ArbitraryArgs,
	RunE: runAsk,
}

func init() {
	addRequestFlags(askCmd, &askFlags)
	askCmd.Flags().BoolVar(&askViaServer, "via-server", false, "route the request through the sidecar service")
	askCmd.Flags().BoolVar(&askShowReasoning, "show-reasoning", false, "print reasoning text to stderr")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	prompt, err := readPrompt(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	req := askFlags.request(cmd, []llm.Message{{Role: llm.RoleUser, Content: prompt}})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	if askViaServer {
		return askThroughServer(ctx, cfg, req, out)
	}
	return askDirect(ctx, cfg, req, out)
}

func askDirect(ctx context.Context, cfg *config.Config, req handlers.QueryRequest, out io.Writer) error {
	callCfg, err := resolve(cfg, req)
	if err != nil {
		return err
	}

	cache, err := query.OpenCache(cfg.Cache.Backend, cfg.Cache.TTL(), cfg.Cache.RedisURL, logger)
	if err != nil {
		return err
	}
	if c, ok := cache.(io.Closer); ok {
		defer c.Close()
	}
	runner := server.NewBackend(cfg, logger, nil, cache).Runner

	if !askFlags.stream {
		answer, err := runner.Ask(ctx, req.Messages, callCfg)
		if err != nil {
			return err
		}
		logAdjustments(answer.Envelope)
		printResult(out, answer.Result)
		return nil
	}

	session, err := runner.Stream(ctx, req.Messages, callCfg)
	if err != nil {
		return err
	}
	defer session.Cancel()
	logAdjustments(session.Envelope)

	result, err := session.Collect(func(d llm.Delta) { printDelta(out, d) })
	if err != nil {
		return err
	}
	finishStream(out, result)
	return nil
}

// askThroughServer posts req to the sidecar, starting it first when needed.
func askThroughServer(ctx context.Context, cfg *config.Config, req handlers.QueryRequest, out io.Writer) error {
	base := endpoint(cfg.Host, cfg.Port)
	procMgr := process.NewManager(baseDir, logger).WithHealthCheck(base + "/health")

	// Ensure service is running and track if we started it
	serviceStartedByUs, err := procMgr.StartServiceIfNeeded()
	if err != nil {
		return err
	}

	// Track reference count
	procMgr.IncrementRef()
	defer func() {
		// Only stop service if we started it and no more references
		if procMgr.DecrementRef() == 0 && serviceStartedByUs {
			color.Yellow("No more active sessions, stopping auto-started service...")
			if err := procMgr.Stop(); err != nil {
				logger.Warn("Failed to stop service", "error", err)
			}
		}
	}()

	route := "/v1/ask"
	if askFlags.stream {
		route = "/v1/stream"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+route, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sidecar request: %w", err)
	}
	defer resp.Body.Close()

	if askFlags.stream {
		return relayStream(resp, cfg, req, out)
	}
	return relayAnswer(resp, out)
}

func relayAnswer(resp *http.Response, out io.Writer) error {
	var answer struct {
		llm.Result
		ErrorKind      llm.ErrorKind `json:"error_kind"`
		UpstreamStatus int           `json:"upstream_status"`
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read sidecar response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(data, &answer) == nil && answer.Error != "" {
			return fmt.Errorf("%s: %s", answer.ErrorKind, answer.Error)
		}
		return sidecarError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, &answer); err != nil {
		return fmt.Errorf("decode sidecar response: %w", err)
	}

	printResult(out, answer.Result)
	return nil
}

func relayStream(resp *http.Response, cfg *config.Config, req handlers.QueryRequest, out io.Writer) error {
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return sidecarError(resp.StatusCode, data)
	}

	id, err := llm.ParseProviderID(resp.Header.Get("X-LLMB-Provider"))
	if err != nil {
		if id, err = cfg.ResolveProvider(req.Provider); err != nil {
			return err
		}
	}

	registry := providers.NewRegistry(nil, nil)
	registry.Initialize()
	adapter, ok := registry.Get(id)
	if !ok {
		return llm.ConfigError(id, "no adapter registered")
	}

	result, err := query.DecodeStream(resp.Body, adapter, logger, func(d llm.Delta) { printDelta(out, d) })
	if err != nil {
		return err
	}
	finishStream(out, result)
	return nil
}

func sidecarError(status int, body []byte) error {
	var e struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return fmt.Errorf("sidecar returned %d (%s): %s", status, e.Error.Type, e.Error.Message)
	}
	return fmt.Errorf("sidecar returned %d", status)
}

func printResult(out io.Writer, result llm.Result) {
	if askShowReasoning && result.Reasoning != "" {
		color.New(color.Faint).Fprintln(os.Stderr, result.Reasoning)
	}
	fmt.Fprintln(out, result.Content)
	logResult(result)
}

func printDelta(out io.Writer, d llm.Delta) {
	if askShowReasoning && d.Reasoning != "" {
		color.New(color.Faint).Fprint(os.Stderr, d.Reasoning)
	}
	fmt.Fprint(out, d.Content)
}

func finishStream(out io.Writer, result llm.Result) {
	if result.Truncated {
		fmt.Fprint(out, llm.TruncationNotice)
	}
	fmt.Fprintln(out)
	logResult(result)
}

func logResult(result llm.Result) {
	logger.Debug("Answer received",
		"finish_reason", result.FinishReason,
		"truncated", result.Truncated,
		"web_search", result.WebSearchUsed,
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens)
}

func logAdjustments(env llm.Envelope) {
	for _, a := range env.Adjustments {
		logger.Debug("Request adjusted", "adjustment", a.String())
	}
}
