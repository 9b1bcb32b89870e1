/*
Package providers implements the provider abstraction layer for llm-bridge.

Every supported LLM API is reached through an Adapter. An adapter turns the
unified request (an llm.Config plus an ordered []llm.Message) into a wire
ready llm.Envelope, and decodes that provider's complete responses and
stream events into llm.Result and llm.Delta values.

# Adapter Interface

	type Adapter interface {
		Key() llm.ProviderID
		Name() string
		Defaults() Defaults
		Build(messages []llm.Message, cfg llm.Config) (llm.Envelope, error)
		Parse(raw map[string]any) llm.Result
		DecodeStreamEvent(raw map[string]any) llm.Delta
		EnhanceError(err *llm.Error, cfg llm.Config) *llm.Error
		SupportsReasoningExtraction() bool
	}

Callers go through the package functions Build and ParseResponse, which
recover from panics and turn broken bodies into typed errors.

# Request Flow

 1. The caller resolves an adapter from the Registry by provider id.
 2. The adapter resolves the model, relocates system messages and drops empty ones.
 3. The capabilities.Adjuster fits temperature, token limits, reasoning and
    search settings to the model. Every change is returned as an llm.Adjustment.
 4. The adapter writes the provider-native body, headers and URL.
 5. The transport executes the envelope; the adapter decodes the reply.

# OpenAI-compatible Providers

Most providers speak the chat.completions dialect. They share the Compat
template, whose BuildRequestBody algorithm is fixed:

 1. Resolve model = config model or the catalog default.
 2. Drop system messages (relocated) and whitespace-only messages. Structured
    content is never considered empty.
 3. Prepend one system message built from the config system text.
 4. Map assistant to assistant and everything else to user.
 5. Resolve temperature and max_tokens (config, catalog, 0.7 / 4096), run the
    adjuster, and write the adjusted values.
 6. Call CustomizeRequestBody.
 7. Set Content-Type and Authorization, then call CustomizeHeaders.
 8. Take the base URL from the config or catalog, then call CustomizeURL.

Provider differences live in a Hooks implementation:

	type Hooks interface {
		ProviderName() string
		ProviderKey() llm.ProviderID
		CustomizeHeaders(headers map[string]string, ctx *BuildContext)
		CustomizeRequestBody(body map[string]any, ctx *BuildContext)
		CustomizeURL(url string, ctx *BuildContext) string
		ValidateConfig(cfg llm.Config) error
		EnhanceErrorMessage(msg string, cfg llm.Config) string
		SupportsReasoningExtraction() bool
	}

Embed Base for the defaults and override only what differs:

	type ExampleHooks struct {
		Base
	}

	func NewExampleHooks() *ExampleHooks {
		return &ExampleHooks{Base: NewBase(llm.ProviderCustom, "Example")}
	}

	func (h *ExampleHooks) CustomizeHeaders(headers map[string]string, _ *BuildContext) {
		headers["X-Client"] = "llm-bridge"
	}

Hooks that need a non-standard response shape may also implement
DecodeResponse and DecodeStreamEvent (see CohereHooks and OllamaHooks).
Providers that keep system messages in place implement KeepsSystemInline.

Record every value a hook changes or drops with BuildContext.Adjust. Dropped
features use a field name ending in "_skipped".

# Bespoke Builders

Anthropic and Gemini do not fit the template and implement Adapter directly:

  - Anthropic sends system text as typed blocks so exactly one block can
    carry cache_control, and sends thinking as {type, budget_tokens}.
  - Gemini sends contents[].parts[].text with the assistant role renamed to
    model, a separate system_instruction, and thinking inside generationConfig.

# Response Decoding

All decoders follow the same rules:

  - An error object in the body is a failure carrying the provider message.
  - A finish reason meaning "output budget exhausted" appends
    llm.TruncationNotice exactly once.
  - Web search is reported only on evidence in the response: citations,
    grounding chunks or search result blocks.
  - Inline <think> tags are split out when SupportsReasoningExtraction is true.
  - Anything unrecognised becomes a ShapeError with a bounded snippet.

# Adding a Provider

 1. Add the id to llm.ProviderID and llm.AllProviders.
 2. Add a Defaults entry to the catalog and a baseline to the capability table.
 3. Write a Hooks type (or a bespoke Adapter) and return it from
    Registry.newAdapter. The registry test fails for any id without an adapter.
 4. Add the API host to domainProviderMap.
*/
package providers
