package llm

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4096
)

// Config is the provider-agnostic description of a single request. It is
// passed by value; builders work on their own copy.
type Config struct {
	Provider ProviderID `json:"provider" yaml:"provider"`
	Model    string     `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey   string     `json:"-" yaml:"-"`
	BaseURL  string     `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	System   System     `json:"system" yaml:"system"`
	Params   Params     `json:"params" yaml:"params"`
	Features Features   `json:"features" yaml:"features"`
}

type System struct {
	Text          string `json:"text,omitempty" yaml:"text,omitempty"`
	EnableCaching bool   `json:"enable_caching,omitempty" yaml:"enable_caching,omitempty"`
}

type Params struct {
	Temperature *float64  `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Reasoning   Reasoning `json:"reasoning" yaml:"reasoning"`
}

// Reasoning collects every flavour of "think before answering" knob. Which
// fields are honoured depends on the model's capability entry.
type Reasoning struct {
	Enabled      bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Effort       string `json:"effort,omitempty" yaml:"effort,omitempty"`
	BudgetTokens int    `json:"budget_tokens,omitempty" yaml:"budget_tokens,omitempty"`
	Level        string `json:"level,omitempty" yaml:"level,omitempty"`
}

// Requested reports whether the caller asked for reasoning in any form.
func (r Reasoning) Requested() bool {
	return r.Enabled || r.Effort != "" || r.BudgetTokens > 0 || r.Level != ""
}

type Features struct {
	Streaming bool `json:"streaming,omitempty" yaml:"streaming,omitempty"`
	// WebSearch is the global toggle; WebSearchOverride, when set, is the
	// per-call decision and always wins.
	WebSearch         bool  `json:"web_search,omitempty" yaml:"web_search,omitempty"`
	WebSearchOverride *bool `json:"web_search_override,omitempty" yaml:"web_search_override,omitempty"`
	Debug             bool  `json:"debug,omitempty" yaml:"debug,omitempty"`
}

func (f Features) WebSearchRequested() bool {
	if f.WebSearchOverride != nil {
		return *f.WebSearchOverride
	}
	return f.WebSearch
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
