package capabilities

import (
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

type Capability string

const (
	Reasoning     Capability = "reasoning"
	WebSearch     Capability = "web_search"
	PromptCaching Capability = "prompt_caching"
	Vision        Capability = "vision"
)

// ReasoningStyle describes how a model accepts reasoning settings on the wire.
type ReasoningStyle int

const (
	ReasoningNone   ReasoningStyle = iota
	ReasoningEffort                // reasoning_effort: low|medium|high
	ReasoningBudget                // explicit thinking token budget
	ReasoningLevel                 // named thinking level
	ReasoningToggle                // plain on/off switch
)

func (s ReasoningStyle) String() string {
	switch s {
	case ReasoningEffort:
		return "effort"
	case ReasoningBudget:
		return "budget"
	case ReasoningLevel:
		return "level"
	case ReasoningToggle:
		return "toggle"
	default:
		return "none"
	}
}

const defaultMaxTemperature = 2.0

// ModelSpec describes the constraints of every model whose id starts with
// Prefix. An empty Prefix is the provider baseline.
type ModelSpec struct {
	Provider llm.ProviderID
	Prefix   string

	MaxTemperature float64
	// TokenField renames the output limit field for this model generation.
	TokenField string

	Reasoning            ReasoningStyle
	AlwaysReasons        bool
	ReasoningTemperature float64
	MinThinkingBudget    int
	Efforts              []string
	ThinkingLevels       []string
	LevelBudgets         map[string]int
	// LevelAsBudget sends levels as a token budget instead of by name.
	LevelAsBudget bool

	Capabilities []Capability
	Without      []Capability
}

func (s ModelSpec) Has(c Capability) bool {
	if c == Reasoning {
		return s.Reasoning != ReasoningNone
	}
	return slices.Contains(s.Capabilities, c)
}

func (s ModelSpec) clone() ModelSpec {
	s.Efforts = slices.Clone(s.Efforts)
	s.ThinkingLevels = slices.Clone(s.ThinkingLevels)
	s.LevelBudgets = maps.Clone(s.LevelBudgets)
	s.Capabilities = slices.Clone(s.Capabilities)
	s.Without = slices.Clone(s.Without)
	return s
}

// overlay applies the non-zero fields of m on top of s.
func (s ModelSpec) overlay(m ModelSpec) ModelSpec {
	out := s.clone()
	out.Prefix = m.Prefix

	if m.MaxTemperature > 0 {
		out.MaxTemperature = m.MaxTemperature
	}
	if m.TokenField != "" {
		out.TokenField = m.TokenField
	}
	if m.Reasoning != ReasoningNone {
		out.Reasoning = m.Reasoning
	}
	out.AlwaysReasons = out.AlwaysReasons || m.AlwaysReasons
	if m.ReasoningTemperature > 0 {
		out.ReasoningTemperature = m.ReasoningTemperature
	}
	if m.MinThinkingBudget > 0 {
		out.MinThinkingBudget = m.MinThinkingBudget
	}
	if m.Efforts != nil {
		out.Efforts = slices.Clone(m.Efforts)
	}
	if m.ThinkingLevels != nil {
		out.ThinkingLevels = slices.Clone(m.ThinkingLevels)
		out.LevelBudgets = maps.Clone(m.LevelBudgets)
		out.LevelAsBudget = m.LevelAsBudget
	}

	for _, c := range m.Capabilities {
		if !slices.Contains(out.Capabilities, c) {
			out.Capabilities = append(out.Capabilities, c)
		}
	}
	out.Capabilities = slices.DeleteFunc(out.Capabilities, func(c Capability) bool {
		return slices.Contains(m.Without, c)
	})

	return out
}

// Table is an immutable (provider, model) capability registry. It is safe
// for concurrent use without locking.
type Table struct {
	baselines map[llm.ProviderID]ModelSpec
	models    map[llm.ProviderID][]ModelSpec
}

func NewTable(specs ...ModelSpec) *Table {
	t := &Table{
		baselines: make(map[llm.ProviderID]ModelSpec),
		models:    make(map[llm.ProviderID][]ModelSpec),
	}

	for _, s := range specs {
		s = s.clone()
		s.Prefix = strings.ToLower(s.Prefix)
		if s.Prefix == "" {
			t.baselines[s.Provider] = s
			continue
		}
		t.models[s.Provider] = append(t.models[s.Provider], s)
	}

	for id := range t.models {
		entries := t.models[id]
		sort.SliceStable(entries, func(i, j int) bool {
			return len(entries[i].Prefix) > len(entries[j].Prefix)
		})
	}

	return t
}

// Lookup resolves the effective spec for a model: the provider baseline
// overlaid with the longest matching prefix entry.
func (t *Table) Lookup(provider llm.ProviderID, model string) ModelSpec {
	base, ok := t.baselines[provider]
	if !ok {
		base = ModelSpec{Provider: provider}
	}
	if base.MaxTemperature == 0 {
		base.MaxTemperature = defaultMaxTemperature
	}

	id := strings.ToLower(model)
	for _, m := range t.models[provider] {
		if strings.HasPrefix(id, m.Prefix) {
			return base.overlay(m)
		}
	}

	return base.clone()
}

func (t *Table) Supports(provider llm.ProviderID, model string, c Capability) bool {
	return t.Lookup(provider, model).Has(c)
}

// Entries lists the model-specific entries of a provider, longest prefix first.
func (t *Table) Entries(provider llm.ProviderID) []ModelSpec {
	out := make([]ModelSpec, 0, len(t.models[provider]))
	for _, m := range t.models[provider] {
		out = append(out, m.clone())
	}
	return out
}
