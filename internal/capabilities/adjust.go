package capabilities

import (
	"fmt"
	"slices"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

// DefaultThinkingBudget is used when thinking is enabled without a budget.
const DefaultThinkingBudget = 4096

var effortBudgets = map[string]int{
	"minimal": 1024,
	"low":     2048,
	"medium":  8192,
	"high":    16384,
}

// levelOrder ranks named levels so an unsupported one can be mapped to the
// closest supported level.
var levelOrder = []string{"minimal", "low", "medium", "high"}

// Draft is the provider-neutral request the adjuster works on. Builders fill
// it from the resolved config and defaults.
type Draft struct {
	Temperature float64
	// TemperatureSet is true when the caller chose the temperature rather
	// than inheriting a default.
	TemperatureSet bool
	MaxTokens      int
	Reasoning      llm.Reasoning
	WebSearch      bool
	Caching        bool
}

// ReasoningPlan is the reasoning configuration that survived adjustment.
type ReasoningPlan struct {
	Style        ReasoningStyle
	Effort       string
	BudgetTokens int
	Level        string
}

// Plan is the adjusted request a builder turns into wire fields.
type Plan struct {
	Temperature float64
	MaxTokens   int
	// TokenField is the renamed output limit field, empty when the builder's
	// native field applies.
	TokenField string
	Reasoning  *ReasoningPlan
	WebSearch  bool
	Caching    bool
	Spec       ModelSpec
}

// TokenFieldOr returns the plan's token field or fallback.
func (p Plan) TokenFieldOr(fallback string) string {
	if p.TokenField != "" {
		return p.TokenField
	}
	return fallback
}

type Adjuster struct {
	table *Table
}

func NewAdjuster(table *Table) *Adjuster {
	if table == nil {
		table = Builtin()
	}
	return &Adjuster{table: table}
}

func (a *Adjuster) Table() *Table {
	return a.table
}

func (a *Adjuster) Supports(provider llm.ProviderID, model string, c Capability) bool {
	return a.table.Supports(provider, model, c)
}

// Apply fits a draft to the model's constraints. It never fails: values
// outside the model's limits are rewritten and unsupported features are
// dropped, each change reported as an adjustment.
func (a *Adjuster) Apply(provider llm.ProviderID, model string, d Draft) (Plan, []llm.Adjustment) {
	spec := a.table.Lookup(provider, model)
	plan := Plan{
		Temperature: d.Temperature,
		MaxTokens:   d.MaxTokens,
		Spec:        spec,
	}

	var adj []llm.Adjustment
	add := func(field string, from, to any, reason string, args ...any) {
		adj = append(adj, llm.Adjustment{Field: field, From: from, To: to, Reason: fmt.Sprintf(reason, args...)})
	}

	if d.Reasoning.Requested() {
		plan.Reasoning = planReasoning(spec, &plan, d.Reasoning, model, add)
	}

	reasoningActive := plan.Reasoning != nil || spec.AlwaysReasons
	switch {
	case reasoningActive && spec.ReasoningTemperature > 0:
		if plan.Temperature != spec.ReasoningTemperature {
			source := "default"
			if d.TemperatureSet {
				source = "requested"
			}
			add("temperature", plan.Temperature, spec.ReasoningTemperature,
				"reasoning on %s requires temperature %.1f, %s value replaced", model, spec.ReasoningTemperature, source)
			plan.Temperature = spec.ReasoningTemperature
		}
	case plan.Temperature > spec.MaxTemperature:
		add("temperature", plan.Temperature, spec.MaxTemperature,
			"exceeds maximum %.2f for %s", spec.MaxTemperature, model)
		plan.Temperature = spec.MaxTemperature
	case plan.Temperature < 0:
		add("temperature", plan.Temperature, 0.0, "temperature cannot be negative")
		plan.Temperature = 0
	}

	if spec.TokenField != "" {
		plan.TokenField = spec.TokenField
		add("token_limit_field", "max_tokens", spec.TokenField, "%s expects the output limit in %s", model, spec.TokenField)
	}

	if d.WebSearch {
		if spec.Has(WebSearch) {
			plan.WebSearch = true
		} else {
			add("web_search_skipped", true, nil, "%s does not support web search", model)
		}
	}

	if d.Caching {
		if spec.Has(PromptCaching) {
			plan.Caching = true
		} else {
			add("prompt_caching_skipped", true, nil, "%s does not support prompt caching", model)
		}
	}

	return plan, adj
}

func planReasoning(spec ModelSpec, plan *Plan, r llm.Reasoning, model string, add func(string, any, any, string, ...any)) *ReasoningPlan {
	switch spec.Reasoning {
	case ReasoningEffort:
		effort := firstNonEmpty(r.Effort, r.Level, "medium")
		efforts := spec.Efforts
		if len(efforts) == 0 {
			efforts = []string{"low", "medium", "high"}
		}
		if !slices.Contains(efforts, effort) {
			fallback := "medium"
			if !slices.Contains(efforts, fallback) {
				fallback = efforts[len(efforts)-1]
			}
			add("reasoning_effort", effort, fallback, "%s accepts efforts %v", model, efforts)
			effort = fallback
		}
		return &ReasoningPlan{Style: ReasoningEffort, Effort: effort}

	case ReasoningBudget:
		budget := r.BudgetTokens
		if budget <= 0 {
			budget = DefaultThinkingBudget
			if b, ok := effortBudgets[firstNonEmpty(r.Effort, r.Level)]; ok {
				budget = b
			}
		}
		if spec.MinThinkingBudget > 0 && budget < spec.MinThinkingBudget {
			add("thinking_budget", budget, spec.MinThinkingBudget,
				"minimum thinking budget is %d tokens", spec.MinThinkingBudget)
			budget = spec.MinThinkingBudget
		}
		if plan.MaxTokens <= budget {
			raised := budget + ThinkingHeadroom
			add("max_tokens", plan.MaxTokens, raised, "output budget must exceed thinking budget %d", budget)
			plan.MaxTokens = raised
		}
		return &ReasoningPlan{Style: ReasoningBudget, BudgetTokens: budget}

	case ReasoningLevel:
		level := firstNonEmpty(r.Level, r.Effort)
		if level == "" {
			level = "high"
		}
		if !slices.Contains(spec.ThinkingLevels, level) {
			nearest := nearestLevel(level, spec.ThinkingLevels)
			add("thinking_level", level, nearest, "%s supports levels %v", model, spec.ThinkingLevels)
			level = nearest
		}
		if extra := spec.LevelBudgets[level]; extra > 0 {
			raised := plan.MaxTokens + extra
			add("max_tokens", plan.MaxTokens, raised, "thinking tokens at level %s share the output budget", level)
			plan.MaxTokens = raised
		}
		rp := &ReasoningPlan{Style: ReasoningLevel, Level: level}
		if spec.LevelAsBudget {
			rp.BudgetTokens = spec.LevelBudgets[level]
		}
		return rp

	case ReasoningToggle:
		return &ReasoningPlan{Style: ReasoningToggle}

	default:
		field := "reasoning_skipped"
		if r.BudgetTokens > 0 || r.Level != "" {
			field = "thinking_skipped"
		}
		add(field, describeReasoning(r), nil, "%s does not support reasoning", model)
		return nil
	}
}

func nearestLevel(level string, allowed []string) string {
	if len(allowed) == 0 {
		return level
	}
	want := slices.Index(levelOrder, level)
	if want < 0 {
		return allowed[len(allowed)-1]
	}

	best, bestDist := allowed[0], len(levelOrder)+1
	for _, candidate := range allowed {
		idx := slices.Index(levelOrder, candidate)
		if idx < 0 {
			continue
		}
		dist := idx - want
		if dist < 0 {
			dist = -dist
		}
		// ties resolve to the higher level
		if dist < bestDist || (dist == bestDist && idx > slices.Index(levelOrder, best)) {
			best, bestDist = candidate, dist
		}
	}
	return best
}

func describeReasoning(r llm.Reasoning) string {
	switch {
	case r.BudgetTokens > 0:
		return fmt.Sprintf("budget %d", r.BudgetTokens)
	case r.Level != "":
		return "level " + r.Level
	case r.Effort != "":
		return "effort " + r.Effort
	default:
		return "enabled"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
