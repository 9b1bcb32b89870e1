package providers

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/mihaisavezi/llm-bridge/internal/capabilities"
	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

// domainProviderMap resolves an API host to the provider that serves it.
var domainProviderMap = map[string]llm.ProviderID{
	"api.openai.com":                    llm.ProviderOpenAI,
	"openai.com":                        llm.ProviderOpenAI,
	"api.anthropic.com":                 llm.ProviderAnthropic,
	"anthropic.com":                     llm.ProviderAnthropic,
	"generativelanguage.googleapis.com": llm.ProviderGemini,
	"googleapis.com":                    llm.ProviderGemini,
	"api.deepseek.com":                  llm.ProviderDeepSeek,
	"localhost":                         llm.ProviderOllama,
	"127.0.0.1":                         llm.ProviderOllama,
	"api.groq.com":                      llm.ProviderGroq,
	"api.mistral.ai":                    llm.ProviderMistral,
	"api.x.ai":                          llm.ProviderXAI,
	"openrouter.ai":                     llm.ProviderOpenRouter,
	"api.openrouter.ai":                 llm.ProviderOpenRouter,
	"dashscope.aliyuncs.com":            llm.ProviderQwen,
	"dashscope-intl.aliyuncs.com":       llm.ProviderQwen,
	"api.moonshot.ai":                   llm.ProviderKimi,
	"api.moonshot.cn":                   llm.ProviderKimi,
	"api.together.xyz":                  llm.ProviderTogether,
	"api.fireworks.ai":                  llm.ProviderFireworks,
	"api.sambanova.ai":                  llm.ProviderSambaNova,
	"api.cohere.com":                    llm.ProviderCohere,
	"api.cohere.ai":                     llm.ProviderCohere,
	"ark.cn-beijing.volces.com":         llm.ProviderDoubao,
	"integrate.api.nvidia.com":          llm.ProviderNvidia,
	"api.nvidia.com":                    llm.ProviderNvidia,
}

// Registry manages adapter instances.
type Registry struct {
	mu       sync.RWMutex
	adapters map[llm.ProviderID]Adapter
	catalog  *Catalog
	adjuster *capabilities.Adjuster
}

// NewRegistry creates an empty registry. Nil arguments fall back to the
// built-in catalog and capability table.
func NewRegistry(catalog *Catalog, table *capabilities.Table) *Registry {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Registry{
		adapters: make(map[llm.ProviderID]Adapter),
		catalog:  catalog,
		adjuster: capabilities.NewAdjuster(table),
	}
}

// Register adds an adapter to the registry, replacing any previous one for
// the same provider.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Key()] = a
}

// Get retrieves an adapter by provider id
func (r *Registry) Get(id llm.ProviderID) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// GetByDomain returns an adapter based on the API base URL domain
func (r *Registry) GetByDomain(apiBase string) (Adapter, error) {
	u, err := url.Parse(apiBase)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}

	domain := strings.ToLower(u.Hostname())
	if domain == "" {
		return nil, fmt.Errorf("invalid API base URL: %q has no host", apiBase)
	}

	if id, exists := domainProviderMap[domain]; exists {
		if a, found := r.Get(id); found {
			return a, nil
		}
	}

	return nil, fmt.Errorf("no provider found for domain: %s", domain)
}

// List returns all registered provider ids in a stable order.
func (r *Registry) List() []llm.ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]llm.ProviderID, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

func (r *Registry) Adjuster() *capabilities.Adjuster {
	return r.adjuster
}

// Initialize registers an adapter for every known provider.
func (r *Registry) Initialize() {
	for _, id := range llm.AllProviders() {
		r.Register(r.newAdapter(id))
	}
}

func (r *Registry) newAdapter(id llm.ProviderID) Adapter {
	d, _ := r.catalog.Lookup(id)

	switch id {
	case llm.ProviderAnthropic:
		return NewAnthropic(d, r.adjuster)
	case llm.ProviderGemini:
		return NewGemini(d, r.adjuster)
	case llm.ProviderOpenAI:
		return NewCompat(NewOpenAIHooks(), d, r.adjuster)
	case llm.ProviderOpenRouter:
		return NewCompat(NewOpenRouterHooks(), d, r.adjuster)
	case llm.ProviderXAI:
		return NewCompat(NewXAIHooks(), d, r.adjuster)
	case llm.ProviderDeepSeek:
		return NewCompat(NewDeepSeekHooks(), d, r.adjuster)
	case llm.ProviderQwen:
		return NewCompat(NewQwenHooks(), d, r.adjuster)
	case llm.ProviderDoubao:
		return NewCompat(NewDoubaoHooks(), d, r.adjuster)
	case llm.ProviderOllama:
		return NewCompat(NewOllamaHooks(), d, r.adjuster)
	case llm.ProviderCohere:
		return NewCompat(NewCohereHooks(), d, r.adjuster)
	case llm.ProviderNvidia:
		return NewCompat(NewNvidiaHooks(), d, r.adjuster)
	case llm.ProviderCustom:
		return NewCompat(NewCustomHooks(), d, r.adjuster)
	case llm.ProviderGroq, llm.ProviderTogether, llm.ProviderFireworks, llm.ProviderSambaNova:
		return NewCompat(NewPlainHooks(id, d.Name, true), d, r.adjuster)
	case llm.ProviderMistral, llm.ProviderKimi:
		return NewCompat(NewPlainHooks(id, d.Name, false), d, r.adjuster)
	default:
		panic(fmt.Sprintf("providers: no adapter for %q", id))
	}
}
