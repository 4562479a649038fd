package llm

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/specforge/specforge/internal/domain"
	"github.com/specforge/specforge/internal/ports"
)

// Registry owns the provider configurations, the credential availability
// set, and the per-provider rate windows. It is constructed explicitly at
// service startup and passed by reference; there is no ambient global
// state. Document clients created through the registry share its rate
// windows, so concurrent requests against one provider serialize on the
// same ceilings.
type Registry struct {
	mu sync.RWMutex

	configs   map[string]ProviderConfig
	available map[string]bool
	windows   map[string]*RateWindow
	clients   map[string]*DocumentClient

	collector ports.MetricsCollector
	logger    zerolog.Logger

	// getenv is injectable for tests.
	getenv func(string) string
}

// complexityPreference maps task complexity to the preferred provider:
// cheapest for simple work, balanced for moderate, highest quality for
// complex.
var complexityPreference = map[domain.ComplexityLevel]string{
	domain.ComplexitySimple:   ProviderGoogle,
	domain.ComplexityModerate: ProviderOpenAI,
	domain.ComplexityComplex:  ProviderAnthropic,
}

// fallbackOrder is the fixed preference order used when the complexity
// choice is unavailable.
var fallbackOrder = []string{ProviderOpenAI, ProviderAnthropic, ProviderGoogle}

// costAscendingOrder scans providers cheapest first when a cost ceiling
// rules out the preferred choice.
var costAscendingOrder = []string{ProviderGoogle, ProviderOpenAI, ProviderAnthropic}

// RegistryOption customizes registry construction.
type RegistryOption func(*Registry)

// WithMetricsCollector attaches a metrics collector to every client the
// registry creates.
func WithMetricsCollector(collector ports.MetricsCollector) RegistryOption {
	return func(r *Registry) { r.collector = collector }
}

// WithLogger sets the logger used by the registry and its clients.
func WithLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// WithEnvLookup overrides the environment lookup used for credential
// discovery. Intended for tests.
func WithEnvLookup(getenv func(string) string) RegistryOption {
	return func(r *Registry) { r.getenv = getenv }
}

// NewRegistry builds a registry from the given provider configs, probing
// each provider's credential environment variable. It fails only when no
// provider at all has a credential configured.
func NewRegistry(configs map[string]ProviderConfig, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		configs:   configs,
		available: make(map[string]bool, len(configs)),
		windows:   make(map[string]*RateWindow, len(configs)),
		clients:   make(map[string]*DocumentClient, len(configs)),
		collector: ports.NoopMetrics{},
		logger:    zerolog.Nop(),
		getenv:    os.Getenv,
	}
	for _, opt := range opts {
		opt(r)
	}

	names := make([]string, 0, len(configs))
	for name, cfg := range configs {
		if r.getenv(cfg.APIKeyEnv) != "" {
			r.available[name] = true
			names = append(names, name)
		}
		r.windows[name] = NewRateWindow(cfg.RequestsPerMinute, cfg.TokensPerMinute)
	}

	if len(names) == 0 {
		return nil, NewNoProviderError()
	}

	sort.Strings(names)
	r.logger.Info().Strs("providers", names).Msg("provider registry initialized")

	return r, nil
}

// Available reports whether the named provider has a credential.
func (r *Registry) Available(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.available[name]
}

// AvailableProviders returns the sorted names of providers with
// credentials.
func (r *Registry) AvailableProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.available))
	for name := range r.available {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Config returns the configuration for the named provider.
func (r *Registry) Config(name string) (ProviderConfig, bool) {
	cfg, ok := r.configs[name]
	return cfg, ok
}

// SelectProvider picks a provider for the given task. The base choice
// comes from the complexity preference table; a required context size
// escalates to providers with larger windows; a cost ceiling redirects to
// the cheapest affordable provider; an unavailable choice falls back
// through a fixed preference order. The returned provider always belongs
// to the available set.
func (r *Registry) SelectProvider(complexity domain.ComplexityLevel, maxCost float64, requiredContextTokens int) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	preferred := complexityPreference[complexity]
	if preferred == "" {
		preferred = complexityPreference[domain.ComplexityModerate]
	}

	if requiredContextTokens > 0 {
		if cfg, ok := r.configs[preferred]; ok && cfg.ContextWindow < requiredContextTokens {
			if name := r.smallestSufficientWindow(requiredContextTokens); name != "" {
				preferred = name
			}
		}
	}

	if r.available[preferred] {
		if maxCost <= 0 {
			return preferred, nil
		}

		if r.bucketEstimate(preferred, complexity) <= maxCost {
			return preferred, nil
		}

		for _, name := range costAscendingOrder {
			if !r.available[name] {
				continue
			}
			if est := r.bucketEstimate(name, complexity); est <= maxCost {
				r.logger.Info().
					Str("provider", name).
					Float64("estimated_cost", est).
					Float64("max_cost", maxCost).
					Msg("provider selected by cost constraint")
				return name, nil
			}
		}
		// Nothing affordable; fall through to the preference order so the
		// per-request cost gate produces the terminal error.
	}

	for _, name := range fallbackOrder {
		if r.available[name] {
			if name != preferred {
				r.logger.Warn().
					Str("preferred", preferred).
					Str("selected", name).
					Msg("preferred provider unavailable, using fallback")
			}
			return name, nil
		}
	}

	return "", NewNoProviderError()
}

// smallestSufficientWindow returns the available provider with the
// smallest context window that still fits the requirement, or the largest
// available window when nothing fits. Caller holds the lock.
func (r *Registry) smallestSufficientWindow(required int) string {
	type candidate struct {
		name   string
		window int
	}
	var candidates []candidate
	for name := range r.available {
		candidates = append(candidates, candidate{name, r.configs[name].ContextWindow})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].window < candidates[j].window })

	for _, c := range candidates {
		if c.window >= required {
			return c.name
		}
	}
	if len(candidates) > 0 {
		return candidates[len(candidates)-1].name
	}
	return ""
}

// bucketEstimate computes a coarse cost estimate for a provider at a
// complexity level using the fixed per-complexity token buckets.
func (r *Registry) bucketEstimate(name string, complexity domain.ComplexityLevel) float64 {
	bucket, ok := complexityTokenBuckets[string(complexity)]
	if !ok {
		bucket = complexityTokenBuckets[string(domain.ComplexityModerate)]
	}
	return r.configs[name].EstimateCost(bucket[0], bucket[1])
}

// Client returns the document client for the named provider, constructing
// it on first use. Clients are cached and shared.
func (r *Registry) Client(name string) (*DocumentClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[name]; ok {
		return client, nil
	}

	cfg, ok := r.configs[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	if !r.available[name] {
		return nil, NewProviderError(name, ErrorTypeMissingCredential, 0,
			fmt.Sprintf("environment variable %s is not set", cfg.APIKeyEnv), nil)
	}

	core, err := NewCoreLLM(name, ClientConfig{
		APIKey:  r.getenv(cfg.APIKeyEnv),
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Middleware: []Middleware{
			TracingMiddleware("specforge.llm"),
			MetricsMiddleware(name, r.collector),
			CircuitBreakerMiddleware(5, cfg.Timeout),
			PacingMiddleware(perSecondLimit(cfg.RequestsPerMinute), pacingBurst),
			TimeoutMiddleware(cfg.Timeout),
		},
	})
	if err != nil {
		return nil, err
	}

	client := NewDocumentClient(name, cfg, core, r.windows[name],
		WithClientLogger(r.logger.With().Str("provider", name).Logger()))
	r.clients[name] = client
	return client, nil
}

// Generator returns the named provider's document client behind the
// generator port, for callers that should not see the concrete client.
func (r *Registry) Generator(name string) (ports.DocumentGenerator, error) {
	client, err := r.Client(name)
	if err != nil {
		return nil, err
	}
	return client, nil
}
