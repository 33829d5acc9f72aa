// SPDX-License-Identifier: MIT

package translate

import (
	"context"
	"fmt"

	"github.com/skeidel/voxpipe/internal/config"
	"github.com/skeidel/voxpipe/internal/log"
)

// Registry resolves provider variants by name and computes fallback routes
// for targets the chosen provider cannot reach.
type Registry struct {
	providers map[string]Translator
	// fallbackOrder is the preference among providers able to serve a target
	// the primary cannot.
	fallbackOrder []string
}

// NewRegistry builds the registry from resolved credentials. A missing key
// disables that provider; selecting a disabled provider is a routing error at
// run time, not at startup.
func NewRegistry(ctx context.Context, creds config.Credentials, cfg config.Config) *Registry {
	r := &Registry{
		providers:     map[string]Translator{},
		fallbackOrder: []string{"microsoft", "google", "llm"},
	}
	timeout := cfg.APITimeout()
	rps := cfg.ProviderRateLimit

	if creds.DeepLKey != "" {
		r.Register(NewDeepL(creds.DeepLKey, timeout, rps))
	}
	if creds.GoogleCredsFile != "" {
		g, err := NewGoogle(ctx, creds.GoogleCredsFile, timeout, rps)
		if err != nil {
			logger := log.WithComponent("translate")
			logger.Warn().Err(err).Msg("google provider disabled")
		} else {
			r.Register(g)
		}
	}
	if creds.MicrosoftKey != "" {
		r.Register(NewMicrosoft(creds.MicrosoftKey, creds.MicrosoftRegion, timeout, rps))
	}
	if creds.OpenAIKey != "" {
		r.Register(NewLLM(creds.OpenAIKey, cfg.LLMModel, cfg.LLMSecondaryModel))
	}
	return r
}

// Register adds a provider.
func (r *Registry) Register(t Translator) {
	r.providers[t.Name()] = t
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Translator, error) {
	t, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("translation provider %q is not configured", name)
	}
	return t, nil
}

// Names lists the configured providers.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	return names
}

// Route is the plan for reaching one target language.
type Route struct {
	// Primary translates source -> Intermediate (or straight to the target
	// when Fallback is nil).
	Primary Translator
	// Fallback, when set, translates Intermediate -> target.
	Fallback     Translator
	Intermediate string
}

// intermediate language for two-hop routes.
const pivotLang = "en"

// Resolve picks the route for a target: the chosen provider when it supports
// the target, otherwise a two-hop route through the pivot language via the
// first configured provider that can serve the target.
func (r *Registry) Resolve(chosen, sourceLang, targetLang string) (Route, error) {
	primary, err := r.Get(chosen)
	if err != nil {
		return Route{}, err
	}
	if primary.Supports(sourceLang, targetLang) {
		return Route{Primary: primary}, nil
	}

	for _, name := range r.fallbackOrder {
		fb, ok := r.providers[name]
		if !ok || name == chosen {
			continue
		}
		if fb.Supports(pivotLang, targetLang) {
			return Route{Primary: primary, Fallback: fb, Intermediate: pivotLang}, nil
		}
	}
	return Route{}, fmt.Errorf("no configured provider supports target %q", targetLang)
}
