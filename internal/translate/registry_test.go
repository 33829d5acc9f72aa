// SPDX-License-Identifier: MIT

package translate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTranslator is the shared provider stub for registry and engine tests.
type fakeTranslator struct {
	name     string
	rtlOK    bool
	maxChars int
	calls    int
	targets  []string
	fn       func(text, targetLang, sourceLang string) (string, error)
}

func (f *fakeTranslator) Name() string { return f.name }

func (f *fakeTranslator) Supports(_, targetLang string) bool {
	if IsRTLTarget(targetLang) {
		return f.rtlOK
	}
	return true
}

func (f *fakeTranslator) MaxChunkChars() int {
	if f.maxChars == 0 {
		return 4500
	}
	return f.maxChars
}

func (f *fakeTranslator) SupportsFormality() bool { return false }

func (f *fakeTranslator) Translate(_ context.Context, text, targetLang, sourceLang string, _ Options) (string, error) {
	f.calls++
	f.targets = append(f.targets, ToISO1(targetLang))
	if f.fn != nil {
		return f.fn(text, targetLang, sourceLang)
	}
	return "[" + ToISO1(targetLang) + "] " + text, nil
}

func newTestRegistry(providers ...Translator) *Registry {
	r := &Registry{
		providers:     map[string]Translator{},
		fallbackOrder: []string{"microsoft", "google", "llm"},
	}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func TestRegistryGetUnknown(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Get("deepl")
	assert.ErrorContains(t, err, "not configured")
}

func TestResolveDirect(t *testing.T) {
	primary := &fakeTranslator{name: "deepl"}
	r := newTestRegistry(primary)

	route, err := r.Resolve("deepl", "deu", "en")
	require.NoError(t, err)
	assert.Same(t, Translator(primary), route.Primary)
	assert.Nil(t, route.Fallback)
}

func TestResolveTwoHopForRTL(t *testing.T) {
	primary := &fakeTranslator{name: "deepl"}
	ms := &fakeTranslator{name: "microsoft", rtlOK: true}
	r := newTestRegistry(primary, ms)

	route, err := r.Resolve("deepl", "deu", "he")
	require.NoError(t, err)
	assert.Same(t, Translator(primary), route.Primary)
	assert.Same(t, Translator(ms), route.Fallback)
	assert.Equal(t, "en", route.Intermediate)
}

func TestResolveFallbackOrder(t *testing.T) {
	primary := &fakeTranslator{name: "deepl"}
	g := &fakeTranslator{name: "google", rtlOK: true}
	llm := &fakeTranslator{name: "llm", rtlOK: true}
	r := newTestRegistry(primary, g, llm)

	// microsoft absent: google wins over llm.
	route, err := r.Resolve("deepl", "deu", "he")
	require.NoError(t, err)
	assert.Equal(t, "google", route.Fallback.Name())
}

func TestResolveNoProviderForTarget(t *testing.T) {
	primary := &fakeTranslator{name: "deepl"}
	r := newTestRegistry(primary)

	_, err := r.Resolve("deepl", "deu", "he")
	assert.ErrorContains(t, err, "no configured provider supports")
}
