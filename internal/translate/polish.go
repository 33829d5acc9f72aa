// SPDX-License-Identifier: MIT

package translate

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/skeidel/voxpipe/internal/log"
)

// glossaryLimit caps how many glossary mappings go into the polish prompt.
const glossaryLimit = 200

// Polisher runs the optional second pass over RTL drafts: an LLM refines the
// draft translation with the source text and a domain glossary for context.
type Polisher struct {
	Client chatCompleter
	Model  string
	// Glossary maps source terms to target terms, in file order.
	Glossary []GlossaryEntry
}

// GlossaryEntry is one "source -> target" mapping.
type GlossaryEntry struct {
	Source string
	Target string
}

// NewPolisher builds the polisher from a glossary file of "source -> target"
// lines. Missing or malformed files disable polishing (nil return).
func NewPolisher(apiKey, model, glossaryFile string) *Polisher {
	if apiKey == "" || glossaryFile == "" {
		return nil
	}
	glossary, err := LoadGlossary(glossaryFile)
	if err != nil {
		logger := log.WithComponent("translate")
		logger.Warn().Err(err).Msg("polish disabled, glossary unavailable")
		return nil
	}
	return &Polisher{
		Client:   openai.NewClient(apiKey),
		Model:    model,
		Glossary: glossary,
	}
}

// LoadGlossary reads "source -> target" lines; blank lines and '#' comments
// are skipped.
func LoadGlossary(path string) ([]GlossaryEntry, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied glossary path
	if err != nil {
		return nil, fmt.Errorf("open glossary: %w", err)
	}
	defer func() { _ = f.Close() }()

	var entries []GlossaryEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		src, dst, found := strings.Cut(line, "->")
		if !found {
			continue
		}
		entries = append(entries, GlossaryEntry{
			Source: strings.TrimSpace(src),
			Target: strings.TrimSpace(dst),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read glossary: %w", err)
	}
	return entries, nil
}

// Polish refines draft using the source text and the glossary. On any
// failure the caller keeps the draft.
func (p *Polisher) Polish(ctx context.Context, sourceText, draft, targetLang string) (string, error) {
	if p == nil {
		return draft, nil
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "You are an expert %s editor. Refine the draft translation below for fluency and terminology. Reply with the polished %s text only.\n",
		languageName(targetLang), languageName(targetLang))
	prompt.WriteString("Glossary (source -> target):\n")
	for i, e := range p.Glossary {
		if i >= glossaryLimit {
			break
		}
		fmt.Fprintf(&prompt, "%s -> %s\n", e.Source, e.Target)
	}

	resp, err := p.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.String()},
			{Role: openai.ChatMessageRoleUser, Content: "Source text:\n" + sourceText + "\n\nDraft translation:\n" + draft},
		},
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty polish completion")
	}
	polished := strings.TrimSpace(resp.Choices[0].Message.Content)
	if polished == "" {
		return "", fmt.Errorf("blank polish completion")
	}
	return polished, nil
}
