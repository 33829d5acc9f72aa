// SPDX-License-Identifier: MIT

package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/skeidel/voxpipe/internal/log"
	"github.com/skeidel/voxpipe/internal/provider"
)

// chatCompleter is the slice of the OpenAI client the LLM variant needs;
// satisfied by *openai.Client and by test fakes.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLM is provider variant D: chat-completion translation with a strict JSON
// response schema and an automatic lint-and-retry pass when the model reports
// leftover foreign text.
type LLM struct {
	Client         chatCompleter
	Model          string
	SecondaryModel string
}

// llmReply is the strict response schema the model is instructed to emit.
type llmReply struct {
	Translation string `json:"translation"`
	HasForeign  bool   `json:"has_foreign"`
}

// NewLLM builds the adapter.
func NewLLM(apiKey, model, secondaryModel string) *LLM {
	return &LLM{
		Client:         openai.NewClient(apiKey),
		Model:          model,
		SecondaryModel: secondaryModel,
	}
}

func (l *LLM) Name() string            { return "llm" }
func (l *LLM) MaxChunkChars() int      { return 8000 }
func (l *LLM) SupportsFormality() bool { return false }

// Supports is permissive; the model translates any of the configured pairs.
func (l *LLM) Supports(sourceLang, targetLang string) bool {
	return ToISO1(targetLang) != ""
}

// Translate runs the primary model, retries once with the secondary model on
// the output when the reply flags foreign text, then lints the result against
// the source-language diacritic set.
func (l *LLM) Translate(ctx context.Context, text, targetLang, sourceLang string, _ Options) (string, error) {
	reply, err := l.complete(ctx, l.Model, text, targetLang, sourceLang)
	if err != nil {
		return "", err
	}

	if reply.HasForeign && l.SecondaryModel != "" {
		logger := log.WithComponent("translate")
		logger.Debug().
			Str(log.FieldProvider, l.Name()).
			Str(log.FieldLang, targetLang).
			Msg("foreign text reported, retrying with secondary model")
		second, err := l.complete(ctx, l.SecondaryModel, reply.Translation, targetLang, sourceLang)
		if err == nil {
			reply = second
		}
	}

	if lintForeign(reply.Translation, sourceLang) {
		return "", fmt.Errorf("translation retains %s characters after both passes: %w", sourceLang, provider.ErrPermanent)
	}
	return reply.Translation, nil
}

func (l *LLM) complete(ctx context.Context, model, text, targetLang, sourceLang string) (llmReply, error) {
	system := fmt.Sprintf(
		"You are a professional translator. Translate the user's text into %s.",
		languageName(targetLang))
	if sourceLang != "" {
		system += fmt.Sprintf(" The source language is %s.", languageName(sourceLang))
	}
	system += ` Respond with a JSON object exactly matching {"translation": string, "has_foreign": bool}. Set has_foreign to true if any source-language text remains untranslated in your output.`

	resp, err := l.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return llmReply{}, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return llmReply{}, fmt.Errorf("empty completion: %w", provider.ErrPermanent)
	}

	var reply llmReply
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &reply); err != nil {
		return llmReply{}, fmt.Errorf("decode llm reply: %v: %w", err, provider.ErrPermanent)
	}
	return reply, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return provider.Classify(apiErr.HTTPStatusCode, apiErr.Message)
	}
	return provider.ClassifyTransport(err)
}

// lintForeign is the cheap regex-level check for leftover source-language
// characters: the diacritic set of the source, not its whole alphabet.
func lintForeign(text, sourceLang string) bool {
	set := diacriticSet(sourceLang)
	if set == "" {
		return false
	}
	return strings.ContainsAny(text, set)
}

func diacriticSet(sourceLang string) string {
	switch ToISO1(sourceLang) {
	case "de":
		return "äöüÄÖÜß"
	case "fr":
		return "àâçéèêëîïôùûüÿœæ"
	case "es":
		return "áéíñóúü¿¡"
	default:
		return ""
	}
}

func languageName(code string) string {
	switch ToISO1(code) {
	case "en":
		return "English"
	case "de":
		return "German"
	case "he":
		return "Hebrew"
	case "fr":
		return "French"
	case "es":
		return "Spanish"
	default:
		return code
	}
}
