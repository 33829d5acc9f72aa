// SPDX-License-Identifier: MIT

package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/skeidel/voxpipe/internal/provider"
)

// DeepL is provider variant A: form-encoded REST API, formality support,
// no Hebrew target.
type DeepL struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

const deeplDefaultURL = "https://api-free.deepl.com/v2/translate"

// NewDeepL builds the DeepL adapter.
func NewDeepL(apiKey string, timeout time.Duration, rps float64) *DeepL {
	return &DeepL{
		BaseURL:    deeplDefaultURL,
		APIKey:     apiKey,
		HTTPClient: provider.NewHTTPClient(timeout, rps),
	}
}

func (d *DeepL) Name() string            { return "deepl" }
func (d *DeepL) MaxChunkChars() int      { return 4500 }
func (d *DeepL) SupportsFormality() bool { return true }

// Supports reports target support. DeepL has no Hebrew target.
func (d *DeepL) Supports(sourceLang, targetLang string) bool {
	return ToISO1(targetLang) != rtlTarget
}

// targetCode maps to DeepL's target dialect requirements: English targets
// must be regioned (EN-US) while English sources stay EN.
func (d *DeepL) targetCode(lang string) string {
	code := strings.ToUpper(ToISO1(lang))
	switch code {
	case "EN":
		return "EN-US"
	case "PT":
		return "PT-PT"
	default:
		return code
	}
}

func (d *DeepL) sourceCode(lang string) string {
	return strings.ToUpper(ToISO1(lang))
}

// Translate sends one chunk. sourceLang may be empty for auto-detection.
func (d *DeepL) Translate(ctx context.Context, text, targetLang, sourceLang string, opts Options) (string, error) {
	form := url.Values{}
	form.Set("text", text)
	form.Set("target_lang", d.targetCode(targetLang))
	if sourceLang != "" {
		form.Set("source_lang", d.sourceCode(sourceLang))
	}
	if opts.Formality != "" && opts.Formality != FormalityDefault {
		form.Set("formality", string(opts.Formality))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "DeepL-Auth-Key "+d.APIKey)

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return "", provider.ClassifyTransport(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", provider.ClassifyTransport(err)
	}
	// DeepL signals exhausted quota with 456.
	if resp.StatusCode == 456 {
		return "", fmt.Errorf("status 456: %w", provider.ErrQuotaExceeded)
	}
	if err := provider.Classify(resp.StatusCode, string(data[:min(len(data), 256)])); err != nil {
		return "", err
	}

	var body struct {
		Translations []struct {
			Text string `json:"text"`
		} `json:"translations"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return "", fmt.Errorf("decode deepl response: %v: %w", err, provider.ErrPermanent)
	}
	if len(body.Translations) == 0 {
		return "", fmt.Errorf("empty deepl response: %w", provider.ErrPermanent)
	}
	return body.Translations[0].Text, nil
}
