// SPDX-License-Identifier: MIT

package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skeidel/voxpipe/internal/provider"
)

// Microsoft is provider variant C: the Translator REST API with subscription
// key and region headers.
type Microsoft struct {
	BaseURL    string
	APIKey     string
	Region     string
	HTTPClient *http.Client
}

const microsoftDefaultURL = "https://api.cognitive.microsofttranslator.com/translate"

// NewMicrosoft builds the adapter.
func NewMicrosoft(apiKey, region string, timeout time.Duration, rps float64) *Microsoft {
	return &Microsoft{
		BaseURL:    microsoftDefaultURL,
		APIKey:     apiKey,
		Region:     region,
		HTTPClient: provider.NewHTTPClient(timeout, rps),
	}
}

func (m *Microsoft) Name() string            { return "microsoft" }
func (m *Microsoft) MaxChunkChars() int      { return 9000 }
func (m *Microsoft) SupportsFormality() bool { return false }

// Supports is permissive; the Translator API covers the configured set
// including the RTL target.
func (m *Microsoft) Supports(sourceLang, targetLang string) bool {
	return ToISO1(targetLang) != ""
}

// Translate sends one chunk.
func (m *Microsoft) Translate(ctx context.Context, text, targetLang, sourceLang string, _ Options) (string, error) {
	payload, err := json.Marshal([]map[string]string{{"Text": text}})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	u := m.BaseURL + "?api-version=3.0&to=" + ToISO1(targetLang)
	if sourceLang != "" {
		u += "&from=" + ToISO1(sourceLang)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", m.APIKey)
	if m.Region != "" {
		req.Header.Set("Ocp-Apim-Subscription-Region", m.Region)
	}

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return "", provider.ClassifyTransport(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", provider.ClassifyTransport(err)
	}
	if err := provider.Classify(resp.StatusCode, string(data[:min(len(data), 256)])); err != nil {
		return "", err
	}

	var body []struct {
		Translations []struct {
			Text string `json:"text"`
		} `json:"translations"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return "", fmt.Errorf("decode microsoft response: %v: %w", err, provider.ErrPermanent)
	}
	if len(body) == 0 || len(body[0].Translations) == 0 {
		return "", fmt.Errorf("empty microsoft response: %w", provider.ErrPermanent)
	}
	return body[0].Translations[0].Text, nil
}
