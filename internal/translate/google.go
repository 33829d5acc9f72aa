// SPDX-License-Identifier: MIT

package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/skeidel/voxpipe/internal/provider"
)

// Google is provider variant B: the Cloud Translation REST v2 API,
// authenticated from a service-account credentials file.
type Google struct {
	BaseURL    string
	HTTPClient *http.Client
}

const (
	googleDefaultURL = "https://translation.googleapis.com/language/translate/v2"
	googleScope      = "https://www.googleapis.com/auth/cloud-translation"
)

// NewGoogle builds the adapter from a credentials file path.
func NewGoogle(ctx context.Context, credsFile string, timeout time.Duration, rps float64) (*Google, error) {
	data, err := os.ReadFile(credsFile) // #nosec G304 -- operator-supplied credentials path
	if err != nil {
		return nil, fmt.Errorf("read google credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, googleScope)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}

	base := provider.NewHTTPClient(timeout, rps)
	client := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, base),
		creds.TokenSource,
	)
	client.Timeout = timeout

	return &Google{BaseURL: googleDefaultURL, HTTPClient: client}, nil
}

func (g *Google) Name() string            { return "google" }
func (g *Google) MaxChunkChars() int      { return 4500 }
func (g *Google) SupportsFormality() bool { return false }

// Supports is permissive; Cloud Translation covers the configured set
// including the RTL target.
func (g *Google) Supports(sourceLang, targetLang string) bool {
	return ToISO1(targetLang) != ""
}

// Translate sends one chunk through the v2 endpoint.
func (g *Google) Translate(ctx context.Context, text, targetLang, sourceLang string, _ Options) (string, error) {
	form := url.Values{}
	form.Set("q", text)
	form.Set("target", ToISO1(targetLang))
	form.Set("format", "text")
	if sourceLang != "" {
		form.Set("source", ToISO1(sourceLang))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.HTTPClient.Do(req)
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

	var body struct {
		Data struct {
			Translations []struct {
				TranslatedText string `json:"translatedText"`
			} `json:"translations"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return "", fmt.Errorf("decode google response: %v: %w", err, provider.ErrPermanent)
	}
	if len(body.Data.Translations) == 0 {
		return "", fmt.Errorf("empty google response: %w", provider.ErrPermanent)
	}
	// v2 HTML-escapes even in text mode.
	return html.UnescapeString(body.Data.Translations[0].TranslatedText), nil
}
