// SPDX-License-Identifier: MIT

// Package transcribe drives single files through speech-to-text: the HTTP
// provider adapter, large-file segmentation and timestamp stitching.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/skeidel/voxpipe/internal/provider"
	"github.com/skeidel/voxpipe/internal/subtitle"
)

// Options selects model and behavior for one transcription request.
type Options struct {
	Model          string
	LanguageCode   string // empty lets the provider auto-detect
	Diarize        bool
	TagAudioEvents bool
	WordTimestamps bool
	Timeout        time.Duration
}

// Result is one provider response.
type Result struct {
	Text                string          `json:"text"`
	Words               []subtitle.Word `json:"words"`
	DetectedLanguage    string          `json:"language_code,omitempty"`
	LanguageProbability float64         `json:"language_probability,omitempty"`
}

// Transcriber is the capability the engine depends on.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error)
}

// Client speaks the speech-to-text HTTP API via multipart upload.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

const defaultBaseURL = "https://api.elevenlabs.io/v1/speech-to-text"

// NewClient builds the provider adapter. rps <= 0 disables rate limiting.
func NewClient(apiKey string, timeout time.Duration, rps float64) *Client {
	return &Client{
		BaseURL:    defaultBaseURL,
		APIKey:     apiKey,
		HTTPClient: provider.NewHTTPClient(timeout, rps),
	}
}

// Transcribe uploads one audio file and decodes the transcript with
// word-level timings. Outcomes are classified onto the provider taxonomy.
func (c *Client) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	f, err := os.Open(audioPath) // #nosec G304 -- path from the tracking store
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer func() { _ = f.Close() }()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy audio into form: %w", err)
	}

	fields := map[string]string{
		"model_id":         opts.Model,
		"diarize":          strconv.FormatBool(opts.Diarize),
		"tag_audio_events": strconv.FormatBool(opts.TagAudioEvents),
	}
	if opts.WordTimestamps {
		fields["timestamps_granularity"] = "word"
	} else {
		fields["timestamps_granularity"] = "none"
	}
	if opts.LanguageCode != "" {
		fields["language_code"] = opts.LanguageCode
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize form: %w", err)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("xi-api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, provider.ClassifyTransport(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, provider.ClassifyTransport(err)
	}
	if err := provider.Classify(resp.StatusCode, excerpt(data)); err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode transcription response: %v: %w", err, provider.ErrPermanent)
	}
	return &result, nil
}

func excerpt(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
