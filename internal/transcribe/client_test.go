// SPDX-License-Identifier: MIT

package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeidel/voxpipe/internal/provider"
)

func writeTestAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.mp3")
	require.NoError(t, os.WriteFile(path, []byte("fake audio bytes"), 0o644))
	return path
}

func TestClientTranscribe(t *testing.T) {
	var gotFields map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotFields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			gotFields[k] = v[0]
		}
		assert.Equal(t, "secret", r.Header.Get("xi-api-key"))
		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		_ = file.Close()

		_ = json.NewEncoder(w).Encode(map[string]any{
			"text": "hallo welt",
			"words": []map[string]any{
				{"text": "hallo", "start": 0.1, "end": 0.5},
				{"text": "welt", "start": 0.6, "end": 1.0},
			},
			"language_code":        "deu",
			"language_probability": 0.97,
		})
	}))
	defer srv.Close()

	c := NewClient("secret", 5*time.Second, 0)
	c.BaseURL = srv.URL

	res, err := c.Transcribe(context.Background(), writeTestAudio(t), Options{
		Model:          "scribe_v1",
		LanguageCode:   "deu",
		WordTimestamps: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "hallo welt", res.Text)
	require.Len(t, res.Words, 2)
	assert.Equal(t, "hallo", res.Words[0].Text)
	assert.Equal(t, "deu", res.DetectedLanguage)

	assert.Equal(t, "scribe_v1", gotFields["model_id"])
	assert.Equal(t, "deu", gotFields["language_code"])
	assert.Equal(t, "word", gotFields["timestamps_granularity"])
}

func TestClientTranscribeOmitsEmptyLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, hasLang := r.MultipartForm.Value["language_code"]
		assert.False(t, hasLang, "empty language hint must be omitted")
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "ok"})
	}))
	defer srv.Close()

	c := NewClient("k", 5*time.Second, 0)
	c.BaseURL = srv.URL

	_, err := c.Transcribe(context.Background(), writeTestAudio(t), Options{Model: "scribe_v1"})
	require.NoError(t, err)
}

func TestClientClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limit is transient", http.StatusTooManyRequests, provider.ErrRateLimit},
		{"server error is transient", http.StatusServiceUnavailable, provider.ErrTransient},
		{"bad request is permanent", http.StatusBadRequest, provider.ErrPermanent},
		{"auth failure", http.StatusUnauthorized, provider.ErrAuthFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope"))
			}))
			defer srv.Close()

			c := NewClient("k", 5*time.Second, 0)
			c.BaseURL = srv.URL

			_, err := c.Transcribe(context.Background(), writeTestAudio(t), Options{Model: "m"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
