// SPDX-License-Identifier: MIT

// Package config loads pipeline configuration with precedence
// environment > YAML file > defaults. Provider credentials are read from the
// environment only and never from the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MediaExtensions lists the recognized source file extensions per media type.
type MediaExtensions struct {
	Audio []string `yaml:"audio"`
	Video []string `yaml:"video"`
}

// Config is the full runtime configuration.
type Config struct {
	OutputDirectory string          `yaml:"output_directory"`
	DatabaseFile    string          `yaml:"database_file"`
	MediaExtensions MediaExtensions `yaml:"media_extensions"`

	ExtractAudioFormat  string `yaml:"extract_audio_format"`
	ExtractAudioQuality string `yaml:"extract_audio_quality"`

	MaxAudioSizeMB     int     `yaml:"max_audio_size_mb"`
	MaxSegmentSeconds  int     `yaml:"max_segment_seconds"`
	APIRetries         int     `yaml:"api_retries"`
	SegmentPauseSecs   float64 `yaml:"segment_pause_seconds"`
	APITimeoutSeconds  int     `yaml:"api_timeout_seconds"`
	ProviderRateLimit  float64 `yaml:"provider_rate_limit"`
	ItemTimeoutMinutes int     `yaml:"item_timeout_minutes"`

	TranscriptionWorkers int `yaml:"transcription_workers"`
	TranslationWorkers   int `yaml:"translation_workers"`
	BatchSize            int `yaml:"batch_size"`

	StalledTimeoutMinutes  int `yaml:"stalled_timeout_minutes"`
	SweepIntervalMinutes   int `yaml:"sweep_interval_minutes"`
	CheckIntervalSeconds   int `yaml:"check_interval_seconds"`
	RestartIntervalSeconds int `yaml:"restart_interval_seconds"`

	ForceReprocess     bool   `yaml:"force_reprocess"`
	ForceLanguage      string `yaml:"force_language"`
	AutoDetectLanguage bool   `yaml:"auto_detect_language"`

	TargetLanguages       []string `yaml:"target_languages"`
	DefaultSourceLanguage string   `yaml:"default_source_language"`
	DefaultProvider       string   `yaml:"default_translation_provider"`

	TranscriptionModel string `yaml:"transcription_model"`
	LLMModel           string `yaml:"llm_model"`
	LLMSecondaryModel  string `yaml:"llm_secondary_model"`
	PolishModel        string `yaml:"polish_model"`
	GlossaryFile       string `yaml:"glossary_file"`

	CacheDir          string `yaml:"cache_dir"`
	TranslationCache  bool   `yaml:"translation_cache"`
	ChecksumAlgorithm string `yaml:"checksum_algorithm"`

	WatchDirectories []string `yaml:"watch_directories"`
	OpsListen        string   `yaml:"ops_listen"`

	OTelEndpoint string `yaml:"otel_endpoint"`
	OTelProtocol string `yaml:"otel_protocol"`
	OTelInsecure bool   `yaml:"otel_insecure"`

	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
}

// Credentials holds provider secrets resolved from the environment. A missing
// key disables the corresponding provider.
type Credentials struct {
	ElevenLabsKey   string
	DeepLKey        string
	GoogleCredsFile string
	MicrosoftKey    string
	MicrosoftRegion string
	OpenAIKey       string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		OutputDirectory: "output",
		DatabaseFile:    "voxpipe.db",
		MediaExtensions: MediaExtensions{
			Audio: []string{".mp3", ".wav", ".m4a", ".flac", ".ogg", ".opus", ".aac", ".wma"},
			Video: []string{".mp4", ".mkv", ".mov", ".avi", ".webm", ".mts", ".m4v"},
		},
		ExtractAudioFormat:  "mp3",
		ExtractAudioQuality: "192k",

		MaxAudioSizeMB:     25,
		MaxSegmentSeconds:  600,
		APIRetries:         8,
		SegmentPauseSecs:   1,
		APITimeoutSeconds:  300,
		ItemTimeoutMinutes: 30,

		TranscriptionWorkers: 5,
		TranslationWorkers:   5,
		BatchSize:            10,

		StalledTimeoutMinutes:  30,
		SweepIntervalMinutes:   10,
		CheckIntervalSeconds:   60,
		RestartIntervalSeconds: 3600,

		AutoDetectLanguage: true,

		TargetLanguages:       []string{"en", "de", "he"},
		DefaultSourceLanguage: "deu",
		DefaultProvider:       "deepl",

		TranscriptionModel: "scribe_v1",
		LLMModel:           "gpt-4o",
		LLMSecondaryModel:  "gpt-4o-mini",
		PolishModel:        "gpt-4o",

		TranslationCache:  true,
		ChecksumAlgorithm: "sha256",

		OTelProtocol: "grpc",

		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
	}
}

// Load builds the configuration: defaults, then the YAML file (if path is
// non-empty or VOXPIPE_CONFIG is set), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("VOXPIPE_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cfg.OutputDirectory, ".cache")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.OutputDirectory = ParseString("VOXPIPE_OUTPUT_DIRECTORY", c.OutputDirectory)
	c.DatabaseFile = ParseString("VOXPIPE_DATABASE_FILE", c.DatabaseFile)
	c.ExtractAudioFormat = ParseString("VOXPIPE_EXTRACT_AUDIO_FORMAT", c.ExtractAudioFormat)
	c.ExtractAudioQuality = ParseString("VOXPIPE_EXTRACT_AUDIO_QUALITY", c.ExtractAudioQuality)
	c.MaxAudioSizeMB = ParseInt("VOXPIPE_MAX_AUDIO_SIZE_MB", c.MaxAudioSizeMB)
	c.MaxSegmentSeconds = ParseInt("VOXPIPE_MAX_SEGMENT_SECONDS", c.MaxSegmentSeconds)
	c.APIRetries = ParseInt("VOXPIPE_API_RETRIES", c.APIRetries)
	c.SegmentPauseSecs = ParseFloat("VOXPIPE_SEGMENT_PAUSE_SECONDS", c.SegmentPauseSecs)
	c.APITimeoutSeconds = ParseInt("VOXPIPE_API_TIMEOUT_SECONDS", c.APITimeoutSeconds)
	c.ProviderRateLimit = ParseFloat("VOXPIPE_PROVIDER_RATE_LIMIT", c.ProviderRateLimit)
	c.ItemTimeoutMinutes = ParseInt("VOXPIPE_ITEM_TIMEOUT_MINUTES", c.ItemTimeoutMinutes)
	c.TranscriptionWorkers = ParseInt("VOXPIPE_TRANSCRIPTION_WORKERS", c.TranscriptionWorkers)
	c.TranslationWorkers = ParseInt("VOXPIPE_TRANSLATION_WORKERS", c.TranslationWorkers)
	c.BatchSize = ParseInt("VOXPIPE_BATCH_SIZE", c.BatchSize)
	c.StalledTimeoutMinutes = ParseInt("VOXPIPE_STALLED_TIMEOUT_MINUTES", c.StalledTimeoutMinutes)
	c.SweepIntervalMinutes = ParseInt("VOXPIPE_SWEEP_INTERVAL_MINUTES", c.SweepIntervalMinutes)
	c.CheckIntervalSeconds = ParseInt("VOXPIPE_CHECK_INTERVAL_SECONDS", c.CheckIntervalSeconds)
	c.RestartIntervalSeconds = ParseInt("VOXPIPE_RESTART_INTERVAL_SECONDS", c.RestartIntervalSeconds)
	c.ForceReprocess = ParseBool("VOXPIPE_FORCE_REPROCESS", c.ForceReprocess)
	c.ForceLanguage = ParseString("VOXPIPE_FORCE_LANGUAGE", c.ForceLanguage)
	c.AutoDetectLanguage = ParseBool("VOXPIPE_AUTO_DETECT_LANGUAGE", c.AutoDetectLanguage)
	c.DefaultSourceLanguage = ParseString("VOXPIPE_DEFAULT_SOURCE_LANGUAGE", c.DefaultSourceLanguage)
	c.DefaultProvider = ParseString("VOXPIPE_DEFAULT_TRANSLATION_PROVIDER", c.DefaultProvider)
	c.TranscriptionModel = ParseString("VOXPIPE_TRANSCRIPTION_MODEL", c.TranscriptionModel)
	c.LLMModel = ParseString("VOXPIPE_LLM_MODEL", c.LLMModel)
	c.LLMSecondaryModel = ParseString("VOXPIPE_LLM_SECONDARY_MODEL", c.LLMSecondaryModel)
	c.PolishModel = ParseString("VOXPIPE_POLISH_MODEL", c.PolishModel)
	c.GlossaryFile = ParseString("VOXPIPE_GLOSSARY_FILE", c.GlossaryFile)
	c.CacheDir = ParseString("VOXPIPE_CACHE_DIR", c.CacheDir)
	c.TranslationCache = ParseBool("VOXPIPE_TRANSLATION_CACHE", c.TranslationCache)
	c.ChecksumAlgorithm = ParseString("VOXPIPE_CHECKSUM_ALGORITHM", c.ChecksumAlgorithm)
	c.OpsListen = ParseString("VOXPIPE_OPS_LISTEN", c.OpsListen)
	c.OTelEndpoint = ParseString("VOXPIPE_OTEL_ENDPOINT", c.OTelEndpoint)
	c.OTelProtocol = ParseString("VOXPIPE_OTEL_PROTOCOL", c.OTelProtocol)
	c.OTelInsecure = ParseBool("VOXPIPE_OTEL_INSECURE", c.OTelInsecure)
	c.FFmpegPath = ParseString("VOXPIPE_FFMPEG_PATH", c.FFmpegPath)
	c.FFprobePath = ParseString("VOXPIPE_FFPROBE_PATH", c.FFprobePath)

	if v := os.Getenv("VOXPIPE_TARGET_LANGUAGES"); v != "" {
		c.TargetLanguages = splitCSV(v)
	}
	if v := os.Getenv("VOXPIPE_WATCH_DIRECTORIES"); v != "" {
		c.WatchDirectories = splitCSV(v)
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks invariants that make the process unable to run. Any error
// here is fatal at startup.
func (c Config) Validate() error {
	if c.OutputDirectory == "" {
		return fmt.Errorf("output_directory must not be empty")
	}
	if c.DatabaseFile == "" {
		return fmt.Errorf("database_file must not be empty")
	}
	if c.MaxAudioSizeMB <= 0 {
		return fmt.Errorf("max_audio_size_mb must be positive, got %d", c.MaxAudioSizeMB)
	}
	if c.MaxSegmentSeconds <= 0 {
		return fmt.Errorf("max_segment_seconds must be positive, got %d", c.MaxSegmentSeconds)
	}
	if c.APIRetries < 0 {
		return fmt.Errorf("api_retries must not be negative, got %d", c.APIRetries)
	}
	if c.TranscriptionWorkers <= 0 || c.TranslationWorkers <= 0 {
		return fmt.Errorf("worker counts must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if len(c.TargetLanguages) == 0 {
		return fmt.Errorf("target_languages must not be empty")
	}
	for _, lang := range c.TargetLanguages {
		if len(lang) != 2 {
			return fmt.Errorf("target language %q is not an ISO-639-1 code", lang)
		}
	}
	switch c.ChecksumAlgorithm {
	case "sha256", "sha1":
	default:
		return fmt.Errorf("unsupported checksum_algorithm %q", c.ChecksumAlgorithm)
	}
	switch c.OTelProtocol {
	case "grpc", "http":
	default:
		return fmt.Errorf("otel_protocol must be grpc or http, got %q", c.OTelProtocol)
	}
	return nil
}

// ReadCredentials resolves provider secrets from the environment.
func ReadCredentials() Credentials {
	return Credentials{
		ElevenLabsKey:   os.Getenv("ELEVENLABS_API_KEY"),
		DeepLKey:        os.Getenv("DEEPL_API_KEY"),
		GoogleCredsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		MicrosoftKey:    os.Getenv("MS_TRANSLATOR_KEY"),
		MicrosoftRegion: os.Getenv("MS_TRANSLATOR_REGION"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
	}
}

// MaxAudioBytes converts the configured size limit to bytes.
func (c Config) MaxAudioBytes() int64 {
	return int64(c.MaxAudioSizeMB) * 1024 * 1024
}

// APITimeout returns the per-call provider timeout.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSeconds) * time.Second
}

// ItemTimeout returns the per-item soft cap.
func (c Config) ItemTimeout() time.Duration {
	return time.Duration(c.ItemTimeoutMinutes) * time.Minute
}

// StalledTimeout returns the stall-detection threshold.
func (c Config) StalledTimeout() time.Duration {
	return time.Duration(c.StalledTimeoutMinutes) * time.Minute
}

// SweepInterval returns how often stall recovery runs.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// SegmentPause returns the sleep between transcription segments.
func (c Config) SegmentPause() time.Duration {
	return time.Duration(c.SegmentPauseSecs * float64(time.Second))
}

// IsAudioExt reports whether ext (with leading dot) is a recognized audio extension.
func (c Config) IsAudioExt(ext string) bool {
	return containsFold(c.MediaExtensions.Audio, ext)
}

// IsVideoExt reports whether ext (with leading dot) is a recognized video extension.
func (c Config) IsVideoExt(ext string) bool {
	return containsFold(c.MediaExtensions.Video, ext)
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
