// SPDX-License-Identifier: MIT

// Package discovery registers media files with the tracking store: one-shot
// directory scans, single-file adds and a filesystem watcher for drop
// directories.
package discovery

import (
	"context"
	"crypto/sha1" // #nosec G505 -- legacy checksum option, not a security boundary
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/skeidel/voxpipe/internal/avtool"
	"github.com/skeidel/voxpipe/internal/config"
	"github.com/skeidel/voxpipe/internal/layout"
	"github.com/skeidel/voxpipe/internal/log"
	"github.com/skeidel/voxpipe/internal/model"
	"github.com/skeidel/voxpipe/internal/sanitize"
	"github.com/skeidel/voxpipe/internal/store"
)

var filesDiscoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "voxpipe_files_discovered_total",
	Help: "Media files newly registered with the tracking store.",
})

// ErrUnsupported marks a path whose extension is neither audio nor video.
var ErrUnsupported = errors.New("unsupported media extension")

// Scanner registers media files found on disk.
type Scanner struct {
	Store  *store.Store
	Layout layout.Layout
	Tool   *avtool.Tool
	Conf   config.Config
}

// Result summarizes one scan.
type Result struct {
	Added   int
	Skipped int
	Failed  int
}

// Scan walks dirs and registers every recognized media file. Already-tracked
// and unsupported files are skipped; per-file failures are logged and counted
// but do not abort the walk.
func (s *Scanner) Scan(ctx context.Context, dirs ...string) (Result, error) {
	logger := log.WithComponentFromContext(ctx, "discovery")
	var res Result

	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() {
				return nil
			}

			_, aerr := s.Add(ctx, path)
			switch {
			case aerr == nil:
				res.Added++
			case errors.Is(aerr, store.ErrDuplicatePath), errors.Is(aerr, ErrUnsupported):
				res.Skipped++
			default:
				res.Failed++
				logger.Warn().Err(aerr).Str(log.FieldPath, path).Msg("failed to register file")
			}
			return nil
		})
		if err != nil {
			return res, fmt.Errorf("scan %s: %w", dir, err)
		}
	}

	logger.Info().
		Int("added", res.Added).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Strs("dirs", dirs).
		Msg("scan finished")
	return res, nil
}

// Add registers one media file: probe, checksum, sanitize, insert, and
// materialize the source into the artifact directory. Returns the file id.
func (s *Scanner) Add(ctx context.Context, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}

	mediaType, ok := s.mediaType(abs)
	if !ok {
		return "", fmt.Errorf("%s: %w", filepath.Ext(abs), ErrUnsupported)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}

	sum, err := s.checksum(abs)
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w", abs, err)
	}

	var durationPtr *float64
	if duration, perr := s.Tool.ProbeDuration(ctx, abs); perr == nil {
		durationPtr = &duration
	} else {
		// Non-fatal: the transcription path re-probes when it needs to split.
		logger := log.WithComponentFromContext(ctx, "discovery")
		logger.Warn().
			Err(perr).Str(log.FieldPath, abs).Msg("duration probe failed")
	}

	safe, err := s.uniqueSafeName(ctx, sanitize.Filename(abs))
	if err != nil {
		return "", fmt.Errorf("disambiguate %s: %w", abs, err)
	}
	id, err := s.Store.AddMedia(ctx, store.NewMedia{
		OriginalPath:    abs,
		SafeFilename:    safe,
		MediaType:       mediaType,
		FileSize:        info.Size(),
		DurationSeconds: durationPtr,
		Checksum:        sum,
	})
	if err != nil {
		return id, err
	}

	if _, merr := s.Layout.MaterializeSource(abs, sanitize.Stem(safe), filepath.Ext(safe)); merr != nil {
		logger := log.WithComponentFromContext(ctx, "discovery")
		logger.Warn().
			Err(merr).Str(log.FieldFileID, id).Msg("failed to materialize source")
	}

	filesDiscoveredTotal.Inc()
	logger := log.WithComponentFromContext(ctx, "discovery")
	logger.Info().
		Str(log.FieldFileID, id).
		Str(log.FieldPath, abs).
		Str("safe_filename", safe).
		Int64(log.FieldSizeBytes, info.Size()).
		Msg("file registered")
	return id, nil
}

// uniqueSafeName suffixes the sanitized name when its artifact stem already
// belongs to another tracked file. Distinct sources that sanitize to the same
// stem would otherwise share one artifact directory and overwrite each
// other's transcripts.
func (s *Scanner) uniqueSafeName(ctx context.Context, safe string) (string, error) {
	ext := filepath.Ext(safe)
	stem := strings.TrimSuffix(safe, ext)
	candidate := stem
	for i := 2; ; i++ {
		taken, err := s.Store.StemInUse(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate + ext, nil
		}
		candidate = fmt.Sprintf("%s_%d", stem, i)
	}
}

func (s *Scanner) mediaType(path string) (model.MediaType, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case s.Conf.IsAudioExt(ext):
		return model.MediaAudio, true
	case s.Conf.IsVideoExt(ext):
		return model.MediaVideo, true
	}
	return "", false
}

func (s *Scanner) checksum(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied media path
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	var h hash.Hash
	switch s.Conf.ChecksumAlgorithm {
	case "sha1":
		h = sha1.New() // #nosec G401 -- dedupe fingerprint only
	default:
		h = sha256.New()
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
