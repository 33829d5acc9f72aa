// SPDX-License-Identifier: MIT

// Package layout maps file identifiers to their canonical on-disk artifact
// paths. All artifacts for one media file live under a single directory
// derived from the sanitized filename stem.
package layout

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// Layout resolves artifact paths under a fixed output root.
type Layout struct {
	Root string
}

// New returns a Layout rooted at root.
func New(root string) Layout {
	return Layout{Root: root}
}

// Dir is the canonical directory holding every artifact for stem.
func (l Layout) Dir(stem string) string {
	return filepath.Join(l.Root, stem)
}

// SourcePath is where the original media is materialized.
func (l Layout) SourcePath(stem, ext string) string {
	return filepath.Join(l.Dir(stem), stem+normalizeExt(ext))
}

// AudioPath is the extracted-audio location for video sources.
func (l Layout) AudioPath(stem, audioExt string) string {
	return filepath.Join(l.Dir(stem), stem+normalizeExt(audioExt))
}

// TranscriptPath is the plain-text transcript.
func (l Layout) TranscriptPath(stem string) string {
	return filepath.Join(l.Dir(stem), stem+".txt")
}

// SegmentsJSONPath is the per-segment provider responses kept for audit.
func (l Layout) SegmentsJSONPath(stem string) string {
	return filepath.Join(l.Dir(stem), stem+".txt.segments.json")
}

// OrigSRTPath is the source-language subtitle.
func (l Layout) OrigSRTPath(stem string) string {
	return filepath.Join(l.Dir(stem), stem+".orig.srt")
}

// TranslationPath is the translated text for one target language.
func (l Layout) TranslationPath(stem, lang string) string {
	return filepath.Join(l.Dir(stem), stem+"."+lang+".txt")
}

// SubtitlePath is the translated subtitle for one target language.
func (l Layout) SubtitlePath(stem, lang string) string {
	return filepath.Join(l.Dir(stem), stem+"."+lang+".srt")
}

// EnsureDir creates the canonical directory for stem.
func (l Layout) EnsureDir(stem string) error {
	return os.MkdirAll(l.Dir(stem), 0o750)
}

// MaterializeSource makes the original media available inside the canonical
// directory, preferring a symlink and falling back to a copy. Idempotent: an
// existing destination is left alone.
func (l Layout) MaterializeSource(originalPath, stem, ext string) (string, error) {
	if err := l.EnsureDir(stem); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	dest := l.SourcePath(stem, ext)

	if _, err := os.Lstat(dest); err == nil {
		return dest, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat %s: %w", dest, err)
	}

	if err := os.Symlink(originalPath, dest); err == nil {
		return dest, nil
	}
	// Symlink denied (filesystem or policy): copy instead.
	if err := copyFile(originalPath, dest); err != nil {
		return "", fmt.Errorf("copy source: %w", err)
	}
	return dest, nil
}

// WriteFileAtomic writes data to path via a temp file and rename, creating
// the parent directory if needed. Readers never observe a partial artifact.
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	return renameio.WriteFile(path, data, 0o644)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src) // #nosec G304 -- path from the tracking store
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	t, err := renameio.TempFile("", dest)
	if err != nil {
		return err
	}
	defer func() { _ = t.Cleanup() }()

	if _, err := io.Copy(t, in); err != nil {
		return err
	}
	return t.CloseAtomicallyReplace()
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
