// SPDX-License-Identifier: MIT

package translate

import (
	"strings"

	"github.com/pemistahl/lingua-go"
)

// Detector identifies the language of a paragraph. Used for paragraph
// routing: paragraphs already in the target language skip translation.
type Detector interface {
	Detect(text string) (lang string, ok bool)
}

// LinguaDetector wraps lingua-go over the configured language set.
type LinguaDetector struct {
	detector lingua.LanguageDetector
}

// NewLinguaDetector builds a detector restricted to the given ISO-639-1
// codes; unknown codes are skipped. Returns nil when fewer than two known
// languages remain, since single-language detection is meaningless.
func NewLinguaDetector(codes []string) *LinguaDetector {
	var langs []lingua.Language
	for _, c := range codes {
		if l, ok := linguaLanguage(c); ok {
			langs = append(langs, l)
		}
	}
	if len(langs) < 2 {
		return nil
	}
	return &LinguaDetector{
		detector: lingua.NewLanguageDetectorBuilder().FromLanguages(langs...).Build(),
	}
}

// Detect returns the ISO-639-1 code of the detected language.
func (d *LinguaDetector) Detect(text string) (string, bool) {
	if d == nil || strings.TrimSpace(text) == "" {
		return "", false
	}
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

func linguaLanguage(code string) (lingua.Language, bool) {
	switch ToISO1(code) {
	case "en":
		return lingua.English, true
	case "de":
		return lingua.German, true
	case "he":
		return lingua.Hebrew, true
	case "fr":
		return lingua.French, true
	case "es":
		return lingua.Spanish, true
	case "ru":
		return lingua.Russian, true
	case "pl":
		return lingua.Polish, true
	case "yi":
		return lingua.Yiddish, true
	default:
		return lingua.Unknown, false
	}
}
