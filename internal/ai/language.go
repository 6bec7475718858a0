package ai

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// LanguageDetect is the request value meaning "infer the language from the text".
const LanguageDetect = "detect"

// LanguageDetector infers the language of free text.
type LanguageDetector interface {
	Detect(ctx context.Context, text string) (string, error)
}

// NormalizeLanguage returns the base ISO 639-1 code for a tag like "en-US" or "EN".
func NormalizeLanguage(code string) (string, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", false
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", false
	}
	base, confidence := tag.Base()
	if confidence == language.No || base.String() == "und" {
		return "", false
	}
	return base.String(), true
}

// WantsDetection reports whether a requested language asks for detection.
func WantsDetection(code string) bool {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "", LanguageDetect, "auto":
		return true
	}
	return false
}

// LanguageName returns the English name of a language code, or the code itself.
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

// ProviderLanguageDetector asks the generation provider for the language code.
type ProviderLanguageDetector struct {
	provider Provider
	fallback string
}

// NewProviderLanguageDetector returns a detector that answers fallback when detection fails.
func NewProviderLanguageDetector(provider Provider, fallback string) *ProviderLanguageDetector {
	return &ProviderLanguageDetector{provider: provider, fallback: fallback}
}

const detectInstructions = "Identify the language of the user's text. " +
	"Answer with the two-letter ISO 639-1 code only, for example: en"

func (d *ProviderLanguageDetector) Detect(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return d.fallback, nil
	}
	completion, err := d.provider.Complete(ctx, detectInstructions, text)
	if err != nil {
		return d.fallback, err
	}
	answer := strings.Trim(strings.TrimSpace(completion.Text), ".\"'`")
	if code, ok := NormalizeLanguage(answer); ok {
		return code, nil
	}
	log.WithField("answer", answer).Debug("language detector returned an unknown code")
	return d.fallback, nil
}
