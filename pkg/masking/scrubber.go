// Package masking scrubs personally identifiable information from log
// messages and metadata before they reach any sink. Patterns are compiled
// once at construction; the scrubber is stateless afterwards and safe for
// concurrent use.
package masking

import "regexp"

// CompiledPattern holds a pre-compiled regex with its replacement token.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// Redaction tokens emitted in place of matched PII.
const (
	RedactedSSN      = "[SSN-REDACTED]"
	RedactedCard     = "[CARD-REDACTED]"
	RedactedEmail    = "[EMAIL-REDACTED]"
	RedactedPhone    = "[PHONE-REDACTED]"
	RedactedValue    = "[REDACTED]"
	CircularRef      = "[CIRCULAR-REFERENCE]"
)

// Scrubber applies PII masking to strings and structured metadata.
type Scrubber struct {
	patterns      []*CompiledPattern
	sensitiveKeys map[string]bool
}

// NewScrubber compiles the built-in PII patterns. Pattern order matters:
// card numbers must be masked before the generic long-digit-run sweep.
func NewScrubber() *Scrubber {
	return &Scrubber{
		patterns: []*CompiledPattern{
			{
				Name:        "ssn",
				Regex:       regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
				Replacement: RedactedSSN,
			},
			{
				Name:        "card",
				Regex:       regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{4}\b`),
				Replacement: RedactedCard,
			},
			{
				Name:        "email",
				Regex:       regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
				Replacement: RedactedEmail,
			},
			{
				Name:        "phone",
				Regex:       regexp.MustCompile(`\d{10,}`),
				Replacement: RedactedPhone,
			},
		},
		// Keys redacted wholesale regardless of value content. Matched
		// against the lowercased key with separators stripped.
		sensitiveKeys: map[string]bool{
			"ssn":        true,
			"password":   true,
			"token":      true,
			"creditcard": true,
		},
	}
}

// ScrubString masks all PII patterns in the input.
func (s *Scrubber) ScrubString(in string) string {
	out := in
	for _, p := range s.patterns {
		out = p.Regex.ReplaceAllString(out, p.Replacement)
	}
	return out
}

// IsSensitiveKey reports whether a metadata key must be redacted wholesale.
func (s *Scrubber) IsSensitiveKey(key string) bool {
	return s.sensitiveKeys[normalizeKey(key)]
}

func normalizeKey(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		case c == '_' || c == '-' || c == ' ':
			// separators dropped so credit_card and creditCard both match
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
