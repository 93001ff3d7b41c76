package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScrubString(t *testing.T) {
	s := NewScrubber()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "ssn",
			input:    "patient SSN 123-45-6789 on file",
			expected: "patient SSN [SSN-REDACTED] on file",
		},
		{
			name:     "card before phone sweep",
			input:    "card 4111 1111 1111 1111 charged",
			expected: "card [CARD-REDACTED] charged",
		},
		{
			name:     "card without separators",
			input:    "card 4111111111111111 charged",
			expected: "card [CARD-REDACTED] charged",
		},
		{
			name:     "email",
			input:    "contact jane.doe@example.org for records",
			expected: "contact [EMAIL-REDACTED] for records",
		},
		{
			name:     "long digit run",
			input:    "callback 4145551234567",
			expected: "callback [PHONE-REDACTED]",
		},
		{
			name:     "clean text untouched",
			input:    "laparoscopic cholecystectomy performed",
			expected: "laparoscopic cholecystectomy performed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.ScrubString(tt.input))
		})
	}
}

func TestIsSensitiveKey(t *testing.T) {
	s := NewScrubber()

	assert.True(t, s.IsSensitiveKey("ssn"))
	assert.True(t, s.IsSensitiveKey("SSN"))
	assert.True(t, s.IsSensitiveKey("password"))
	assert.True(t, s.IsSensitiveKey("creditCard"))
	assert.True(t, s.IsSensitiveKey("credit_card"))
	assert.False(t, s.IsSensitiveKey("apiToken"))
	assert.False(t, s.IsSensitiveKey("caseId"))
}

func TestScrubMap(t *testing.T) {
	s := NewScrubber()

	out := s.ScrubMap(map[string]any{
		"caseId":   "case-1",
		"ssn":      "123-45-6789",
		"password": "hunter2",
		"note":     "email john@clinic.com",
		"nested": map[string]any{
			"token": "abc",
			"phone": "call 12345678901",
		},
	})

	assert.Equal(t, "case-1", out["caseId"])
	assert.Equal(t, RedactedValue, out["ssn"])
	assert.Equal(t, RedactedValue, out["password"])
	assert.Equal(t, "email [EMAIL-REDACTED]", out["note"])
	nested := out["nested"].(map[string]any)
	assert.Equal(t, RedactedValue, nested["token"])
	assert.Equal(t, "call [PHONE-REDACTED]", nested["phone"])
}

func TestScrubMapCircularReference(t *testing.T) {
	s := NewScrubber()

	m := map[string]any{"label": "ok"}
	m["self"] = m

	out := s.ScrubMap(m)
	assert.Equal(t, "ok", out["label"])
	assert.Equal(t, CircularRef, out["self"])
}

func TestScrubValueSlice(t *testing.T) {
	s := NewScrubber()

	out := s.ScrubValue([]any{"ssn 999-88-7777", 42, true})
	list := out.([]any)
	assert.Equal(t, "ssn [SSN-REDACTED]", list[0])
	assert.Equal(t, 42, list[1])
	assert.Equal(t, true, list[2])
}
