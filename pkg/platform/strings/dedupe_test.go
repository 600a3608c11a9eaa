package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil slice", input: nil, expected: nil},
		{name: "empty slice", input: []string{}, expected: []string{}},
		{
			name:     "trims whitespace",
			input:    []string{"  us  ", "gb  ", "  de"},
			expected: []string{"us", "gb", "de"},
		},
		{
			name:     "removes duplicates preserving order",
			input:    []string{"US", "GB", "US", "DE", "GB"},
			expected: []string{"US", "GB", "DE"},
		},
		{
			name:     "removes blanks",
			input:    []string{"US", "", "  ", "GB"},
			expected: []string{"US", "GB"},
		},
		{
			name:     "preserves case",
			input:    []string{"Us", "us", "US"},
			expected: []string{"Us", "us", "US"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestDedupeAndTrimUpper(t *testing.T) {
	assert.Equal(t, []string{"US", "GB"}, DedupeAndTrimUpper([]string{" us", "GB", "Us ", "gb", ""}))
	assert.Nil(t, DedupeAndTrimUpper(nil))
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected []string
	}{
		{name: "empty", raw: "", expected: nil},
		{name: "only whitespace", raw: "   ", expected: nil},
		{name: "single", raw: "US", expected: []string{"US"}},
		{name: "comma list", raw: "US, GB ,DE", expected: []string{"US", "GB", "DE"}},
		{name: "trailing separator and repeats", raw: "US,GB,US,", expected: []string{"US", "GB"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitList(tt.raw, ","))
		})
	}
}
