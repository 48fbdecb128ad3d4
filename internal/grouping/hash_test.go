package grouping

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashFromValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		values   []string
		expected string
	}{
		{name: "no values", values: nil, expected: "d41d8cd98f00b204e9800998ecf8427e"},
		{name: "single value", values: []string{"hello"}, expected: "5d41402abc4b2a76b9719d911017c592"},
		{name: "values are concatenated without separator", values: []string{"foo", "bar"}, expected: "3858f62230ac3c915f300c664312c63f"},
		{name: "split point does not matter", values: []string{"fo", "obar"}, expected: "3858f62230ac3c915f300c664312c63f"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, HashFromValues(tt.values))
		})
	}
}

func TestIsValidChecksum(t *testing.T) {
	t.Parallel()

	tests := []struct {
		checksum string
		valid    bool
	}{
		{checksum: "abcd1234abcd1234abcd1234abcd1234", valid: true},
		{checksum: "ABCD1234ABCD1234ABCD1234ABCD1234", valid: false},
		{checksum: "abcd1234abcd1234abcd1234abcd123", valid: false},
		{checksum: "abcd1234abcd1234abcd1234abcd12345", valid: false},
		{checksum: "not-a-hex-checksum-value", valid: false},
		{checksum: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.checksum, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.valid, IsValidChecksum(tt.checksum))
		})
	}
}
