package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONAsserter_Match(t *testing.T) {
	tests := []struct {
		name     string
		opts     []JSONOption
		actual   string
		expected string
		match    bool
	}{
		{
			name:     "key order does not matter",
			actual:   `{"peer":"phone","level":40}`,
			expected: `{"level":40,"peer":"phone"}`,
			match:    true,
		},
		{
			name:     "extra keys ignored by default",
			actual:   `{"peer":"phone","conn":"0x0000","level":40}`,
			expected: `{"peer":"phone","level":40}`,
			match:    true,
		},
		{
			name:     "extra keys reported on request",
			opts:     []JSONOption{WithIgnoreExtraKeys(false)},
			actual:   `{"peer":"phone","conn":"0x0000"}`,
			expected: `{"peer":"phone"}`,
			match:    false,
		},
		{
			name:     "presence placeholder accepts any value",
			actual:   `{"step":13,"error":"eda notify: transport_failed: injected link failure"}`,
			expected: `{"step":13,"error":"<<PRESENCE>>"}`,
			match:    true,
		},
		{
			name:     "presence placeholder requires the key",
			actual:   `{"step":13}`,
			expected: `{"step":13,"error":"<<PRESENCE>>"}`,
			match:    false,
		},
		{
			name:     "array order matters",
			actual:   `[{"level":40},{"level":55}]`,
			expected: `[{"level":55},{"level":40}]`,
			match:    false,
		},
		{
			name:     "ignored fields dropped at every depth",
			opts:     []JSONOption{WithIgnoredFields("conn")},
			actual:   `{"steps":[{"conn":"0x0002","peer":"phone"}]}`,
			expected: `{"steps":[{"conn":"0x0000","peer":"phone"}]}`,
			match:    true,
		},
		{
			name:     "value mismatch",
			actual:   `{"stats":{"replayed":0}}`,
			expected: `{"stats":{"replayed":1}}`,
			match:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := NewJSONAsserter(t, tt.opts...).Diff(tt.actual, tt.expected)
			if tt.match {
				assert.Empty(t, diff)
			} else {
				assert.NotEmpty(t, diff)
			}
		})
	}
}

func TestJSONAsserter_InvalidInput(t *testing.T) {
	ja := NewJSONAsserter(t)

	assert.Contains(t, ja.Diff(`{`, `{}`), "invalid actual JSON")
	assert.Contains(t, ja.Diff(`{}`, `nope`), "invalid expected JSON")
}

func TestJSONAsserter_AssertReportsFailure(t *testing.T) {
	rec := &recordingT{}

	ok := NewJSONAsserter(rec).Assert(`{"level":40}`, `{"level":41}`)

	assert.False(t, ok)
	assert.Len(t, rec.failures, 1)
}
