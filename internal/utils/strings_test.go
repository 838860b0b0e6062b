package utils

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single value",
			input:    "EUR",
			expected: []string{"EUR"},
		},
		{
			name:     "varied spacing",
			input:    "USD,  GBP , SEK",
			expected: []string{"USD", "GBP", "SEK"},
		},
		{
			name:     "trailing comma",
			input:    "MARKET_DATA_UPDATED,",
			expected: []string{"MARKET_DATA_UPDATED"},
		},
		{
			name:     "only spaces",
			input:    "   ",
			expected: nil,
		},
		{
			name:     "multiple commas",
			input:    ",,1,,2,,",
			expected: []string{"1", "2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseCSV(tt.input))
		})
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := ParseIDs("3, 7,12")
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 7, 12}, ids)

	ids, err = ParseIDs("")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = ParseIDs("1,abc")
	assert.Error(t, err)

	_, err = ParseIDs("0")
	assert.Error(t, err)
}

func TestOperationTimer(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	OperationTimer("load_data_context", log)()

	assert.Contains(t, buf.String(), `"operation":"load_data_context"`)
	assert.NotContains(t, buf.String(), "Slow operation")
}
