package dualmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONDirect(t *testing.T) {
	obj, err := ExtractJSON(`{"type": "decision", "action": "tap"}`)
	require.NoError(t, err)
	assert.Equal(t, "decision", obj["type"])
	assert.Equal(t, "tap", obj["action"])
}

func TestExtractJSONFencedBlock(t *testing.T) {
	text := "Here is my plan:\n```json\n{\"type\": \"plan\", \"summary\": \"open settings\"}\n```\nLet me know."

	obj, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.Equal(t, "plan", obj["type"])
	assert.Equal(t, "open settings", obj["summary"])
}

func TestExtractJSONBraceSpan(t *testing.T) {
	text := `The decision is {"type": "finish", "message": "done"} as requested.`

	obj, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.Equal(t, "finish", obj["type"])
	assert.Equal(t, "done", obj["message"])
}

func TestExtractJSONPrefersDirectOverFence(t *testing.T) {
	// A reply that is pure JSON parses directly even if it mentions fences.
	obj, err := ExtractJSON(`{"note": "wrap output in json fences"}`)
	require.NoError(t, err)
	assert.Equal(t, "wrap output in json fences", obj["note"])
}

func TestExtractJSONFailure(t *testing.T) {
	cases := []string{
		"no json here at all",
		"",
		"{broken json",
		"```json\nnot actually json\n```",
	}
	for _, text := range cases {
		_, err := ExtractJSON(text)
		assert.Error(t, err, "input %q", text)
	}
}
