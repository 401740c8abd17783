package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdict struct {
	Confidence float64 `json:"confidence"`
	DueTime    string  `json:"due_time"`
	Message    string  `json:"message"`
}

func TestDecodeJSONObject_Bare(t *testing.T) {
	var v verdict
	err := DecodeJSONObject(`{"confidence": 42, "message": "hi"}`, &v)
	require.NoError(t, err)
	assert.Equal(t, 42.0, v.Confidence)
	assert.Equal(t, "hi", v.Message)
}

func TestDecodeJSONObject_EmbeddedInProse(t *testing.T) {
	text := `Here's my answer: {"confidence": 92, "due_time": "2024-01-02T10:00:00Z", "message": "Call back"}`
	var v verdict
	err := DecodeJSONObject(text, &v)
	require.NoError(t, err)
	assert.Equal(t, 92.0, v.Confidence)
	assert.Equal(t, "2024-01-02T10:00:00Z", v.DueTime)
	assert.Equal(t, "Call back", v.Message)
}

func TestDecodeJSONObject_MarkdownFence(t *testing.T) {
	text := "```json\n{\"confidence\": 88, \"message\": \"fenced\"}\n```"
	var v verdict
	err := DecodeJSONObject(text, &v)
	require.NoError(t, err)
	assert.Equal(t, 88.0, v.Confidence)
}

func TestDecodeJSONObject_BracesInsideStrings(t *testing.T) {
	text := `I think {"message": "use {braces} carefully", "confidence": 10} is right`
	var v verdict
	err := DecodeJSONObject(text, &v)
	require.NoError(t, err)
	assert.Equal(t, "use {braces} carefully", v.Message)
}

func TestDecodeJSONObject_Array(t *testing.T) {
	var items []string
	err := DecodeJSONObject(`The list: ["a", "b"] as requested`, &items)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, items)
}

func TestDecodeJSONObject_NoJSON(t *testing.T) {
	var v verdict
	err := DecodeJSONObject("no structured data here at all", &v)
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestDecodeJSONObject_UnbalancedBraces(t *testing.T) {
	var v verdict
	err := DecodeJSONObject(`starts but never ends {"confidence": 5`, &v)
	assert.ErrorIs(t, err, ErrNoJSON)
}
