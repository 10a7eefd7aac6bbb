package canonical

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_SortsKeysAndCompacts(t *testing.T) {
	out, err := Marshal(json.RawMessage(`{ "b": 1, "a": {"d": [3, 2], "c": "x"} }`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"c":"x","d":[3,2]},"b":1}`, string(out))
}

func TestHash_KeyOrderDoesNotMatter(t *testing.T) {
	h1, err := Hash(json.RawMessage(`{"items":[{"id":"p1","quantity":2}],"buyer":null}`))
	require.NoError(t, err)
	h2, err := Hash(json.RawMessage(`{"buyer":null,"items":[{"quantity":2,"id":"p1"}]}`))
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHash_DifferentPayloadsDiffer(t *testing.T) {
	h1, err := Hash(map[string]any{"items": []any{map[string]any{"id": "p1", "quantity": 1}}})
	require.NoError(t, err)
	h2, err := Hash(map[string]any{"items": []any{map[string]any{"id": "p1", "quantity": 2}}})
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestHash_StructAndMapAgree(t *testing.T) {
	type item struct {
		Quantity int    `json:"quantity"`
		ID       string `json:"id"`
	}
	h1, err := Hash(item{ID: "p1", Quantity: 3})
	require.NoError(t, err)
	h2, err := Hash(map[string]any{"id": "p1", "quantity": 3})
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}

func TestMarshal_PreservesNumbersAndHTML(t *testing.T) {
	out, err := Marshal(json.RawMessage(`{"amount":12345678901234567890,"note":"a<b&c"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"amount":12345678901234567890,"note":"a<b&c"}`, string(out))
}

func TestMarshal_EmptyObject(t *testing.T) {
	out, err := Marshal(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(out))
}

func TestMarshal_InvalidJSON(t *testing.T) {
	_, err := Marshal(json.RawMessage(`{"a":`))
	assert.ErrorContains(t, err, "canonical: decode payload")
}
