package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalMarshalSortsKeys(t *testing.T) {
	data, err := CanonicalMarshal(map[string]any{
		"zebra": 1,
		"alpha": map[string]any{"y": true, "x": nil},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"x":null,"y":true},"zebra":1}`, string(data))
}

func TestCanonicalMarshalStructOrder(t *testing.T) {
	// Field declaration order must not leak into the output.
	type entry struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	data, err := CanonicalMarshal(entry{Type: "blob", ID: "1234"})
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1234","type":"blob"}`, string(data))
}

func TestCanonicalMarshalNoWhitespace(t *testing.T) {
	data, err := CanonicalMarshal(map[string]any{"a": []any{1, "two", false}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,"two",false]}`, string(data))
	assert.NotContains(t, string(data), "\n")
}

func TestCanonicalMarshalDeterministic(t *testing.T) {
	v := map[string]any{"c": 3, "a": 1, "b": map[string]any{"z": 0, "a": 0}}
	first, err := CanonicalMarshal(v)
	require.NoError(t, err)
	for i := 0; i < 16; i++ {
		again, err := CanonicalMarshal(v)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}
