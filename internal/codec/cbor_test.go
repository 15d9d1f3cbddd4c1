package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Action string            `cbor:"action"`
	Fields map[string]string `cbor:"fields,omitempty"`
}

func TestMarshal_Deterministic(t *testing.T) {
	a, err := Marshal(map[string]any{"b": 1, "a": "x", "c": true})
	require.NoError(t, err)
	b, err := Marshal(map[string]any{"c": true, "a": "x", "b": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestUnmarshal_AnyTargetsUseStringKeys(t *testing.T) {
	data, err := Marshal(sample{Action: "compile", Fields: map[string]string{"fqbn": "a:b:c"}})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, Unmarshal(data, &decoded))
	assert.Equal(t, "compile", decoded["action"])

	fields, ok := decoded["fields"].(map[string]any)
	require.True(t, ok, "nested maps decode as map[string]any, got %T", decoded["fields"])
	assert.Equal(t, "a:b:c", fields["fqbn"])
}

func TestUnmarshal_IgnoresUnknownFields(t *testing.T) {
	data, err := Marshal(map[string]any{"action": "compile", "added_later": 7})
	require.NoError(t, err)

	var s sample
	require.NoError(t, Unmarshal(data, &s))
	assert.Equal(t, "compile", s.Action)
}

func TestEncoderDecoder_Sequence(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, action := range []string{"one", "two", "three"} {
		require.NoError(t, enc.Encode(sample{Action: action}))
	}

	dec := NewDecoder(&buf)
	var got []string
	for i := 0; i < 3; i++ {
		var s sample
		require.NoError(t, dec.Decode(&s))
		got = append(got, s.Action)
	}
	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(map[string]any{"kind": "progress"})
	require.NoError(t, err)

	diag, err := Diagnose(data)
	require.NoError(t, err)
	assert.Equal(t, `{"kind": "progress"}`, diag)
}
