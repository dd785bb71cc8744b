package correlation

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextID_Unique(t *testing.T) {
	r := New()
	seen := make(map[string]struct{}, 1000)
	for range 1000 {
		id := r.NextID()
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestZeroValueRegistry(t *testing.T) {
	var r Registry
	assert.NotEmpty(t, r.NextID())
}

func TestMatches(t *testing.T) {
	r := New()
	id := r.NextID()

	assert.True(t, r.Matches(id, id))
	assert.False(t, r.Matches(id, r.NextID()))
	assert.False(t, r.Matches("", ""), "empty ids never correlate")
}

func TestCallID(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
		ok   bool
	}{
		{name: "string", in: "abc", want: "abc", ok: true},
		{name: "number", in: float64(42), want: "42", ok: true},
		{name: "json number", in: json.Number("7"), want: "7", ok: true},
		{name: "missing", in: nil, ok: false},
		{name: "object", in: map[string]any{}, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CallID(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
