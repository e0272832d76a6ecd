package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutput_Lookup(t *testing.T) {
	o := NewOutput("building\n\nok 3 packages\r\n", 0, 1500*time.Millisecond)

	tests := []struct {
		subject  string
		expected any
	}{
		{"output", "building\n\nok 3 packages"},
		{"", "building\n\nok 3 packages"},
		{"exitCode", 0},
		{"duration", int64(1500)},
		{"lines", []any{"building", "ok 3 packages"}},
		{"line[0]", "building"},
		{"line[-1]", "ok 3 packages"},
		{"line[5]", nil},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			v, err := o.Lookup(tt.subject)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}

	assert.False(t, o.IsJSON())
	_, err := o.Lookup("json.id")
	assert.ErrorContains(t, err, "output is not JSON")

	_, err = o.Lookup("header")
	assert.ErrorContains(t, err, `unknown subject "header"`)
}

func TestOutput_LookupJSON(t *testing.T) {
	o := NewOutput(`{"order": {"id": "A-17", "items": [{"sku": "x"}, {"sku": "y"}]}, "total": 42}`+"\n", 0, 0)
	require.True(t, o.IsJSON())

	v, err := o.Lookup("json.order.id")
	require.NoError(t, err)
	assert.Equal(t, "A-17", v)

	v, err = o.Lookup("json.order.items[1].sku")
	require.NoError(t, err)
	assert.Equal(t, "y", v)

	v, err = o.Lookup("json.total")
	require.NoError(t, err)
	assert.Equal(t, float64(42), v)

	v, err = o.Lookup("json.missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = o.Lookup("json")
	require.NoError(t, err)
	assert.IsType(t, map[string]any{}, v)
}

func TestExtractAll(t *testing.T) {
	o := NewOutput(`{"id": 7}`, 0, 0)

	values, err := ExtractAll(o, []Spec{
		{Name: "raw"},
		{Name: "id", From: "json.id"},
		{Name: "name", From: "json.name"},
		{Name: "bad", From: "status"},
	})

	assert.Equal(t, map[string]any{"raw": `{"id": 7}`, "id": float64(7)}, values)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `capture "name": json.name not found`)
	assert.Contains(t, err.Error(), `capture "bad": unknown subject "status"`)

	_, err = ExtractAll(o, []Spec{{Name: "raw"}})
	assert.NoError(t, err)
}
