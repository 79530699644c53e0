package jsonutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/apperrors"
)

func TestDecode_PreservesNumbers(t *testing.T) {
	doc, err := Decode([]byte(`{"id": 7, "price": 12.5, "big": 12345678901234567890}`))
	require.NoError(t, err)

	obj := doc.(map[string]any)
	assert.Equal(t, KindInt, KindOf(obj["id"]))
	assert.Equal(t, KindFloat, KindOf(obj["price"]))
	assert.Equal(t, json.Number("12345678901234567890"), obj["big"])
}

func TestDecode_Errors(t *testing.T) {
	for _, input := range []string{``, `{`, `<html></html>`, `{"a":1} {"b":2}`} {
		_, err := Decode([]byte(input))
		assert.ErrorIs(t, err, apperrors.ErrDecode, "input %q", input)
	}
}

func TestDecode_Scalars(t *testing.T) {
	doc, err := Decode([]byte(` "hello" `))
	require.NoError(t, err)
	assert.Equal(t, KindString, KindOf(doc))

	doc, err = Decode([]byte(`null`))
	require.NoError(t, err)
	assert.Equal(t, KindNull, KindOf(doc))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		value any
		want  Kind
	}{
		{nil, KindNull},
		{true, KindBool},
		{json.Number("3"), KindInt},
		{json.Number("3.0"), KindFloat},
		{json.Number("1e3"), KindFloat},
		{float64(4), KindInt},
		{4.5, KindFloat},
		{"x", KindString},
		{[]any{}, KindArray},
		{map[string]any{}, KindObject},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.value), "%#v", tt.value)
	}
	assert.True(t, KindInt.IsNumeric())
	assert.False(t, KindString.IsNumeric())
}

func TestScalarString(t *testing.T) {
	s, ok := ScalarString(json.Number("42"))
	assert.True(t, ok)
	assert.Equal(t, "42", s)

	s, ok = ScalarString(false)
	assert.True(t, ok)
	assert.Equal(t, "false", s)

	_, ok = ScalarString(nil)
	assert.False(t, ok)
	_, ok = ScalarString([]any{1})
	assert.False(t, ok)
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]any{"c": 1, "a": 2, "b": 3}))
}

func TestInt(t *testing.T) {
	tests := []struct {
		in   any
		want int
		ok   bool
	}{
		{json.Number("3"), 3, true},
		{json.Number("3.0"), 3, true},
		{json.Number("3.5"), 0, false},
		{float64(12), 12, true},
		{"7", 7, true},
		{" 8 ", 8, true},
		{"seven", 0, false},
		{true, 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := Int(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}
