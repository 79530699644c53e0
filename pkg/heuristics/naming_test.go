package heuristics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLastSegment(t *testing.T) {
	tests := map[string]string{
		"projects[].buildings[]":    "buildings",
		"projects[].buildings[].id": "id",
		"a.b.c":                     "c",
		"[]":                        "",
		"matrix[][]":                "matrix",
		"data.items[]":              "items",
		"name":                      "name",
	}
	for input, want := range tests {
		assert.Equal(t, want, LastSegment(input), input)
	}
}

func TestSegmentsAndArrayDepth(t *testing.T) {
	assert.Equal(t, []string{"projects", "buildings", "id"}, Segments("projects[].buildings[].id"))
	assert.Equal(t, []string{"id"}, Segments("[].id"))
	assert.Equal(t, 2, ArrayDepth("projects[].buildings[].id"))
	assert.Equal(t, 0, ArrayDepth("a.b"))
}

func TestToSnakeCase(t *testing.T) {
	tests := map[string]string{
		"buildingSections": "building_sections",
		"BuildingSections": "building_sections",
		"developer_id":     "developer_id",
		"HTTPServer":       "http_server",
		"ownerId":          "owner_id",
		"price per m2":     "price_per_m2",
		"kebab-case-name":  "kebab_case_name",
		"__weird__":        "weird",
		"":                 "",
	}
	for input, want := range tests {
		assert.Equal(t, want, ToSnakeCase(input), input)
	}
}

func TestIDNames(t *testing.T) {
	assert.True(t, IsIDFieldName("id"))
	assert.True(t, IsIDFieldName("developer_id"))
	assert.True(t, IsIDFieldName("ownerId"))
	assert.False(t, IsIDFieldName("paid"))
	assert.False(t, IsIDFieldName("Id"))
	assert.False(t, IsIDFieldName("identifier"))

	assert.Equal(t, "developer", ForeignKeyTarget("developer_id"))
	assert.Equal(t, "owner", ForeignKeyTarget("ownerId"))
	assert.Equal(t, "", ForeignKeyTarget("id"))
	assert.Equal(t, "", ForeignKeyTarget("paid"))
	assert.False(t, IsForeignKeyName("id"))
	assert.True(t, IsForeignKeyName("block_id"))
}

func TestIsNumericSegment(t *testing.T) {
	assert.True(t, IsNumericSegment("12345"))
	assert.False(t, IsNumericSegment("12a"))
	assert.False(t, IsNumericSegment(""))
}
