package heuristics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInflector(t *testing.T) {
	inf := NewInflector()

	assert.Equal(t, "developer", inf.Singular("developers"))
	assert.Equal(t, "property", inf.Singular("properties"))
	assert.Equal(t, "building_section", inf.Singular("building_sections"))
	assert.Equal(t, "developers", inf.Plural("developer"))
	assert.Equal(t, "cities", inf.Plural("city"))
	assert.Equal(t, "metro_stations", inf.Plural("metro_station"))
	assert.Equal(t, "", inf.Plural(""))
}
