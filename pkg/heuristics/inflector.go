package heuristics

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// Inflector converts between singular and plural English nouns.
type Inflector interface {
	Singular(word string) string
	Plural(word string) string
}

// NewInflector returns the default English inflector.
func NewInflector() Inflector {
	return englishInflector{}
}

type englishInflector struct{}

// Singular singularizes the last underscore-separated word of a snake_case name,
// so "building_sections" becomes "building_section".
func (englishInflector) Singular(word string) string {
	return inflectLastWord(word, inflection.Singular)
}

// Plural pluralizes the last underscore-separated word of a snake_case name.
func (englishInflector) Plural(word string) string {
	return inflectLastWord(word, inflection.Plural)
}

func inflectLastWord(word string, fn func(string) string) string {
	if word == "" {
		return word
	}
	idx := strings.LastIndex(word, "_")
	if idx < 0 {
		return fn(word)
	}
	return word[:idx+1] + fn(word[idx+1:])
}
