package heuristics

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is a semantic group of field names relevant to filtering or search.
type Category string

const (
	CategoryPrice     Category = "price"
	CategoryArea      Category = "area"
	CategoryRooms     Category = "rooms"
	CategoryRegion    Category = "region"
	CategoryMetro     Category = "metro"
	CategoryFinishing Category = "finishing"
	CategoryDate      Category = "date"
	CategoryText      Category = "text"
	CategoryGeo       Category = "geo"
)

// FilterCategories are the categories reported as filter candidates, in report order.
var FilterCategories = []Category{
	CategoryPrice, CategoryArea, CategoryRooms, CategoryRegion,
	CategoryMetro, CategoryFinishing, CategoryDate,
}

// minPrefixLen is the shortest keyword allowed to match as a token prefix
// ("price" matches "prices"; "lat" must match exactly).
const minPrefixLen = 5

// KeywordMatcher classifies field names into categories.
type KeywordMatcher interface {
	// Categories returns every category the field name matches, sorted.
	Categories(fieldName string) []Category
	// Matches reports whether the field name matches one category.
	Matches(fieldName string, category Category) bool
}

// CategoryRule is the YAML form of one category.
// Keywords match whole name tokens (or token prefixes for long keywords);
// Suffixes match the raw field name, case-sensitively.
type CategoryRule struct {
	Keywords []string `yaml:"keywords"`
	Suffixes []string `yaml:"suffixes"`
}

// Dictionary is a KeywordMatcher backed by per-category rules.
type Dictionary struct {
	Rules map[Category]CategoryRule `yaml:"categories"`
}

// DefaultDictionary returns the built-in real-estate feed vocabulary.
func DefaultDictionary() *Dictionary {
	return &Dictionary{Rules: map[Category]CategoryRule{
		CategoryPrice:     {Keywords: []string{"price", "cost", "amount", "rub", "usd", "mortgage"}},
		CategoryArea:      {Keywords: []string{"area", "square", "sqm", "m2", "footage"}},
		CategoryRooms:     {Keywords: []string{"room", "rooms", "bedroom", "bedrooms", "studio"}},
		CategoryRegion:    {Keywords: []string{"region", "city", "district", "locality", "province", "town"}},
		CategoryMetro:     {Keywords: []string{"metro", "subway", "station", "underground"}},
		CategoryFinishing: {Keywords: []string{"finishing", "finish", "decoration", "renovation", "repair"}},
		CategoryDate: {
			Keywords: []string{"date", "deadline", "created", "updated", "published", "completion", "timestamp", "quarter"},
			Suffixes: []string{"_at", "At", "Date"},
		},
		CategoryText: {Keywords: []string{"description", "title", "name", "about", "text", "summary", "comment", "content", "body", "details", "note"}},
		CategoryGeo:  {Keywords: []string{"lat", "latitude", "lng", "lon", "long", "longitude", "coordinates", "coords", "geo", "geometry", "location", "point"}},
	}}
}

// LoadDictionary reads category rules from a YAML file. Categories present in
// the file replace the built-in rules for that category; others keep their defaults.
//
//	categories:
//	  price:
//	    keywords: [price, cena]
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keywords file: %w", err)
	}

	var override Dictionary
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse keywords file: %w", err)
	}

	dict := DefaultDictionary()
	for category, rule := range override.Rules {
		rule.Keywords = lowerAll(rule.Keywords)
		dict.Rules[category] = rule
	}
	return dict, nil
}

// Categories implements KeywordMatcher.
func (d *Dictionary) Categories(fieldName string) []Category {
	var out []Category
	for category := range d.Rules {
		if d.Matches(fieldName, category) {
			out = append(out, category)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Matches implements KeywordMatcher.
func (d *Dictionary) Matches(fieldName string, category Category) bool {
	rule, ok := d.Rules[category]
	if !ok || fieldName == "" {
		return false
	}

	for _, suffix := range rule.Suffixes {
		if len(fieldName) > len(suffix) && strings.HasSuffix(fieldName, suffix) {
			return true
		}
	}

	tokens := Tokenize(fieldName)
	for _, kw := range rule.Keywords {
		for _, tok := range tokens {
			if tok == kw || (len(kw) >= minPrefixLen && strings.HasPrefix(tok, kw)) {
				return true
			}
		}
	}
	return false
}

// IsLatitude reports whether a field name denotes a latitude column.
func IsLatitude(fieldName string) bool {
	return hasToken(fieldName, "lat", "latitude")
}

// IsLongitude reports whether a field name denotes a longitude column.
func IsLongitude(fieldName string) bool {
	return hasToken(fieldName, "lng", "lon", "long", "longitude")
}

func hasToken(fieldName string, words ...string) bool {
	for _, tok := range Tokenize(fieldName) {
		for _, w := range words {
			if tok == w {
				return true
			}
		}
	}
	return false
}

func lowerAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(w)
	}
	return out
}
