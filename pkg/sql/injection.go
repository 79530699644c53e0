package sql

import (
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a value libinjection classified as SQL injection.
type InjectionCheckResult struct {
	Path        string // field path the value was observed at
	Value       string
	Fingerprint string // libinjection token fingerprint
}

// CheckValue runs libinjection over a string value. Non-string values and
// clean strings return nil.
//
//	CheckValue("projects[].name", "ЖК Солнечный")  // nil
//	CheckValue("projects[].name", "x' OR '1'='1")   // non-nil
func CheckValue(path string, value any) *InjectionCheckResult {
	s, ok := value.(string)
	if !ok || s == "" {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(s)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		Path:        path,
		Value:       s,
		Fingerprint: string(fingerprint),
	}
}

// CheckValues checks every value observed at path, in sorted order, skipping duplicates.
func CheckValues(path string, values []string) []*InjectionCheckResult {
	sorted := append([]string{}, values...)
	sort.Strings(sorted)

	var results []*InjectionCheckResult
	prev := ""
	for i, v := range sorted {
		if i > 0 && v == prev {
			continue
		}
		prev = v
		if r := CheckValue(path, v); r != nil {
			results = append(results, r)
		}
	}
	return results
}
