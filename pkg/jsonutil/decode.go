// Package jsonutil decodes feed payloads without losing the integer/float
// distinction and classifies the decoded values.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/apperrors"
)

// Kind is the observed JSON type of a value.
type Kind string

const (
	KindNull   Kind = "null"
	KindBool   Kind = "bool"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindString Kind = "string"
	KindArray  Kind = "array"
	KindObject Kind = "object"
	KindMixed  Kind = "mixed"
)

// IsNumeric reports whether k is int or float.
func (k Kind) IsNumeric() bool {
	return k == KindInt || k == KindFloat
}

// Decode parses a JSON document, keeping numbers as json.Number.
// Any failure wraps apperrors.ErrDecode.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrDecode, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after document", apperrors.ErrDecode)
	}
	return doc, nil
}

// KindOf classifies a decoded value. Values decoded without UseNumber
// (float64) are treated as int when integral.
func KindOf(v any) Kind {
	switch t := v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case json.Number:
		if strings.ContainsAny(t.String(), ".eE") {
			return KindFloat
		}
		return KindInt
	case float64:
		if t == float64(int64(t)) {
			return KindInt
		}
		return KindFloat
	case float32:
		return KindFloat
	case int, int32, int64:
		return KindInt
	case string:
		return KindString
	case []any:
		return KindArray
	case map[string]any:
		return KindObject
	default:
		return KindMixed
	}
}

// ScalarString renders a non-null scalar as a string. ok is false for
// null, arrays and objects.
func ScalarString(v any) (s string, ok bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

// SortedKeys returns the keys of obj in lexical order.
func SortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Int returns v as an integer when it is an integral number or a numeric string.
func Int(v any) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), true
		}
		if f, err := t.Float64(); err == nil && f == float64(int(f)) {
			return int(f), true
		}
	case float64:
		if t == float64(int(t)) {
			return int(t), true
		}
	case int:
		return t, true
	case int64:
		return int(t), true
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n, true
		}
	}
	return 0, false
}
