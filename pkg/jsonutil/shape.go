package jsonutil

import "strings"

// itemsKeys are conventional names for the collection inside a paginated envelope.
var itemsKeys = []string{"items", "data", "results", "objects", "list", "records", "rows", "entries"}

// ItemsKey returns the root key holding the main collection of an envelope
// document: a conventional name first, then the first array of objects in key order.
// The empty string means the root itself is the collection or none was found.
func ItemsKey(doc any) string {
	obj, ok := doc.(map[string]any)
	if !ok {
		return ""
	}
	for _, k := range itemsKeys {
		if arr, ok := obj[k].([]any); ok && isObjectList(arr) {
			return k
		}
	}
	for _, k := range SortedKeys(obj) {
		if arr, ok := obj[k].([]any); ok && isObjectList(arr) {
			return k
		}
	}
	return ""
}

// CountItems returns the number of items in the main collection of doc.
// A root list counts itself; an envelope counts its ItemsKey array; anything else is 0.
func CountItems(doc any) int {
	switch t := doc.(type) {
	case []any:
		return len(t)
	case map[string]any:
		if key := ItemsKey(t); key != "" {
			return len(t[key].([]any))
		}
		for _, k := range itemsKeys {
			if arr, ok := t[k].([]any); ok {
				return len(arr)
			}
		}
	}
	return 0
}

// IsErrorPayload reports whether doc looks like an API error response
// rather than data: {"error": ...}, {"errors": [...]}, {"success": false},
// {"status": "error"}, or a lone message/detail object.
func IsErrorPayload(doc any) bool {
	obj, ok := doc.(map[string]any)
	if !ok {
		return false
	}
	if _, ok := obj["error"]; ok {
		return true
	}
	if errs, ok := obj["errors"]; ok && errs != nil {
		if arr, isArr := errs.([]any); !isArr || len(arr) > 0 {
			return true
		}
	}
	if success, ok := obj["success"].(bool); ok && !success {
		return true
	}
	if status, ok := obj["status"].(string); ok {
		switch strings.ToLower(status) {
		case "error", "fail", "failed", "not_found":
			return true
		}
	}
	if len(obj) <= 2 {
		_, hasMessage := obj["message"]
		_, hasDetail := obj["detail"]
		if (hasMessage || hasDetail) && ItemsKey(obj) == "" {
			return true
		}
	}
	return false
}

func isObjectList(arr []any) bool {
	if len(arr) == 0 {
		return false
	}
	_, ok := arr[0].(map[string]any)
	return ok
}
