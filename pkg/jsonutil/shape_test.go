package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, s string) any {
	t.Helper()
	doc, err := Decode([]byte(s))
	require.NoError(t, err)
	return doc
}

func TestItemsKeyAndCount(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantKey string
		want    int
	}{
		{"root list", `[{"id":1},{"id":2}]`, "", 2},
		{"conventional key", `{"meta":{},"items":[{"id":1}]}`, "items", 1},
		{"first object array", `{"blocks":[{"id":1},{"id":2},{"id":3}],"tags":["a"]}`, "blocks", 3},
		{"empty items", `{"items":[],"next_page_url":null}`, "", 0},
		{"scalar root", `42`, "", 0},
		{"no collection", `{"a":{"b":1}}`, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDecode(t, tt.doc)
			assert.Equal(t, tt.wantKey, ItemsKey(doc))
			assert.Equal(t, tt.want, CountItems(doc))
		})
	}
}

func TestIsErrorPayload(t *testing.T) {
	tests := []struct {
		doc  string
		want bool
	}{
		{`{"error":"not found"}`, true},
		{`{"errors":[{"code":404}]}`, true},
		{`{"errors":[],"items":[{"id":1}]}`, false},
		{`{"success":false,"data":null}`, true},
		{`{"status":"error"}`, true},
		{`{"message":"Unauthorized"}`, true},
		{`{"message":"ok","items":[{"id":1}]}`, false},
		{`{"items":[{"id":1}]}`, false},
		{`[{"id":1}]`, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsErrorPayload(mustDecode(t, tt.doc)), tt.doc)
	}
}
