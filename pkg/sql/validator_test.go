package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatement_Valid(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no semicolon", "SELECT 1", "SELECT 1"},
		{"trailing semicolon", "SELECT 1;", "SELECT 1"},
		{"trailing semicolon and whitespace", "SELECT 1;  \n", "SELECT 1"},
		{"leading whitespace", "\n  SELECT 1", "SELECT 1"},
		{"semicolon in string literal", "SELECT 'a;b'", "SELECT 'a;b'"},
		{"escaped quote in literal", "SELECT 'it''s; fine';", "SELECT 'it''s; fine'"},
		{"semicolon in quoted identifier", `CREATE TABLE "odd;name" ("id" BIGINT)`, `CREATE TABLE "odd;name" ("id" BIGINT)`},
		{"escaped quote in identifier", `SELECT "a"";b"`, `SELECT "a"";b"`},
		{"semicolon in line comment", "SELECT 1 -- one; two\n", "SELECT 1 -- one; two"},
		{"semicolon in block comment", "SELECT /* a; b */ 1", "SELECT /* a; b */ 1"},
		{"nested block comment", "SELECT /* a /* b; */ c; */ 1", "SELECT /* a /* b; */ c; */ 1"},
		{"unicode identifier", `CREATE TABLE "жилые_комплексы" ("id" BIGINT)`, `CREATE TABLE "жилые_комплексы" ("id" BIGINT)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeStatement(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeStatement_MultipleStatements(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"two statements", "SELECT 1; SELECT 2"},
		{"two statements with trailing semicolon", "SELECT 1; SELECT 2;"},
		{"separator after literal", "SELECT 'a'; DROP TABLE users"},
		{"separator after comment", "SELECT 1 /* x */; DROP TABLE users"},
		{"separator after line comment", "SELECT 1 -- x\n; DROP TABLE users"},
		{"double trailing semicolon", "SELECT 1;;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeStatement(tt.input)
			assert.ErrorIs(t, err, ErrMultipleStatements)
		})
	}
}

func TestNormalizeStatement_Empty(t *testing.T) {
	for _, input := range []string{"", "   ", ";", " ; ", ";;"} {
		_, err := NormalizeStatement(input)
		assert.ErrorIs(t, err, ErrEmptyStatement, "input %q", input)
	}
}
