// Package sql renders PostgreSQL DDL for inferred tables and screens feed
// values before they end up in SQL.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates a rendered statement would execute as more than one.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
	// ErrEmptyStatement indicates nothing but whitespace and semicolons.
	ErrEmptyStatement = errors.New("empty SQL statement")
)

// NormalizeStatement trims whitespace and one trailing semicolon, then
// rejects input that still contains a statement separator outside quoted
// literals, quoted identifiers or comments.
func NormalizeStatement(stmt string) (string, error) {
	stmt = strings.TrimSpace(stmt)
	stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))
	if strings.Trim(stmt, "; \t\r\n") == "" {
		return "", ErrEmptyStatement
	}
	if hasSeparator(stmt) {
		return "", ErrMultipleStatements
	}
	return stmt, nil
}

// hasSeparator scans stmt with PostgreSQL quoting rules: '' and "" escape
// their quote, -- runs to end of line, /* */ blocks may nest.
func hasSeparator(stmt string) bool {
	const (
		normal = iota
		literal
		identifier
		lineComment
		blockComment
	)

	state := normal
	depth := 0
	runes := []rune(stmt)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch state {
		case normal:
			switch {
			case c == ';':
				return true
			case c == '\'':
				state = literal
			case c == '"':
				state = identifier
			case c == '-' && next == '-':
				state = lineComment
				i++
			case c == '/' && next == '*':
				state = blockComment
				depth = 1
				i++
			}
		case literal, identifier:
			quote := '\''
			if state == identifier {
				quote = '"'
			}
			if c == quote {
				if next == quote {
					i++
					continue
				}
				state = normal
			}
		case lineComment:
			if c == '\n' {
				state = normal
			}
		case blockComment:
			switch {
			case c == '/' && next == '*':
				depth++
				i++
			case c == '*' && next == '/':
				depth--
				i++
				if depth == 0 {
					state = normal
				}
			}
		}
	}
	return false
}
