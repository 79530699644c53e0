package sql

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/models"
)

// maxIdentifierBytes is PostgreSQL's NAMEDATALEN-1; longer names are truncated by the server.
const maxIdentifierBytes = 63

// Column is one column of a rendered table.
type Column struct {
	Name    string
	Type    string
	NotNull bool
}

// ForeignKey references RefTable(RefColumn) from Column.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Table is a table definition inferred from one entity.
type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey string // empty when the entity has no identifier
}

// ColumnType maps a resolved field type to a PostgreSQL column type.
func ColumnType(fieldType string) string {
	switch fieldType {
	case models.FieldTypeInt:
		return "BIGINT"
	case models.FieldTypeFloat:
		return "DOUBLE PRECISION"
	case models.FieldTypeBool:
		return "BOOLEAN"
	case models.FieldTypeString, models.FieldTypeNull:
		return "TEXT"
	default:
		return "JSONB"
	}
}

// QuoteIdent double-quotes name, doubling embedded quotes, truncated to
// the identifier length PostgreSQL keeps.
func QuoteIdent(name string) string {
	name = strings.ReplaceAll(name, "\x00", "")
	if len(name) > maxIdentifierBytes {
		cut := maxIdentifierBytes
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// CreateTable renders a CREATE TABLE statement.
func CreateTable(t Table) (string, error) {
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("table %s has no columns", t.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", QuoteIdent(t.Name))
	for i, c := range t.Columns {
		fmt.Fprintf(&b, "    %s %s", QuoteIdent(c.Name), c.Type)
		switch {
		case c.Name == t.PrimaryKey:
			b.WriteString(" PRIMARY KEY")
		case c.NotNull:
			b.WriteString(" NOT NULL")
		}
		if i < len(t.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")

	return NormalizeStatement(b.String())
}

// AddForeignKey renders an ALTER TABLE adding fk as a named constraint.
func AddForeignKey(table string, fk ForeignKey) (string, error) {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		QuoteIdent(table),
		QuoteIdent("fk_"+table+"_"+fk.Column),
		QuoteIdent(fk.Column),
		QuoteIdent(fk.RefTable),
		QuoteIdent(fk.RefColumn))
	return NormalizeStatement(stmt)
}

// CreateIndex renders an index recommendation. PRIMARY KEY recommendations
// are part of CREATE TABLE and render as "".
func CreateIndex(rec models.IndexRecommendation) (string, error) {
	columns := rec.Columns
	if len(columns) == 0 {
		columns = []string{rec.Column}
	}

	var stmt string
	switch rec.Type {
	case models.IndexPrimary:
		return "", nil
	case models.IndexBTree:
		quoted := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = QuoteIdent(c)
		}
		stmt = fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			QuoteIdent(indexName("idx", rec.Table, columns)), QuoteIdent(rec.Table), strings.Join(quoted, ", "))
	case models.IndexFulltext:
		stmt = fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (to_tsvector('simple', coalesce(%s, '')))",
			QuoteIdent(indexName("fts", rec.Table, columns)), QuoteIdent(rec.Table), QuoteIdent(columns[0]))
	case models.IndexSpatial:
		if len(columns) != 2 {
			return "", fmt.Errorf("spatial index on %s needs latitude and longitude columns", rec.Table)
		}
		// point(x, y) is (longitude, latitude).
		stmt = fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (point(%s, %s))",
			QuoteIdent(indexName("geo", rec.Table, columns)), QuoteIdent(rec.Table), QuoteIdent(columns[1]), QuoteIdent(columns[0]))
	default:
		return "", fmt.Errorf("unknown index type %q", rec.Type)
	}
	return NormalizeStatement(stmt)
}

func indexName(prefix, table string, columns []string) string {
	return prefix + "_" + table + "_" + strings.Join(columns, "_")
}
