package services

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/heuristics"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/models"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/sql"
)

// tableDraft accumulates the columns of one table before rendering.
type tableDraft struct {
	table      sql.Table
	index      map[string]int // column name -> position in table.Columns
	fieldTypes map[string]string
}

func (d *tableDraft) addColumn(name, fieldType string, notNull bool) {
	if i, ok := d.index[name]; ok {
		// Two paths flattened onto one column: disagreeing types fall back to JSONB.
		if d.fieldTypes[name] != fieldType {
			d.fieldTypes[name] = models.FieldTypeMixed
			d.table.Columns[i].Type = sql.ColumnType(models.FieldTypeMixed)
		}
		d.table.Columns[i].NotNull = d.table.Columns[i].NotNull && notNull
		return
	}
	d.index[name] = len(d.table.Columns)
	d.fieldTypes[name] = fieldType
	d.table.Columns = append(d.table.Columns, sql.Column{
		Name:    name,
		Type:    sql.ColumnType(fieldType),
		NotNull: notNull,
	})
}

func (d *tableDraft) has(column string) bool {
	_, ok := d.index[column]
	return ok
}

// buildDDL renders the report as PostgreSQL DDL. Tables come in suggested
// order; foreign keys are separate ALTER statements so circular references
// still load; indexes come last.
func (b *reportBuilder) buildDDL(report *models.Report, fields map[string]*models.MergedField, fieldPaths []string, pathTables map[string]string) []string {
	drafts := make(map[string]*tableDraft, len(report.Entities))
	required := make(map[string]bool)
	for _, e := range report.Entities {
		d := &tableDraft{
			table:      sql.Table{Name: e.TableName},
			index:      make(map[string]int),
			fieldTypes: make(map[string]string),
		}
		if e.IDField != nil {
			d.table.PrimaryKey = columnName(heuristics.LastSegment(*e.IDField))
		}
		drafts[e.TableName] = d
		for _, p := range e.Fields.Required {
			required[p] = true
		}
	}

	for _, p := range fieldPaths {
		f := fields[p]
		if f.Type == models.FieldTypeObject {
			continue
		}
		if _, child := pathTables[p+heuristics.ArraySuffix]; child {
			continue
		}
		table, column, ok := fieldColumn(p, pathTables)
		if !ok || drafts[table] == nil {
			continue
		}
		drafts[table].addColumn(column, f.Type, required[p])
	}

	var fks []struct {
		table string
		fk    sql.ForeignKey
	}
	seenFK := make(map[string]bool)
	addFK := func(table, column, refTable string) {
		ref := drafts[refTable]
		if ref == nil || ref.table.PrimaryKey == "" || !ref.has(ref.table.PrimaryKey) {
			return
		}
		key := table + "\x00" + column
		if seenFK[key] {
			return
		}
		seenFK[key] = true
		fks = append(fks, struct {
			table string
			fk    sql.ForeignKey
		}{table, sql.ForeignKey{Column: column, RefTable: refTable, RefColumn: ref.table.PrimaryKey}})
	}

	for _, e := range report.Entities {
		if e.Parent == nil {
			continue
		}
		d := drafts[e.TableName]
		column := b.inflector.Singular(*e.Parent) + "_id"
		if !d.has(column) {
			linkType := models.FieldTypeInt
			if parent := drafts[*e.Parent]; parent != nil && parent.has(parent.table.PrimaryKey) {
				linkType = parent.fieldTypes[parent.table.PrimaryKey]
			}
			d.addColumn(column, linkType, false)
		}
		addFK(e.TableName, column, *e.Parent)
	}
	for _, link := range report.Relationships.ForeignKeys {
		if !link.Resolved || link.ToTable == nil {
			continue
		}
		column := columnName(heuristics.LastSegment(link.Field))
		if d := drafts[link.FromTable]; d != nil && d.has(column) {
			addFK(link.FromTable, column, *link.ToTable)
		}
	}

	ddl := []string{}
	for _, e := range report.Entities {
		d := drafts[e.TableName]
		if d.table.PrimaryKey != "" && !d.has(d.table.PrimaryKey) {
			d.table.PrimaryKey = ""
		}
		stmt, err := sql.CreateTable(d.table)
		if err != nil {
			b.logger.Debug("Skipping table DDL", zap.String("table", e.TableName), zap.Error(err))
			delete(drafts, e.TableName)
			continue
		}
		ddl = append(ddl, stmt)
	}

	for _, item := range fks {
		if drafts[item.table] == nil || drafts[item.fk.RefTable] == nil {
			continue
		}
		stmt, err := sql.AddForeignKey(item.table, item.fk)
		if err != nil {
			b.logger.Debug("Skipping foreign key DDL", zap.String("table", item.table), zap.Error(err))
			continue
		}
		ddl = append(ddl, stmt)
	}

	for _, rec := range report.IndexRecommendations {
		d := drafts[rec.Table]
		if d == nil || !indexColumnsExist(d, rec) {
			continue
		}
		stmt, err := sql.CreateIndex(rec)
		if err != nil {
			b.logger.Debug("Skipping index DDL", zap.String("table", rec.Table), zap.Error(err))
			continue
		}
		if stmt != "" {
			ddl = append(ddl, stmt)
		}
	}

	return ddl
}

func indexColumnsExist(d *tableDraft, rec models.IndexRecommendation) bool {
	columns := rec.Columns
	if len(columns) == 0 {
		columns = []string{rec.Column}
	}
	for _, c := range columns {
		if !d.has(c) {
			return false
		}
	}
	return true
}
