package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/models"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/services"
)

func TestPrintSummary(t *testing.T) {
	color.NoColor = true

	idField := "projects[].id"
	developers := "developers"
	result := &services.PipelineResult{
		Manifest: &models.DiscoveryManifest{
			RunID:      "run-1",
			PrimaryURL: "https://feed.example.com/api?token=secret",
			Pagination: models.PaginationInfo{Type: models.PaginationNextURL, SourceKey: "next_page_url", PagesFetched: 3},
			RegionFilter: models.RegionFilter{
				Detected: true,
				Method:   services.RegionMethodQueryParam,
				Key:      "city",
			},
			Probes: []models.ProbeResult{{Suffix: "blocks", Accepted: true}, {Suffix: "metro"}},
			Errors: []models.DiscoveryError{{Label: "page_4", Message: "http status 500"}},
			Totals: models.ManifestTotals{Files: 4, Bytes: 1024, ProbesAccepted: 1},
		},
		Report: &models.Report{
			Meta: models.ReportMeta{TotalEntities: 1, TotalFields: 3},
			Entities: []*models.ReportEntity{
				{TableName: "projects", ItemCount: 2, IDField: &idField},
			},
			Relationships: models.RelationshipSummary{
				SuggestedTableOrder: []string{"projects"},
				ForeignKeys: []models.ForeignKeyLink{
					{FromTable: "projects", ToTable: &developers, Field: "projects[].developer_id", Confidence: 0.9, Resolved: true},
					{FromTable: "projects", Field: "projects[].metro_id", Confidence: 0.5},
				},
			},
		},
		Artifacts: map[string]string{"report": "/tmp/run-1/report.json"},
	}

	var buf bytes.Buffer
	printSummary(&buf, result)
	text := buf.String()

	assert.Contains(t, text, "Run run-1")
	assert.NotContains(t, text, "secret")
	assert.Contains(t, text, "next_url via next_page_url, 3 page(s) fetched")
	assert.Contains(t, text, `query_param "city"`)
	assert.Contains(t, text, "1/2 accepted")
	assert.Contains(t, text, "[page_4] http status 500")
	assert.Contains(t, text, "1. projects (2 items, id projects[].id)")
	assert.Contains(t, text, "projects.developer_id -> developers (0.90)")
	assert.Contains(t, text, "projects.metro_id -> ? (0.50)")
	assert.Contains(t, text, "/tmp/run-1/report.json")
}

func TestPrintSummary_NoEntities(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	printSummary(&buf, &services.PipelineResult{
		Manifest: &models.DiscoveryManifest{RunID: "run-2", Pagination: models.PaginationInfo{Type: models.PaginationNone}},
		Report:   &models.Report{},
	})

	assert.Contains(t, buf.String(), "Pagination: none\n")
	assert.Contains(t, buf.String(), "No entities detected")
}

func TestPrintDDL(t *testing.T) {
	var buf bytes.Buffer
	printDDL(&buf, &models.Report{DDL: []string{
		`CREATE TABLE IF NOT EXISTS "projects" ("id" BIGINT PRIMARY KEY)`,
		`CREATE INDEX IF NOT EXISTS "idx_projects_id" ON "projects" ("id")`,
	}})

	assert.Equal(t, "\n"+
		`CREATE TABLE IF NOT EXISTS "projects" ("id" BIGINT PRIMARY KEY);`+"\n\n"+
		`CREATE INDEX IF NOT EXISTS "idx_projects_id" ON "projects" ("id");`+"\n\n",
		buf.String())

	buf.Reset()
	printDDL(&buf, nil)
	assert.Empty(t, buf.String())
}
