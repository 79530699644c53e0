package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/heuristics"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/logging"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/models"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/services"
)

// maxListedErrors bounds the errors echoed to the terminal; the manifest keeps all of them.
const maxListedErrors = 10

func printSummary(w io.Writer, result *services.PipelineResult) {
	printManifest(w, result.Manifest)
	if result.Report != nil {
		printReport(w, result.Report)
	}
	printArtifacts(w, result.Artifacts)
}

func printManifest(w io.Writer, m *models.DiscoveryManifest) {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed)

	bold.Fprintf(w, "Run %s\n", m.RunID)
	if m.PrimaryURL != "" {
		fmt.Fprintf(w, "  Primary:    %s\n", logging.SanitizeURL(m.PrimaryURL))
	}
	fmt.Fprintf(w, "  Files:      %d (%d bytes)\n", m.Totals.Files, m.Totals.Bytes)
	fmt.Fprintf(w, "  Pagination: %s", m.Pagination.Type)
	if m.Pagination.Type != models.PaginationNone {
		fmt.Fprintf(w, " via %s, %d page(s) fetched", m.Pagination.SourceKey, m.Pagination.PagesFetched)
	}
	fmt.Fprintln(w)

	if m.RegionFilter.Detected {
		cyan.Fprintf(w, "  Region:     %s %q\n", m.RegionFilter.Method, m.RegionFilter.Key)
	}
	if len(m.Probes) > 0 {
		fmt.Fprintf(w, "  Probes:     %d/%d accepted\n", m.Totals.ProbesAccepted, len(m.Probes))
	}

	if len(m.Errors) == 0 {
		return
	}
	yellow.Fprintf(w, "  Errors:     %d\n", len(m.Errors))
	for i, e := range m.Errors {
		if i == maxListedErrors {
			fmt.Fprintf(w, "    ... %d more\n", len(m.Errors)-maxListedErrors)
			break
		}
		red.Fprintf(w, "    - [%s] %s\n", e.Label, logging.SanitizeString(e.Message))
	}
}

func printReport(w io.Writer, r *models.Report) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	blue := color.New(color.FgBlue)

	fmt.Fprintln(w)
	if len(r.Entities) == 0 {
		yellow.Fprintln(w, "No entities detected")
	} else {
		green.Fprintf(w, "%d entities, %d fields\n", r.Meta.TotalEntities, r.Meta.TotalFields)
		bold.Fprintln(w, "  Table order:")
		for i, table := range r.Relationships.SuggestedTableOrder {
			fmt.Fprintf(w, "    %d. %s", i+1, table)
			if e := findEntity(r, table); e != nil {
				fmt.Fprintf(w, " (%d items", e.ItemCount)
				if e.IDField != nil {
					fmt.Fprintf(w, ", id %s", *e.IDField)
				}
				fmt.Fprint(w, ")")
			}
			fmt.Fprintln(w)
		}
	}

	if len(r.Relationships.ForeignKeys) > 0 {
		bold.Fprintln(w, "  Foreign keys:")
		for _, fk := range r.Relationships.ForeignKeys {
			target := "?"
			if fk.ToTable != nil {
				target = *fk.ToTable
			}
			blue.Fprintf(w, "    %s.%s -> %s (%.2f)\n", fk.FromTable, heuristics.LastSegment(fk.Field), target, fk.Confidence)
		}
	}
	if len(r.Relationships.CircularTables) > 0 {
		yellow.Fprintf(w, "  Circular dependencies: %s\n", strings.Join(r.Relationships.CircularTables, ", "))
	}

	fmt.Fprintf(w, "  Filter candidates: %d, full-text: %d, geo: %d, indexes: %d\n",
		len(r.FilterCandidates),
		len(r.SearchCandidates.FullText),
		len(r.SearchCandidates.Geo),
		len(r.IndexRecommendations))
	if n := len(r.DataQuality.SuspiciousValues); n > 0 {
		yellow.Fprintf(w, "  Suspicious values: %d (see data_quality.suspicious_values)\n", n)
	}
}

// printDDL writes the report's DDL as a runnable script.
func printDDL(w io.Writer, r *models.Report) {
	if r == nil || len(r.DDL) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, stmt := range r.DDL {
		fmt.Fprintf(w, "%s;\n\n", stmt)
	}
}

func printArtifacts(w io.Writer, artifacts map[string]string) {
	if len(artifacts) == 0 {
		return
	}
	names := make([]string, 0, len(artifacts))
	for name := range artifacts {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w)
	color.New(color.Bold).Fprintln(w, "Artifacts:")
	for _, name := range names {
		fmt.Fprintf(w, "  %-28s %s\n", name, artifacts[name])
	}
}

func findEntity(r *models.Report, table string) *models.ReportEntity {
	for _, e := range r.Entities {
		if e.TableName == table {
			return e
		}
	}
	return nil
}
