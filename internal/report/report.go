// Package report computes coverage statistics over the merged roster for the
// downstream profile-generation consumer. It never re-derives merge logic;
// everything here is read-only over a dataset snapshot.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/vandy-research/roster-cli/internal/model"
)

// DeptStats is per-department coverage.
type DeptStats struct {
	Total       int `json:"total"`
	WithWebsite int `json:"with_website"`
	WithEmail   int `json:"with_email"`
	Enriched    int `json:"enriched"`
}

// Coverage summarizes one dataset snapshot.
type Coverage struct {
	Stage        model.Stage          `json:"stage"`
	TotalFaculty int                  `json:"total_faculty"`
	FieldCounts  map[string]int       `json:"field_counts"`
	StageCounts  map[model.Stage]int  `json:"stage_counts"`
	ByDepartment map[string]DeptStats `json:"by_department"`
	Unmatched    int                  `json:"unmatched"`
	Failures     int                  `json:"failures"`
}

// Compute walks the dataset once and builds its coverage summary.
func Compute(ds *model.Dataset) *Coverage {
	cov := &Coverage{
		Stage:        ds.Metadata.Stage,
		TotalFaculty: len(ds.Faculty),
		FieldCounts:  make(map[string]int),
		StageCounts:  make(map[model.Stage]int),
		ByDepartment: make(map[string]DeptStats),
		Unmatched:    len(ds.Unmatched),
		Failures:     len(ds.Failures),
	}

	for _, f := range ds.Faculty {
		for _, field := range model.ScalarFields {
			if f.Get(field) != "" {
				cov.FieldCounts[field]++
			}
		}
		if len(f.ResearchInterests) > 0 {
			cov.FieldCounts["research_interests"]++
		}
		if f.WebsiteData != nil && f.WebsiteData.ExtractionSuccess {
			cov.FieldCounts["website_data"]++
		}
		cov.StageCounts[f.Stage]++

		deptCode := f.DepartmentCode
		if deptCode == "" {
			deptCode = "unknown"
		}
		stats := cov.ByDepartment[deptCode]
		stats.Total++
		if f.Website != "" {
			stats.WithWebsite++
		}
		if f.Email != "" {
			stats.WithEmail++
		}
		if f.Stage == model.StageEnriched {
			stats.Enriched++
		}
		cov.ByDepartment[deptCode] = stats
	}

	return cov
}

// Unmatched returns the retained orphan records for manual review.
func Unmatched(ds *model.Dataset) []model.UnmatchedRecord { return ds.Unmatched }

// Failures returns extraction failures with their originating source tags.
func Failures(ds *model.Dataset) []model.ExtractionFailure { return ds.Failures }

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// FormatText renders the plain-text summary written alongside each snapshot.
func FormatText(cov *Coverage) string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== Faculty Roster Summary (%s) ===\n\n", cov.Stage)
	fmt.Fprintf(&b, "Total Faculty: %d\n", cov.TotalFaculty)
	fmt.Fprintf(&b, "With Emails: %d (%.1f%%)\n",
		cov.FieldCounts[model.FieldEmail], pct(cov.FieldCounts[model.FieldEmail], cov.TotalFaculty))
	fmt.Fprintf(&b, "With Websites: %d (%.1f%%)\n",
		cov.FieldCounts[model.FieldWebsite], pct(cov.FieldCounts[model.FieldWebsite], cov.TotalFaculty))
	fmt.Fprintf(&b, "With Website Data: %d (%.1f%%)\n",
		cov.FieldCounts["website_data"], pct(cov.FieldCounts["website_data"], cov.TotalFaculty))
	fmt.Fprintf(&b, "Unmatched Records: %d\n", cov.Unmatched)
	fmt.Fprintf(&b, "Extraction Failures: %d\n", cov.Failures)

	b.WriteString("\nBy Department:\n")
	for _, code := range sortedDepts(cov) {
		stats := cov.ByDepartment[code]
		fmt.Fprintf(&b, "  %s: %d faculty, %d websites, %d enriched\n",
			code, stats.Total, stats.WithWebsite, stats.Enriched)
	}

	b.WriteString("\nField Coverage:\n")
	fields := append([]string{}, model.ScalarFields...)
	fields = append(fields, "research_interests", "website_data")
	for _, field := range fields {
		fmt.Fprintf(&b, "  %s: %d (%.1f%%)\n",
			field, cov.FieldCounts[field], pct(cov.FieldCounts[field], cov.TotalFaculty))
	}

	return b.String()
}

// RenderTable renders the per-department coverage as a terminal table.
func RenderTable(cov *Coverage) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Department", "Faculty", "Emails", "Websites", "Enriched"})

	for _, code := range sortedDepts(cov) {
		stats := cov.ByDepartment[code]
		t.AppendRow(table.Row{code, stats.Total, stats.WithEmail, stats.WithWebsite, stats.Enriched})
	}
	t.AppendFooter(table.Row{"total", cov.TotalFaculty, cov.FieldCounts[model.FieldEmail],
		cov.FieldCounts[model.FieldWebsite], cov.StageCounts[model.StageEnriched]})

	return t.Render()
}

func sortedDepts(cov *Coverage) []string {
	codes := make([]string, 0, len(cov.ByDepartment))
	for code := range cov.ByDepartment {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
