package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vandy-research/roster-cli/internal/model"
)

func sampleDataset() *model.Dataset {
	return &model.Dataset{
		Metadata: model.Metadata{Stage: model.StageEnriched, TotalFaculty: 3},
		Faculty: []*model.FacultyRecord{
			{
				ID: "faculty_a", Name: "Jane Smith", DepartmentCode: "bio",
				Email: "jane@vanderbilt.edu", Website: "https://jane.example.edu",
				ResearchInterests: []string{"genomics"},
				WebsiteData:       &model.WebsiteData{ExtractionSuccess: true},
				Stage:             model.StageEnriched,
			},
			{
				ID: "faculty_b", Name: "Robert Jones", DepartmentCode: "bio",
				Email: "rob@vanderbilt.edu",
				Stage: model.StageListed,
			},
			{
				ID: "faculty_c", Name: "Ada Moore", DepartmentCode: "chem",
				Stage: model.StageBootstrapped,
			},
		},
		Unmatched: []model.UnmatchedRecord{{Source: model.SourceListing, Reason: "no identity"}},
		Failures:  []model.ExtractionFailure{{Source: model.SourceWebsite, Reason: "timeout"}},
	}
}

func TestCompute(t *testing.T) {
	t.Parallel()

	cov := Compute(sampleDataset())

	assert.Equal(t, model.StageEnriched, cov.Stage)
	assert.Equal(t, 3, cov.TotalFaculty)
	assert.Equal(t, 2, cov.FieldCounts[model.FieldEmail])
	assert.Equal(t, 1, cov.FieldCounts[model.FieldWebsite])
	assert.Equal(t, 1, cov.FieldCounts["research_interests"])
	assert.Equal(t, 1, cov.FieldCounts["website_data"])
	assert.Equal(t, 1, cov.Unmatched)
	assert.Equal(t, 1, cov.Failures)

	assert.Equal(t, 1, cov.StageCounts[model.StageEnriched])
	assert.Equal(t, 1, cov.StageCounts[model.StageListed])
	assert.Equal(t, 1, cov.StageCounts[model.StageBootstrapped])

	bio := cov.ByDepartment["bio"]
	assert.Equal(t, 2, bio.Total)
	assert.Equal(t, 2, bio.WithEmail)
	assert.Equal(t, 1, bio.WithWebsite)
	assert.Equal(t, 1, bio.Enriched)

	chem := cov.ByDepartment["chem"]
	assert.Equal(t, 1, chem.Total)
	assert.Equal(t, 0, chem.WithEmail)
}

func TestComputeEmptyDataset(t *testing.T) {
	t.Parallel()

	cov := Compute(&model.Dataset{})
	assert.Equal(t, 0, cov.TotalFaculty)
	assert.Empty(t, cov.ByDepartment)
	// Percentages over zero totals must not divide by zero.
	out := FormatText(cov)
	assert.Contains(t, out, "Total Faculty: 0")
}

func TestComputeUnknownDepartmentBucket(t *testing.T) {
	t.Parallel()

	ds := &model.Dataset{Faculty: []*model.FacultyRecord{{ID: "x", Name: "No Dept"}}}
	cov := Compute(ds)
	assert.Equal(t, 1, cov.ByDepartment["unknown"].Total)
}

func TestFormatText(t *testing.T) {
	t.Parallel()

	out := FormatText(Compute(sampleDataset()))

	assert.Contains(t, out, "Faculty Roster Summary (enriched)")
	assert.Contains(t, out, "Total Faculty: 3")
	assert.Contains(t, out, "With Emails: 2 (66.7%)")
	assert.Contains(t, out, "Unmatched Records: 1")
	assert.Contains(t, out, "Extraction Failures: 1")
	assert.Contains(t, out, "bio: 2 faculty, 1 websites, 1 enriched")
}

func TestRenderTable(t *testing.T) {
	t.Parallel()

	out := RenderTable(Compute(sampleDataset()))

	require.NotEmpty(t, out)
	assert.Contains(t, out, "bio")
	assert.Contains(t, out, "chem")
	assert.Contains(t, out, "DEPARTMENT")
}

func TestAccessors(t *testing.T) {
	t.Parallel()

	ds := sampleDataset()
	assert.Len(t, Unmatched(ds), 1)
	assert.Len(t, Failures(ds), 1)
}
