package pass

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vandy-research/roster-cli/internal/dept"
	"github.com/vandy-research/roster-cli/internal/model"
	"github.com/vandy-research/roster-cli/internal/normalize"
)

func fisRaw(name, deptCode, email string) normalize.Raw {
	fields := map[string]any{"name": name, "department": deptCode}
	if email != "" {
		fields["email"] = email
	}
	return normalize.Raw{Source: model.SourceFIS, Fields: fields}
}

func bootstrapped(t *testing.T) *Controller {
	t.Helper()
	ctrl := NewController(&model.Dataset{}, 0)
	_, err := ctrl.Apply(model.SourceFIS, []normalize.Raw{
		fisRaw("Jane Smith", "bio", "jane.smith@vanderbilt.edu"),
		fisRaw("Robert Jones", "chem", "robert.jones@vanderbilt.edu"),
	})
	require.NoError(t, err)
	return ctrl
}

func TestApplyCreatesRecordsOnFirstSighting(t *testing.T) {
	t.Parallel()

	ctrl := bootstrapped(t)
	ds := ctrl.Dataset()

	require.Len(t, ds.Faculty, 2)
	assert.Regexp(t, `^faculty_[0-9a-f]{12}$`, ds.Faculty[0].ID)
	assert.Equal(t, model.StageBootstrapped, ds.Metadata.Stage)
	assert.Equal(t, []string{"FIS"}, ds.Metadata.DataSources)
}

func TestApplyRejectsUnknownTag(t *testing.T) {
	t.Parallel()

	ctrl := NewController(&model.Dataset{}, 0)
	_, err := ctrl.Apply(model.SourceTag("csv"), nil)
	assert.Error(t, err)
}

func TestApplyDeduplicatesAcrossSources(t *testing.T) {
	t.Parallel()

	ctrl := bootstrapped(t)

	summary, err := ctrl.Apply(model.SourceListing, []normalize.Raw{
		{
			Source:    model.SourceListing,
			OriginURL: "https://as.vanderbilt.edu/biology/people/",
			Fields: map[string]any{
				"name":       "Dr. Jane A. Smith",
				"department": "BIO",
				"url":        "https://jane.example.edu",
			},
		},
	})
	require.NoError(t, err)

	// Same person, no new record.
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 0, summary.Created)
	require.Len(t, ctrl.Dataset().Faculty, 2)

	jane := ctrl.Dataset().Faculty[0]
	assert.Equal(t, "Jane Smith", jane.Name)
	assert.Equal(t, "https://jane.example.edu", jane.Website)
	assert.Equal(t, model.StageListed, jane.Stage)
}

func TestApplyIdempotentRerun(t *testing.T) {
	t.Parallel()

	ctrl := bootstrapped(t)
	before := len(ctrl.Dataset().Faculty)

	summary, err := ctrl.Apply(model.SourceFIS, []normalize.Raw{
		fisRaw("Jane Smith", "bio", "jane.smith@vanderbilt.edu"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 0, summary.Created)
	assert.Len(t, ctrl.Dataset().Faculty, before)
}

func TestApplyRetainsOrphans(t *testing.T) {
	t.Parallel()

	ctrl := bootstrapped(t)

	summary, err := ctrl.Apply(model.SourceListing, []normalize.Raw{
		{
			Source:    model.SourceListing,
			OriginURL: "https://example.edu/people/",
			Fields:    map[string]any{"title": "Professor"}, // no name, no dept
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Orphans)
	require.Len(t, ctrl.Dataset().Unmatched, 1)
	orphan := ctrl.Dataset().Unmatched[0]
	assert.Equal(t, model.SourceListing, orphan.Source)
	assert.Equal(t, "https://example.edu/people/", orphan.OriginURL)
	assert.NotEmpty(t, orphan.Reason)
	// The original fields survive for manual review.
	assert.Equal(t, "Professor", orphan.Fields["title"])
}

func TestApplyProbableMatchAnnotated(t *testing.T) {
	t.Parallel()

	ctrl := NewController(&model.Dataset{}, 0)
	_, err := ctrl.Apply(model.SourceFIS, []normalize.Raw{
		fisRaw("Elizabeth Johnson", "math", ""),
	})
	require.NoError(t, err)

	summary, err := ctrl.Apply(model.SourceListing, []normalize.Raw{
		{
			Source: model.SourceListing,
			Fields: map[string]any{"name": "Lizabeth Johnson", "department": "math"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ProbableMatches)
	require.Len(t, ctrl.Dataset().Faculty, 1)
	require.Len(t, ctrl.Dataset().Faculty[0].MatchNotes, 1)
	assert.Contains(t, ctrl.Dataset().Faculty[0].MatchNotes[0], "probable match")
}

func TestApplyWebsiteExportBuildsWebsiteData(t *testing.T) {
	t.Parallel()

	ctrl := bootstrapped(t)
	summary, err := ctrl.Apply(model.SourceWebsite, []normalize.Raw{
		{
			Source:    model.SourceWebsite,
			OriginURL: "https://jane.example.edu",
			Fields: map[string]any{
				"name":                 "Jane Smith",
				"department":           "bio",
				"research_description": "Evolutionary genomics.",
				"research_keywords":    []any{"genomics", "phylogenetics"},
				"lab_name":             "Smith Lab",
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Matched)

	jane := ctrl.Dataset().Faculty[0]
	require.NotNil(t, jane.WebsiteData)
	assert.True(t, jane.WebsiteData.ExtractionSuccess)
	assert.Equal(t, "Evolutionary genomics.", jane.WebsiteData.ResearchDescription)
	assert.Equal(t, "Smith Lab", jane.WebsiteData.LabName)
	assert.Equal(t, "https://jane.example.edu", jane.WebsiteData.WebsiteURL)
	assert.Contains(t, jane.ResearchInterests, "genomics")
	assert.Equal(t, model.StageEnriched, jane.Stage)
}

func TestApplyWebsiteExportNestedBlock(t *testing.T) {
	t.Parallel()

	// Exports shaped like an enriched snapshot nest the extraction content.
	ctrl := bootstrapped(t)
	_, err := ctrl.Apply(model.SourceWebsite, []normalize.Raw{
		{
			Source:    model.SourceWebsite,
			OriginURL: "https://jane.example.edu",
			Fields: map[string]any{
				"name":       "Jane Smith",
				"department": "bio",
				"website_data": map[string]any{
					"research_description": "Evolutionary genomics.",
					"lab_name":             "Smith Lab",
				},
			},
		},
	})
	require.NoError(t, err)

	jane := ctrl.Dataset().Faculty[0]
	require.NotNil(t, jane.WebsiteData)
	assert.Equal(t, "Evolutionary genomics.", jane.WebsiteData.ResearchDescription)
	assert.Equal(t, "Smith Lab", jane.WebsiteData.LabName)
}

func TestApplyWebsiteExportHonorsFailureFlag(t *testing.T) {
	t.Parallel()

	ctrl := bootstrapped(t)
	summary, err := ctrl.Apply(model.SourceWebsite, []normalize.Raw{
		{
			Source:    model.SourceWebsite,
			OriginURL: "https://rjones.example.edu",
			Fields: map[string]any{
				"name":               "Robert Jones",
				"department":         "chem",
				"extraction_success": false,
				"error":              "page never rendered",
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Matched)
	assert.Nil(t, ctrl.Dataset().Faculty[1].WebsiteData)
	require.Len(t, ctrl.Dataset().Failures, 1)
	f := ctrl.Dataset().Failures[0]
	assert.Equal(t, "Robert Jones", f.Name)
	assert.Equal(t, "page never rendered", f.Reason)
}

func TestApplyOrphanRerunDoesNotDuplicate(t *testing.T) {
	t.Parallel()

	ctrl := bootstrapped(t)
	batch := []normalize.Raw{
		{
			Source:    model.SourceListing,
			OriginURL: "https://example.edu/people/",
			Fields:    map[string]any{"title": "Professor"},
		},
	}

	_, err := ctrl.Apply(model.SourceListing, batch)
	require.NoError(t, err)
	_, err = ctrl.Apply(model.SourceListing, batch)
	require.NoError(t, err)

	assert.Len(t, ctrl.Dataset().Unmatched, 1)
}

func TestApplyIndexesNewEmailMidPass(t *testing.T) {
	t.Parallel()

	ctrl := NewController(&model.Dataset{}, 0)
	_, err := ctrl.Apply(model.SourceFIS, []normalize.Raw{
		fisRaw("Jane Smith", "bio", ""),
	})
	require.NoError(t, err)

	// The listing contributes an email; a later record in the same batch that
	// only has the email (different name form) must resolve through it.
	_, err = ctrl.Apply(model.SourceListing, []normalize.Raw{
		{
			Source: model.SourceListing,
			Fields: map[string]any{"name": "Jane Smith", "department": "bio", "email": "jsmith@vanderbilt.edu"},
		},
		{
			Source: model.SourceListing,
			Fields: map[string]any{"name": "J.A. Smith-Watkins", "department": "bio", "email": "jsmith@vanderbilt.edu"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, ctrl.Dataset().Faculty, 1)
}

type fakeExtractor struct {
	mu       sync.Mutex
	listings map[string][]map[string]any
	websites map[string]map[string]any
	failURLs map[string]error
	calls    []string
}

func (f *fakeExtractor) ExtractListing(_ context.Context, d dept.Department) ([]map[string]any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, d.FacultyListURL)
	f.mu.Unlock()
	if err, ok := f.failURLs[d.FacultyListURL]; ok {
		return nil, err
	}
	return f.listings[d.FacultyListURL], nil
}

func (f *fakeExtractor) ExtractWebsite(_ context.Context, url, _ string) (map[string]any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if err, ok := f.failURLs[url]; ok {
		return nil, err
	}
	return f.websites[url], nil
}

func TestRunWebsitePassMergesAndIsolatesFailures(t *testing.T) {
	t.Parallel()

	ctrl := bootstrapped(t)
	_, err := ctrl.Apply(model.SourceListing, []normalize.Raw{
		{Source: model.SourceListing, Fields: map[string]any{
			"name": "Jane Smith", "department": "bio", "url": "https://jane.example.edu",
		}},
		{Source: model.SourceListing, Fields: map[string]any{
			"name": "Robert Jones", "department": "chem", "url": "https://rjones.example.edu",
		}},
	})
	require.NoError(t, err)

	ex := &fakeExtractor{
		websites: map[string]map[string]any{
			"https://jane.example.edu": {
				"research_description": "Evolutionary genomics.",
				"research_keywords":    []any{"genomics"},
			},
		},
		failURLs: map[string]error{
			"https://rjones.example.edu": errors.New("timeout after 120s"),
		},
	}

	summary, err := ctrl.RunWebsitePass(context.Background(), ex, WebsitePassOptions{RatePerSec: 1000})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.RecordsIn)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Failed)

	jane := ctrl.Dataset().Faculty[0]
	require.NotNil(t, jane.WebsiteData)
	assert.True(t, jane.WebsiteData.ExtractionSuccess)
	assert.Equal(t, "Evolutionary genomics.", jane.WebsiteData.ResearchDescription)
	assert.Equal(t, model.StageEnriched, jane.Stage)

	// The failed record keeps all prior-stage data and is listed as a failure.
	rob := ctrl.Dataset().Faculty[1]
	assert.Nil(t, rob.WebsiteData)
	assert.Equal(t, "https://rjones.example.edu", rob.Website)
	require.Len(t, ctrl.Dataset().Failures, 1)
	assert.Equal(t, rob.ID, ctrl.Dataset().Failures[0].RecordID)
	assert.Contains(t, ctrl.Dataset().Failures[0].Reason, "timeout")
}

func TestRunWebsitePassResumesByDefault(t *testing.T) {
	t.Parallel()

	ctrl := bootstrapped(t)
	_, err := ctrl.Apply(model.SourceListing, []normalize.Raw{
		{Source: model.SourceListing, Fields: map[string]any{
			"name": "Jane Smith", "department": "bio", "url": "https://jane.example.edu",
		}},
	})
	require.NoError(t, err)

	ex := &fakeExtractor{
		websites: map[string]map[string]any{
			"https://jane.example.edu": {"research_description": "First pass."},
		},
	}
	_, err = ctrl.RunWebsitePass(context.Background(), ex, WebsitePassOptions{RatePerSec: 1000})
	require.NoError(t, err)
	require.Len(t, ex.calls, 1)

	// Second run skips already-enriched records.
	summary, err := ctrl.RunWebsitePass(context.Background(), ex, WebsitePassOptions{RatePerSec: 1000})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.RecordsIn)
	assert.Len(t, ex.calls, 1)

	// Refresh reprocesses them.
	summary, err = ctrl.RunWebsitePass(context.Background(), ex, WebsitePassOptions{Refresh: true, RatePerSec: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RecordsIn)
	assert.Len(t, ex.calls, 2)
}

func TestRunWebsitePassFailureRerunsDoNotDuplicate(t *testing.T) {
	t.Parallel()

	ctrl := bootstrapped(t)
	_, err := ctrl.Apply(model.SourceListing, []normalize.Raw{
		{Source: model.SourceListing, Fields: map[string]any{
			"name": "Jane Smith", "department": "bio", "url": "https://jane.example.edu",
		}},
	})
	require.NoError(t, err)

	ex := &fakeExtractor{
		failURLs: map[string]error{
			"https://jane.example.edu": errors.New("timeout after 120s"),
		},
	}
	_, err = ctrl.RunWebsitePass(context.Background(), ex, WebsitePassOptions{RatePerSec: 1000})
	require.NoError(t, err)
	_, err = ctrl.RunWebsitePass(context.Background(), ex, WebsitePassOptions{RatePerSec: 1000})
	require.NoError(t, err)
	require.Len(t, ctrl.Dataset().Failures, 1)

	// Once the extraction succeeds the stale failure entry is dropped.
	delete(ex.failURLs, "https://jane.example.edu")
	ex.websites = map[string]map[string]any{
		"https://jane.example.edu": {"research_description": "Back online."},
	}
	_, err = ctrl.RunWebsitePass(context.Background(), ex, WebsitePassOptions{RatePerSec: 1000})
	require.NoError(t, err)
	assert.Empty(t, ctrl.Dataset().Failures)
	require.NotNil(t, ctrl.Dataset().Faculty[0].WebsiteData)
}

func TestCollectListings(t *testing.T) {
	t.Parallel()

	ctrl := NewController(&model.Dataset{}, 0)

	departments := []dept.Department{
		{Code: "bio", Name: "Biology", FacultyListURL: "https://example.edu/bio/people"},
		{Code: "chem", Name: "Chemistry", FacultyListURL: "https://example.edu/chem/people"},
		{Code: "hist", Name: "History"}, // no listing URL, skipped
	}

	ex := &fakeExtractor{
		listings: map[string][]map[string]any{
			"https://example.edu/bio/people": {
				{"name": "Jane Smith"},
			},
			"https://example.edu/chem/people": {
				{"name": "Robert Jones", "department_code": "chemistry"},
			},
		},
	}

	raws := ctrl.CollectListings(context.Background(), ex, departments, 2)
	require.Len(t, raws, 2)

	byName := map[string]normalize.Raw{}
	for _, r := range raws {
		byName[r.Fields["name"].(string)] = r
	}

	// Department code injected when the page did not provide one.
	assert.Equal(t, "bio", byName["Jane Smith"].Fields["department_code"])
	// A code from the page itself is preserved.
	assert.Equal(t, "chemistry", byName["Robert Jones"].Fields["department_code"])
	assert.Equal(t, "https://example.edu/bio/people", byName["Jane Smith"].OriginURL)
	assert.Len(t, ex.calls, 2)
}

func TestCollectListingsRecordsFailures(t *testing.T) {
	t.Parallel()

	ctrl := NewController(&model.Dataset{}, 0)
	departments := []dept.Department{
		{Code: "bio", FacultyListURL: "https://example.edu/bio/people"},
		{Code: "chem", FacultyListURL: "https://example.edu/chem/people"},
	}

	ex := &fakeExtractor{
		listings: map[string][]map[string]any{
			"https://example.edu/chem/people": {{"name": "Robert Jones"}},
		},
		failURLs: map[string]error{
			"https://example.edu/bio/people": errors.New("blocked by robots"),
		},
	}

	raws := ctrl.CollectListings(context.Background(), ex, departments, 1)
	assert.Len(t, raws, 1)
	require.Len(t, ctrl.Dataset().Failures, 1)
	assert.Equal(t, model.SourceListing, ctrl.Dataset().Failures[0].Source)
	assert.Contains(t, ctrl.Dataset().Failures[0].Reason, "robots")

	// Re-collection refreshes the failure entry rather than duplicating it.
	_ = ctrl.CollectListings(context.Background(), ex, departments, 1)
	assert.Len(t, ctrl.Dataset().Failures, 1)
}
