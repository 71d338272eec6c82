// Package model defines the canonical faculty record, dataset snapshots, and
// merge-audit types shared across the reconciliation pipeline.
package model

import (
	"time"
)

// Stage identifies how far a record (or a dataset) has progressed through the
// enrichment pipeline.
type Stage string

const (
	StageBootstrapped Stage = "bootstrapped" // FIS spreadsheet only
	StageListed       Stage = "listed"       // department-listing merge applied
	StageEnriched     Stage = "enriched"     // website merge applied
)

// Ord returns the ordering of a stage for lag comparisons. Unknown stages
// order before bootstrapped.
func (s Stage) Ord() int {
	switch s {
	case StageBootstrapped:
		return 1
	case StageListed:
		return 2
	case StageEnriched:
		return 3
	default:
		return 0
	}
}

// Canonical scalar field keys. Every populated scalar must have a provenance
// entry under the same key.
const (
	FieldName           = "name"
	FieldTitle          = "title"
	FieldDepartmentCode = "department_code"
	FieldEmail          = "email"
	FieldPhone          = "phone"
	FieldOffice         = "office"
	FieldWebsite        = "website"
	FieldProfileURL     = "profile_url"
	FieldPhotoURL       = "photo_url"
	FieldLabWebsite     = "lab_website"
	FieldCVURL          = "cv_url"
	FieldCategory       = "category"
)

// ScalarFields lists every scalar field key in merge order.
var ScalarFields = []string{
	FieldName,
	FieldTitle,
	FieldDepartmentCode,
	FieldEmail,
	FieldPhone,
	FieldOffice,
	FieldWebsite,
	FieldProfileURL,
	FieldPhotoURL,
	FieldLabWebsite,
	FieldCVURL,
	FieldCategory,
}

// URLFields marks the scalar fields that must hold absolute URLs.
var URLFields = map[string]bool{
	FieldWebsite:    true,
	FieldProfileURL: true,
	FieldPhotoURL:   true,
	FieldLabWebsite: true,
	FieldCVURL:      true,
}

// WebsiteData is the nested block produced by the website-enrichment pass.
// It is replaced wholesale on every successful website extraction; partial
// merges inside the block are intentionally not supported.
type WebsiteData struct {
	WebsiteURL          string    `json:"website_url,omitempty"`
	ResearchDescription string    `json:"research_description,omitempty"`
	ResearchKeywords    []string  `json:"research_keywords,omitempty"`
	ResearchAreas       []string  `json:"research_areas,omitempty"`
	LabName             string    `json:"lab_name,omitempty"`
	Publications        []string  `json:"publications_listed,omitempty"`
	CoursesTaught       []string  `json:"courses_taught,omitempty"`
	FundingSources      []string  `json:"funding_sources,omitempty"`
	ExtractionSuccess   bool      `json:"extraction_success"`
	ExtractionMethod    string    `json:"extraction_method,omitempty"`
	ExtractionDate      time.Time `json:"extraction_date"`
}

// FacultyRecord is the canonical representation of one real person. A record
// is created once, mutated in place by later passes, and never deleted.
type FacultyRecord struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Title          string `json:"title,omitempty"`
	DepartmentCode string `json:"department_code"`

	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Office string `json:"office,omitempty"`

	Website    string `json:"website,omitempty"`
	ProfileURL string `json:"profile_url,omitempty"`
	PhotoURL   string `json:"photo_url,omitempty"`
	LabWebsite string `json:"lab_website,omitempty"`
	CVURL      string `json:"cv_url,omitempty"`

	Category          string   `json:"category,omitempty"`
	ResearchInterests []string `json:"research_interests,omitempty"`

	WebsiteData *WebsiteData `json:"website_data,omitempty"`

	// DataSources records every source that ever contributed, in first-seen
	// order. Append-only.
	DataSources []string `json:"data_sources"`

	// Provenance maps scalar field key -> source tag that last set it.
	Provenance map[string]string `json:"provenance,omitempty"`

	// MatchNotes carries lower-confidence identity-resolution annotations
	// (probable matches accepted without human review).
	MatchNotes []string `json:"match_notes,omitempty"`

	Stage Stage `json:"stage"`
}

// Get returns the value of a scalar field by key, or "" for unknown keys.
func (f *FacultyRecord) Get(field string) string {
	switch field {
	case FieldName:
		return f.Name
	case FieldTitle:
		return f.Title
	case FieldDepartmentCode:
		return f.DepartmentCode
	case FieldEmail:
		return f.Email
	case FieldPhone:
		return f.Phone
	case FieldOffice:
		return f.Office
	case FieldWebsite:
		return f.Website
	case FieldProfileURL:
		return f.ProfileURL
	case FieldPhotoURL:
		return f.PhotoURL
	case FieldLabWebsite:
		return f.LabWebsite
	case FieldCVURL:
		return f.CVURL
	case FieldCategory:
		return f.Category
	}
	return ""
}

// Set assigns a scalar field by key. Unknown keys are ignored.
func (f *FacultyRecord) Set(field, value string) {
	switch field {
	case FieldName:
		f.Name = value
	case FieldTitle:
		f.Title = value
	case FieldDepartmentCode:
		f.DepartmentCode = value
	case FieldEmail:
		f.Email = value
	case FieldPhone:
		f.Phone = value
	case FieldOffice:
		f.Office = value
	case FieldWebsite:
		f.Website = value
	case FieldProfileURL:
		f.ProfileURL = value
	case FieldPhotoURL:
		f.PhotoURL = value
	case FieldLabWebsite:
		f.LabWebsite = value
	case FieldCVURL:
		f.CVURL = value
	case FieldCategory:
		f.Category = value
	}
}

// HasSource reports whether the given source tag has already contributed.
func (f *FacultyRecord) HasSource(tag SourceTag) bool {
	for _, s := range f.DataSources {
		if s == string(tag) {
			return true
		}
	}
	return false
}

// AddSource appends a source tag if not already present. DataSources grows
// monotonically and is never re-ordered.
func (f *FacultyRecord) AddSource(tag SourceTag) {
	if !f.HasSource(tag) {
		f.DataSources = append(f.DataSources, string(tag))
	}
}

// AddInterests unions new research interests into the record, preserving
// first-seen order and deduplicating case-insensitively.
func (f *FacultyRecord) AddInterests(interests []string) {
	if len(interests) == 0 {
		return
	}
	seen := make(map[string]bool, len(f.ResearchInterests))
	for _, it := range f.ResearchInterests {
		seen[normKey(it)] = true
	}
	for _, it := range interests {
		k := normKey(it)
		if it == "" || seen[k] {
			continue
		}
		seen[k] = true
		f.ResearchInterests = append(f.ResearchInterests, it)
	}
}

// AddMatchNote appends an identity-resolution note if not already present.
func (f *FacultyRecord) AddMatchNote(note string) {
	for _, n := range f.MatchNotes {
		if n == note {
			return
		}
	}
	f.MatchNotes = append(f.MatchNotes, note)
}

// AdvanceStage raises the record's stage. Stages never move backwards.
func (f *FacultyRecord) AdvanceStage(s Stage) {
	if s.Ord() > f.Stage.Ord() {
		f.Stage = s
	}
}
