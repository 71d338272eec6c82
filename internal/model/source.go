package model

import "strings"

// SourceTag identifies which collection pass produced a value.
type SourceTag string

const (
	SourceFIS     SourceTag = "FIS"
	SourceListing SourceTag = "web_scraping_listing"
	SourceWebsite SourceTag = "web_scraping_website"
)

// Valid reports whether the tag is one of the known sources.
func (t SourceTag) Valid() bool {
	switch t {
	case SourceFIS, SourceListing, SourceWebsite:
		return true
	}
	return false
}

// Stage returns the pipeline stage a successful merge from this source
// advances a record to.
func (t SourceTag) Stage() Stage {
	switch t {
	case SourceFIS:
		return StageBootstrapped
	case SourceListing:
		return StageListed
	case SourceWebsite:
		return StageEnriched
	}
	return ""
}

// sourcePriorities declares, per source, which scalar fields the source can
// populate and its trust for each. Higher wins a conflict; a zero entry means
// the source never populates that field. The spreadsheet is authoritative for
// identity fields, the department listing for discovery URLs, the personal
// website for lab/CV links.
var sourcePriorities = map[SourceTag]map[string]int{
	SourceFIS: {
		FieldName:           3,
		FieldDepartmentCode: 3,
		FieldEmail:          3,
		FieldTitle:          3,
		FieldCategory:       2,
	},
	SourceListing: {
		FieldName:           1,
		FieldDepartmentCode: 1,
		FieldEmail:          2,
		FieldTitle:          2,
		FieldPhone:          2,
		FieldOffice:         2,
		FieldWebsite:        3,
		FieldProfileURL:     3,
		FieldPhotoURL:       3,
		FieldCategory:       3,
	},
	SourceWebsite: {
		FieldWebsite:    2,
		FieldLabWebsite: 3,
		FieldCVURL:      3,
	},
}

// Priority returns the trust priority of a source for a scalar field.
// Zero means the source does not populate the field.
func Priority(tag SourceTag, field string) int {
	return sourcePriorities[tag][field]
}

// CanPopulate reports whether a source is declared to populate a field.
func CanPopulate(tag SourceTag, field string) bool {
	return Priority(tag, field) > 0
}

func normKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
