package model

import "time"

// Metadata is the envelope written at the top of every stage snapshot.
type Metadata struct {
	CreatedDate  time.Time `json:"created_date"`
	Stage        Stage     `json:"stage"`
	DataSources  []string  `json:"data_sources"`
	TotalFaculty int       `json:"total_faculty"`
}

// UnmatchedRecord retains a scraped record that could not be resolved to any
// identity. These are kept for manual review, never discarded.
type UnmatchedRecord struct {
	Source    SourceTag      `json:"source"`
	OriginURL string         `json:"origin_url,omitempty"`
	Reason    string         `json:"reason"`
	Fields    map[string]any `json:"fields"`
}

// ExtractionFailure records one failed extraction attempt by the external
// collaborator. The record keeps all prior-stage data.
type ExtractionFailure struct {
	RecordID  string    `json:"record_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Source    SourceTag `json:"source"`
	URL       string    `json:"url,omitempty"`
	Reason    string    `json:"reason"`
	FailedAt  time.Time `json:"failed_at"`
}

// Dataset is one stage snapshot of the accumulated roster.
type Dataset struct {
	Metadata  Metadata            `json:"metadata"`
	Faculty   []*FacultyRecord    `json:"faculty"`
	Unmatched []UnmatchedRecord   `json:"unmatched,omitempty"`
	Failures  []ExtractionFailure `json:"failures,omitempty"`
}

// ByID returns the record with the given identity, or nil.
func (d *Dataset) ByID(id string) *FacultyRecord {
	for _, f := range d.Faculty {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// SourceSeen reports whether a source has contributed to any record.
func (d *Dataset) SourceSeen(tag SourceTag) bool {
	for _, s := range d.Metadata.DataSources {
		if s == string(tag) {
			return true
		}
	}
	return false
}

// Touch refreshes the metadata envelope after a pass: counts, stage, and the
// contributing-source list (append-only, first-seen order).
func (d *Dataset) Touch(stage Stage, tag SourceTag) {
	d.Metadata.CreatedDate = time.Now().UTC()
	d.Metadata.TotalFaculty = len(d.Faculty)
	if stage.Ord() > d.Metadata.Stage.Ord() {
		d.Metadata.Stage = stage
	}
	if !d.SourceSeen(tag) {
		d.Metadata.DataSources = append(d.Metadata.DataSources, string(tag))
	}
}
