package model

import "time"

// MergeAction describes how a field-level conflict was resolved.
type MergeAction string

const (
	MergeActionSet       MergeAction = "set"       // field was empty, incoming taken
	MergeActionOverwrite MergeAction = "overwrite" // incoming outranked existing provenance
	MergeActionKeep      MergeAction = "keep"      // existing kept, contribution acknowledged
)

// MergeEvent is one field-level merge decision, kept for audit. Conflicts are
// resolved deterministically and never surface as errors.
type MergeEvent struct {
	ID        int64       `json:"id,omitempty"`
	RunID     string      `json:"run_id,omitempty"`
	RecordID  string      `json:"record_id"`
	Field     string      `json:"field"`
	Source    SourceTag   `json:"source"`
	Action    MergeAction `json:"action"`
	Previous  string      `json:"previous,omitempty"`
	Value     string      `json:"value,omitempty"`
	CreatedAt time.Time   `json:"created_at,omitempty"`
}

// PassStatus is the lifecycle state of a recorded pass run.
type PassStatus string

const (
	PassStatusRunning  PassStatus = "running"
	PassStatusComplete PassStatus = "complete"
	PassStatusFailed   PassStatus = "failed"
)

// PassSummary is the user-visible outcome of one pass: counts of matched,
// newly created, probable-match, orphaned, and failed-to-extract records.
type PassSummary struct {
	Source          SourceTag `json:"source"`
	RecordsIn       int       `json:"records_in"`
	Matched         int       `json:"matched"`
	Created         int       `json:"created"`
	ProbableMatches int       `json:"probable_matches"`
	Orphans         int       `json:"orphans"`
	Failed          int       `json:"failed"`
	Skipped         int       `json:"skipped"`
	FieldsDropped   int       `json:"fields_dropped"`
	MergeEvents     int       `json:"merge_events"`
}

// PassRun is one recorded application of a source pass against the dataset.
type PassRun struct {
	ID        string       `json:"id"`
	Stage     Stage        `json:"stage"`
	Status    PassStatus   `json:"status"`
	Summary   *PassSummary `json:"summary,omitempty"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
