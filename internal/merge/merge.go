// Package merge combines normalized records sharing an identity into one
// faculty entity. Conflicts are resolved per field by declared source trust
// and recorded as audit events, never raised as errors. The engine is
// idempotent: applying the same record twice leaves the result unchanged.
package merge

import (
	"go.uber.org/zap"

	"github.com/vandy-research/roster-cli/internal/model"
	"github.com/vandy-research/roster-cli/internal/normalize"
)

// New creates a FacultyRecord for a freshly resolved identity and applies the
// incoming record to it. The id is assigned once here and never changes.
func New(id string, in normalize.Record) (*model.FacultyRecord, []model.MergeEvent) {
	rec := &model.FacultyRecord{
		ID:         id,
		Provenance: make(map[string]string),
		Stage:      in.Source.Stage(),
	}
	// Identity fields seed the record regardless of source trust; without
	// them there would have been no identity to create.
	rec.Name = in.Name()
	rec.DepartmentCode = in.DepartmentCode()
	if rec.Name != "" {
		rec.Provenance[model.FieldName] = string(in.Source)
	}
	if rec.DepartmentCode != "" {
		rec.Provenance[model.FieldDepartmentCode] = string(in.Source)
	}
	events := Apply(rec, in)
	return rec, events
}

// Apply merges one incoming normalized record into an existing faculty
// record, mutating it in place. Returns the field-level audit trail.
//
// Per-field rules:
//   - empty field: take the incoming value
//   - incoming source strictly outranks the field's recorded provenance:
//     overwrite and update provenance
//   - tie or lower rank: keep the existing value but still acknowledge the
//     contribution in data_sources
//
// Set-typed fields are always unioned. The website_data block is replaced
// wholesale, and only by a successful website extraction.
func Apply(rec *model.FacultyRecord, in normalize.Record) []model.MergeEvent {
	if rec.Provenance == nil {
		rec.Provenance = make(map[string]string)
	}

	var events []model.MergeEvent

	for _, field := range model.ScalarFields {
		incoming, ok := in.Fields[field]
		if !ok || incoming == "" {
			continue
		}
		prio := model.Priority(in.Source, field)
		if prio == 0 {
			// Identity fields carried for resolution only; this source holds
			// no trust for them.
			continue
		}

		current := rec.Get(field)
		if current == "" {
			rec.Set(field, incoming)
			rec.Provenance[field] = string(in.Source)
			events = append(events, model.MergeEvent{
				RecordID: rec.ID, Field: field, Source: in.Source,
				Action: model.MergeActionSet, Value: incoming,
			})
			continue
		}

		currentPrio := model.Priority(model.SourceTag(rec.Provenance[field]), field)
		switch {
		case prio > currentPrio:
			if current == incoming {
				// Same value from a higher-trust source: upgrade provenance
				// without an overwrite event, so re-merges stay quiet.
				rec.Provenance[field] = string(in.Source)
				continue
			}
			rec.Set(field, incoming)
			rec.Provenance[field] = string(in.Source)
			events = append(events, model.MergeEvent{
				RecordID: rec.ID, Field: field, Source: in.Source,
				Action: model.MergeActionOverwrite, Previous: current, Value: incoming,
			})
		case current != incoming:
			// Lost the conflict; log for audit but keep the verified value.
			events = append(events, model.MergeEvent{
				RecordID: rec.ID, Field: field, Source: in.Source,
				Action: model.MergeActionKeep, Previous: current, Value: incoming,
			})
		}
	}

	rec.AddInterests(in.ResearchInterests)

	if in.Source == model.SourceWebsite && in.WebsiteData != nil && in.WebsiteData.ExtractionSuccess {
		rec.WebsiteData = in.WebsiteData
	}

	if in.MatchNote != "" {
		rec.AddMatchNote(in.MatchNote)
	}

	// The contribution is acknowledged even when every field lost.
	rec.AddSource(in.Source)
	rec.AdvanceStage(in.Source.Stage())

	for _, ev := range events {
		if ev.Action == model.MergeActionKeep || ev.Action == model.MergeActionOverwrite {
			zap.L().Debug("merge: conflict resolved",
				zap.String("record_id", ev.RecordID),
				zap.String("field", ev.Field),
				zap.String("source", string(ev.Source)),
				zap.String("action", string(ev.Action)),
			)
		}
	}

	return events
}
