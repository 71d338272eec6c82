// Package pass orchestrates the successive enrichment passes over the
// accumulated roster: FIS bootstrap, department listings, faculty websites.
// Each pass consumes the prior stage's dataset plus new raw records and
// produces a strictly more complete dataset; re-running a pass against the
// same inputs is a no-op.
package pass

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vandy-research/roster-cli/internal/dept"
	"github.com/vandy-research/roster-cli/internal/identity"
	"github.com/vandy-research/roster-cli/internal/merge"
	"github.com/vandy-research/roster-cli/internal/model"
	"github.com/vandy-research/roster-cli/internal/normalize"
)

// Controller applies source passes against one in-memory dataset. The merge
// loop is deliberately single-threaded: record counts are small and merge
// ordering matters more than throughput.
type Controller struct {
	ds     *model.Dataset
	res    *identity.Resolver
	events []model.MergeEvent
	log    *zap.Logger
}

// NewController indexes the dataset's existing identities and returns a
// controller ready to apply passes.
func NewController(ds *model.Dataset, fuzzyThreshold float64) *Controller {
	res := identity.NewResolver(fuzzyThreshold)
	for _, f := range ds.Faculty {
		res.Index(f.ID, f.Name, f.DepartmentCode, f.Email)
	}
	return &Controller{
		ds:  ds,
		res: res,
		log: zap.L().Named("pass"),
	}
}

// Dataset returns the dataset being built.
func (c *Controller) Dataset() *model.Dataset { return c.ds }

// Events returns the accumulated merge-audit trail for this controller.
func (c *Controller) Events() []model.MergeEvent { return c.events }

// Apply merges a batch of raw records from one source into the dataset.
// Records that cannot be resolved to an existing identity get a new one;
// records with no derivable identity (missing name or department) are
// retained as unmatched entries for manual review.
func (c *Controller) Apply(tag model.SourceTag, raws []normalize.Raw) (*model.PassSummary, error) {
	if !tag.Valid() {
		return nil, eris.Errorf("pass: unknown source tag %q", tag)
	}

	summary := &model.PassSummary{Source: tag, RecordsIn: len(raws)}

	for _, raw := range raws {
		raw.Source = tag
		if tag == model.SourceWebsite {
			c.applyWebsiteRaw(raw, summary)
			continue
		}
		rec, dropped := normalize.Normalize(raw)
		c.noteDropped(summary, dropped)
		c.mergeOne(rec, raw, summary)
	}

	c.ds.Touch(tag.Stage(), tag)
	summary.MergeEvents = len(c.events)

	c.log.Info("pass applied",
		zap.String("source", string(tag)),
		zap.Int("records_in", summary.RecordsIn),
		zap.Int("matched", summary.Matched),
		zap.Int("created", summary.Created),
		zap.Int("probable_matches", summary.ProbableMatches),
		zap.Int("orphans", summary.Orphans),
	)
	return summary, nil
}

// applyWebsiteRaw merges one website-extraction result from a pre-extracted
// export, building the same nested website_data block the live pass produces.
// Exports shaped like an enriched snapshot carry the block nested; those
// fields are lifted to the top level first. A record flagged
// extraction_success=false is recorded as a failure instead of merged, so the
// next live run retries it.
func (c *Controller) applyWebsiteRaw(raw normalize.Raw, summary *model.PassSummary) {
	if nested, ok := raw.Fields["website_data"].(map[string]any); ok {
		merged := make(map[string]any, len(raw.Fields)+len(nested))
		for k, v := range raw.Fields {
			if k != "website_data" {
				merged[k] = v
			}
		}
		for k, v := range nested {
			if _, exists := merged[k]; !exists {
				merged[k] = v
			}
		}
		raw.Fields = merged
	}

	if reason, failed := exportFailure(raw.Fields); failed {
		summary.Failed++
		name, _ := raw.Fields["name"].(string)
		c.recordFailure(model.ExtractionFailure{
			Name:     name,
			Source:   model.SourceWebsite,
			URL:      raw.OriginURL,
			Reason:   reason,
			FailedAt: time.Now().UTC(),
		})
		return
	}

	rec, dropped := normalize.WebsiteRaw(raw, time.Now())
	c.noteDropped(summary, dropped)
	c.mergeOne(rec, raw, summary)
}

// exportFailure reads the extraction_success flag a pre-extracted export may
// carry. An absent flag means success.
func exportFailure(fields map[string]any) (string, bool) {
	v, ok := fields["extraction_success"]
	if !ok {
		return "", false
	}
	success := true
	switch t := v.(type) {
	case bool:
		success = t
	case string:
		success = !strings.EqualFold(strings.TrimSpace(t), "false")
	}
	if success {
		return "", false
	}
	if msg, _ := fields["error"].(string); msg != "" {
		return msg, true
	}
	return "export flagged extraction as unsuccessful", true
}

// mergeOne resolves one normalized record and merges it. Shared by the batch
// and website passes.
func (c *Controller) mergeOne(rec normalize.Record, raw normalize.Raw, summary *model.PassSummary) *model.FacultyRecord {
	name, deptCode := rec.Name(), rec.DepartmentCode()
	if name == "" || deptCode == "" {
		summary.Orphans++
		c.addUnmatched(model.UnmatchedRecord{
			Source:    rec.Source,
			OriginURL: raw.OriginURL,
			Reason:    "missing name or department, no derivable identity",
			Fields:    raw.Fields,
		})
		return nil
	}

	m, ok := c.res.Resolve(name, deptCode, rec.Email())
	if !ok {
		// Routine outcome: first sighting of this identity.
		id := identity.NewID(name, deptCode)
		created, events := merge.New(id, rec)
		c.events = append(c.events, events...)
		c.ds.Faculty = append(c.ds.Faculty, created)
		c.res.Index(id, created.Name, created.DepartmentCode, created.Email)
		summary.Created++
		return created
	}

	existing := c.ds.ByID(m.ID)
	if existing == nil {
		// Resolver and dataset disagree; treat as unmatched rather than
		// fabricating a record.
		summary.Orphans++
		c.addUnmatched(model.UnmatchedRecord{
			Source:    rec.Source,
			OriginURL: raw.OriginURL,
			Reason:    "resolved id " + m.ID + " not present in dataset",
			Fields:    raw.Fields,
		})
		return nil
	}

	if m.Probable {
		rec.MatchNote = m.Note
		summary.ProbableMatches++
	}
	events := merge.Apply(existing, rec)
	c.events = append(c.events, events...)
	// Email may have arrived with this merge; keep the resolver index fresh.
	c.res.Index(existing.ID, existing.Name, existing.DepartmentCode, existing.Email)
	summary.Matched++
	return existing
}

// addUnmatched retains an orphan once. Re-running a pass against the same
// inputs must not grow the unmatched list, which persists in the snapshot.
func (c *Controller) addUnmatched(u model.UnmatchedRecord) {
	for _, prev := range c.ds.Unmatched {
		if prev.Source == u.Source && prev.OriginURL == u.OriginURL &&
			prev.Reason == u.Reason && reflect.DeepEqual(prev.Fields, u.Fields) {
			return
		}
	}
	c.ds.Unmatched = append(c.ds.Unmatched, u)
}

// recordFailure keeps one failure entry per record and URL, refreshing the
// reason and timestamp on re-runs instead of appending duplicates.
func (c *Controller) recordFailure(f model.ExtractionFailure) {
	for i, prev := range c.ds.Failures {
		if prev.Source == f.Source && prev.URL == f.URL && prev.RecordID == f.RecordID {
			c.ds.Failures[i] = f
			return
		}
	}
	c.ds.Failures = append(c.ds.Failures, f)
}

// clearFailure drops a stale failure entry once the same extraction succeeds.
func (c *Controller) clearFailure(recordID, url string, tag model.SourceTag) {
	for i, prev := range c.ds.Failures {
		if prev.Source == tag && prev.URL == url && prev.RecordID == recordID {
			c.ds.Failures = append(c.ds.Failures[:i], c.ds.Failures[i+1:]...)
			return
		}
	}
}

func (c *Controller) noteDropped(summary *model.PassSummary, dropped []*normalize.ValidationError) {
	summary.FieldsDropped += len(dropped)
	for _, verr := range dropped {
		c.log.Warn("field dropped", zap.String("field", verr.Field), zap.String("reason", verr.Reason))
	}
}

// WebsitePassOptions tunes the website enrichment pass.
type WebsitePassOptions struct {
	// Refresh reprocesses every record with a website, replacing prior
	// website_data blocks. The default resumes: only records still missing a
	// successful extraction are attempted.
	Refresh bool

	// RatePerSec throttles extraction attempts against the external
	// collaborator. Zero means 1 request every 3 seconds, matching the
	// crawl-politeness delay the collaborator expects.
	RatePerSec float64
}

// RunWebsitePass walks every record that has a website URL and asks the
// external extractor for its research content, merging each success into the
// dataset. Each attempt is isolated: a failure is recorded and the loop
// proceeds. Failed records stay eligible for the next full re-run.
func (c *Controller) RunWebsitePass(ctx context.Context, ex Extractor, opts WebsitePassOptions) (*model.PassSummary, error) {
	rps := opts.RatePerSec
	if rps <= 0 {
		rps = 1.0 / 3.0
	}
	limiter := rate.NewLimiter(rate.Limit(rps), 1)

	summary := &model.PassSummary{Source: model.SourceWebsite}

	for _, rec := range c.ds.Faculty {
		if rec.Website == "" {
			summary.Skipped++
			continue
		}
		if !opts.Refresh && rec.WebsiteData != nil && rec.WebsiteData.ExtractionSuccess {
			summary.Skipped++
			continue
		}
		summary.RecordsIn++

		if err := limiter.Wait(ctx); err != nil {
			return summary, eris.Wrap(err, "pass: rate limiter wait")
		}

		fields, err := ex.ExtractWebsite(ctx, rec.Website, rec.Name)
		if err != nil {
			// Prior-stage data stays intact; failure recorded, loop continues.
			summary.Failed++
			c.recordFailure(model.ExtractionFailure{
				RecordID: rec.ID,
				Name:     rec.Name,
				Source:   model.SourceWebsite,
				URL:      rec.Website,
				Reason:   err.Error(),
				FailedAt: time.Now().UTC(),
			})
			c.log.Warn("website extraction failed",
				zap.String("record_id", rec.ID),
				zap.String("url", rec.Website),
				zap.Error(err),
			)
			continue
		}

		raw := normalize.Raw{Source: model.SourceWebsite, OriginURL: rec.Website, Fields: fields}
		in, dropped := normalize.WebsiteRaw(raw, time.Now())
		c.noteDropped(summary, dropped)

		events := merge.Apply(rec, in)
		c.events = append(c.events, events...)
		c.clearFailure(rec.ID, rec.Website, model.SourceWebsite)
		summary.Matched++
	}

	c.ds.Touch(model.StageEnriched, model.SourceWebsite)
	summary.MergeEvents = len(c.events)

	c.log.Info("website pass complete",
		zap.Int("attempted", summary.RecordsIn),
		zap.Int("succeeded", summary.Matched),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

// CollectListings drives the external extractor over every department with a
// listing URL and returns the raw records, tagged with their page origin for
// relative-link resolution. Extraction fans out across departments with
// bounded concurrency; per-department failures are recorded and the rest
// continue. The merge itself happens afterwards, sequentially, via Apply.
func (c *Controller) CollectListings(ctx context.Context, ex Extractor, departments []dept.Department, maxConcurrent int) []normalize.Raw {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}

	var mu sync.Mutex
	var raws []normalize.Raw

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for _, d := range departments {
		if d.FacultyListURL == "" {
			c.log.Info("skipping department with no listing url", zap.String("department", d.Code))
			continue
		}
		g.Go(func() error {
			entries, err := ex.ExtractListing(gctx, d)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.recordFailure(model.ExtractionFailure{
					Source:   model.SourceListing,
					URL:      d.FacultyListURL,
					Reason:   err.Error(),
					FailedAt: time.Now().UTC(),
				})
				c.log.Warn("listing extraction failed",
					zap.String("department", d.Code),
					zap.Error(err),
				)
				return nil
			}
			for _, fields := range entries {
				if _, ok := fields["department_code"]; !ok {
					fields["department_code"] = d.Code
				}
				raws = append(raws, normalize.Raw{
					Source:    model.SourceListing,
					OriginURL: d.FacultyListURL,
					Fields:    fields,
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	return raws
}
