// Package normalize maps raw per-source records, as delivered by the external
// extraction collaborator, into the canonical field set with provenance tags.
// Each source type declares which canonical fields it can populate; values the
// source is not trusted for are ignored here, before the merge engine sees
// them.
package normalize

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/vandy-research/roster-cli/internal/model"
)

// ValidationError reports one malformed field value. The field is dropped and
// the rest of the record continues; a record is never rejected wholesale for
// a bad field.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: field %s value %q: %s", e.Field, e.Value, e.Reason)
}

// Raw is one record as received from the external collaborator: an untyped
// field dictionary tagged with its source and the page it came from. The
// origin URL is used to resolve relative links.
type Raw struct {
	Source    model.SourceTag `json:"source"`
	OriginURL string          `json:"origin_url,omitempty"`
	Fields    map[string]any  `json:"fields"`
}

// Record is a partial canonical field set produced from one Raw record. Only
// fields the source type can populate are present.
type Record struct {
	Source            model.SourceTag
	Fields            map[string]string
	ResearchInterests []string
	WebsiteData       *model.WebsiteData

	// MatchNote is set by the pass controller when a probable identity match
	// was auto-accepted for this record.
	MatchNote string
}

// Name and DepartmentCode are the identity-resolution inputs.
func (r Record) Name() string           { return r.Fields[model.FieldName] }
func (r Record) DepartmentCode() string { return r.Fields[model.FieldDepartmentCode] }
func (r Record) Email() string          { return r.Fields[model.FieldEmail] }

var emailRe = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

// aliases maps the field names the collaborator has been observed to emit to
// canonical keys.
var aliases = map[string]string{
	"department":    model.FieldDepartmentCode,
	"dept":          model.FieldDepartmentCode,
	"dept_code":     model.FieldDepartmentCode,
	"url":           model.FieldWebsite,
	"personal_site": model.FieldWebsite,
	"photo":         model.FieldPhotoURL,
	"image_url":     model.FieldPhotoURL,
	"profile":       model.FieldProfileURL,
	"rank":          model.FieldTitle,
}

func canonicalKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if alias, ok := aliases[key]; ok {
		return alias
	}
	return key
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}

func asStrings(v any) []string {
	switch t := v.(type) {
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s := asString(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	}
	return nil
}

// resolveURL validates that a URL is absolute, resolving relative links
// against the origin. Returns "" with an error when neither is possible.
func resolveURL(raw, origin string) (string, *ValidationError) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", &ValidationError{Field: "url", Value: raw, Reason: "unparseable"}
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if origin == "" {
		return "", &ValidationError{Field: "url", Value: raw, Reason: "relative with no known origin"}
	}
	base, err := url.Parse(origin)
	if err != nil || !base.IsAbs() {
		return "", &ValidationError{Field: "url", Value: raw, Reason: "relative with invalid origin"}
	}
	return base.ResolveReference(u).String(), nil
}

// Normalize converts one Raw record into a canonical partial record. Malformed
// individual values are dropped and reported; the record itself always
// survives. Fields the source is not declared to populate are discarded.
func Normalize(raw Raw) (Record, []*ValidationError) {
	rec := Record{
		Source: raw.Source,
		Fields: make(map[string]string),
	}
	var dropped []*ValidationError

	for key, val := range raw.Fields {
		field := canonicalKey(key)

		switch field {
		case "research_interests", "interests":
			rec.ResearchInterests = append(rec.ResearchInterests, asStrings(val)...)
			continue
		case "website_data":
			continue // handled by WebsiteRaw below
		}

		// Identity fields ride along on every source so the resolver can use
		// them; the merge engine still refuses to write fields the source has
		// no declared trust for.
		if !model.CanPopulate(raw.Source, field) && !identityField(field) {
			continue
		}

		value := asString(val)
		if value == "" {
			continue
		}

		switch {
		case field == model.FieldEmail:
			email := identityEmail(value)
			if !emailRe.MatchString(email) {
				dropped = append(dropped, &ValidationError{Field: field, Value: value, Reason: "malformed email"})
				continue
			}
			rec.Fields[field] = email
		case model.URLFields[field]:
			abs, verr := resolveURL(value, raw.OriginURL)
			if verr != nil {
				verr.Field = field
				dropped = append(dropped, verr)
				continue
			}
			rec.Fields[field] = abs
		case field == model.FieldDepartmentCode:
			rec.Fields[field] = strings.ToLower(value)
		default:
			// Phone numbers and other scalars pass through unformatted.
			rec.Fields[field] = value
		}
	}

	return rec, dropped
}

// identityField reports whether a field is needed for identity resolution.
func identityField(field string) bool {
	return field == model.FieldName || field == model.FieldDepartmentCode || field == model.FieldEmail
}

// identityEmail lower-cases and strips whitespace before validation.
func identityEmail(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// WebsiteRaw builds the nested website_data block from a website-extraction
// result. The block is replaced wholesale on merge; callers should only pass
// results whose extraction actually succeeded, failed attempts are recorded
// as ExtractionFailures instead.
func WebsiteRaw(raw Raw, extractedAt time.Time) (Record, []*ValidationError) {
	rec, dropped := Normalize(raw)

	wd := &model.WebsiteData{
		WebsiteURL:          raw.OriginURL,
		ResearchDescription: asString(raw.Fields["research_description"]),
		ResearchKeywords:    asStrings(raw.Fields["research_keywords"]),
		ResearchAreas:       asStrings(raw.Fields["research_areas"]),
		LabName:             asString(raw.Fields["lab_name"]),
		Publications:        asStrings(raw.Fields["publications_listed"]),
		CoursesTaught:       asStrings(raw.Fields["courses_taught"]),
		FundingSources:      asStrings(raw.Fields["funding_sources"]),
		ExtractionSuccess:   true,
		ExtractionMethod:    asString(raw.Fields["extraction_method"]),
		ExtractionDate:      extractedAt.UTC(),
	}
	rec.WebsiteData = wd

	// Keywords from the website count toward the unioned interest set.
	rec.ResearchInterests = append(rec.ResearchInterests, wd.ResearchKeywords...)

	return rec, dropped
}
