// Package identity derives and confirms stable faculty identifiers. The
// identifier is the join key across the FIS roster, department listings, and
// personal-website extractions.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultFuzzyThreshold is the Jaro-Winkler first-name similarity above which
// two same-last-name, same-department records are treated as a probable match.
const DefaultFuzzyThreshold = 0.85

// Match is the outcome of resolving a candidate record against known
// identities. Probable matches are auto-accepted; Note carries the
// lower-confidence annotation recorded on the target record.
type Match struct {
	ID       string
	Probable bool
	Note     string
}

// honorifics stripped during name normalization.
var honorifics = map[string]bool{
	"dr":        true,
	"dr.":       true,
	"prof":      true,
	"prof.":     true,
	"professor": true,
	"mr":        true,
	"mr.":       true,
	"ms":        true,
	"ms.":       true,
	"mrs":       true,
	"mrs.":      true,
}

// suffixes dropped from the end of a name.
var suffixes = map[string]bool{
	"jr":   true,
	"jr.":  true,
	"sr":   true,
	"sr.":  true,
	"ii":   true,
	"iii":  true,
	"iv":   true,
	"phd":  true,
	"ph.d": true,
	"md":   true,
	"m.d":  true,
}

var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName lower-cases, folds diacritics, strips honorifics and
// suffixes, collapses whitespace, and drops middle initials, keeping first
// and last name tokens.
func NormalizeName(name string) string {
	folded, _, err := transform.String(foldDiacritics, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)
	folded = strings.ReplaceAll(folded, ",", " ")

	var tokens []string
	for _, tok := range strings.Fields(folded) {
		if honorifics[tok] || suffixes[strings.TrimSuffix(tok, ",")] {
			continue
		}
		tokens = append(tokens, tok)
	}
	if len(tokens) > 2 {
		// Keep first and last, dropping middle names and initials.
		tokens = []string{tokens[0], tokens[len(tokens)-1]}
	}
	return strings.Join(tokens, " ")
}

// splitName returns the first and last token of a normalized name. A
// single-token name is treated as last-name-only.
func splitName(normalized string) (first, last string) {
	parts := strings.Fields(normalized)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return "", parts[0]
	default:
		return parts[0], parts[len(parts)-1]
	}
}

// NewID generates the stable synthetic identifier for a name + department
// pair: "faculty_" plus the first 12 hex chars of a sha256 digest over the
// normalized name and department code. Generated once at first sighting,
// immutable thereafter.
func NewID(name, departmentCode string) string {
	key := NormalizeName(name) + "|" + strings.ToLower(strings.TrimSpace(departmentCode))
	sum := sha256.Sum256([]byte(key))
	return "faculty_" + hex.EncodeToString(sum[:])[:12]
}

// nameKey is the exact-match join key: last name + first initial + department.
func nameKey(normalized, departmentCode string) string {
	first, last := splitName(normalized)
	initial := ""
	if first != "" {
		initial = first[:1]
	}
	return last + "|" + initial + "|" + strings.ToLower(strings.TrimSpace(departmentCode))
}

// NormalizeEmail lower-cases and strips all whitespace from an address.
func NormalizeEmail(email string) string {
	email = strings.ToLower(email)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, email)
}

type entry struct {
	id    string
	first string
	last  string
}

// Resolver indexes known identities and resolves candidates against them.
// It is not safe for concurrent use; the pipeline is a single-threaded batch.
type Resolver struct {
	byEmail   map[string]string
	byNameKey map[string]string
	byDept    map[string][]entry
	threshold float64
}

// NewResolver builds a resolver over the given fuzzy threshold. Use Index to
// register existing records.
func NewResolver(threshold float64) *Resolver {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultFuzzyThreshold
	}
	return &Resolver{
		byEmail:   make(map[string]string),
		byNameKey: make(map[string]string),
		byDept:    make(map[string][]entry),
		threshold: threshold,
	}
}

// Index registers an identity so later candidates can resolve to it. Called
// for every record in the accumulated dataset and for every newly created
// record during a pass.
func (r *Resolver) Index(id, name, departmentCode, email string) {
	if email != "" {
		if e := NormalizeEmail(email); e != "" {
			// First registration wins; an id never moves between emails.
			if _, ok := r.byEmail[e]; !ok {
				r.byEmail[e] = id
			}
		}
	}

	normalized := NormalizeName(name)
	dept := strings.ToLower(strings.TrimSpace(departmentCode))
	key := nameKey(normalized, dept)
	if _, ok := r.byNameKey[key]; !ok {
		r.byNameKey[key] = id
	}

	first, last := splitName(normalized)
	r.byDept[dept] = append(r.byDept[dept], entry{id: id, first: first, last: last})
}

// Resolve matches a candidate by email first, then by last name + first
// initial + department, then by fuzzy first-name similarity within the same
// department and last name. Returns false when no identity matches; the
// caller then creates a new one. This is a routine outcome, not an error.
func (r *Resolver) Resolve(name, departmentCode, email string) (Match, bool) {
	if email != "" {
		if id, ok := r.byEmail[NormalizeEmail(email)]; ok {
			return Match{ID: id}, true
		}
	}

	normalized := NormalizeName(name)
	if normalized == "" {
		return Match{}, false
	}
	dept := strings.ToLower(strings.TrimSpace(departmentCode))

	if id, ok := r.byNameKey[nameKey(normalized, dept)]; ok {
		return Match{ID: id}, true
	}

	first, last := splitName(normalized)
	if first == "" {
		return Match{}, false
	}
	for _, e := range r.byDept[dept] {
		if e.last != last || e.first == "" {
			continue
		}
		sim := matchr.JaroWinkler(first, e.first, false)
		if sim >= r.threshold {
			note := fmt.Sprintf("probable match: first name %q ~ %q (similarity %.2f)", first, e.first, sim)
			return Match{ID: e.id, Probable: true, Note: note}, true
		}
	}

	return Match{}, false
}
