package pass

import (
	"context"

	"github.com/vandy-research/roster-cli/internal/dept"
)

// Extractor is the external browser-automation collaborator. Implementations
// are expected to be slow, rate-limited, and unreliable; the controller
// isolates every per-record attempt so one failure never aborts a batch.
type Extractor interface {
	// ExtractListing pulls all faculty entries from a department's listing
	// page. Each entry is an already-extracted field dictionary.
	ExtractListing(ctx context.Context, d dept.Department) ([]map[string]any, error)

	// ExtractWebsite pulls research information from one faculty member's
	// personal or lab website.
	ExtractWebsite(ctx context.Context, url, facultyName string) (map[string]any, error)
}
