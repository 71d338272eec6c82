package pass

import (
	"context"

	"github.com/vandy-research/roster-cli/internal/dept"
	"github.com/vandy-research/roster-cli/pkg/agent"
)

// AgentExtractor adapts the browser-automation agent client to the Extractor
// interface the pass controller drives.
type AgentExtractor struct {
	client agent.Client
}

// NewAgentExtractor wraps an agent client.
func NewAgentExtractor(client agent.Client) *AgentExtractor {
	return &AgentExtractor{client: client}
}

func (a *AgentExtractor) ExtractListing(ctx context.Context, d dept.Department) ([]map[string]any, error) {
	resp, err := a.client.ExtractListing(ctx, d.FacultyListURL)
	if err != nil {
		return nil, err
	}
	return resp.Records, nil
}

func (a *AgentExtractor) ExtractWebsite(ctx context.Context, url, facultyName string) (map[string]any, error) {
	resp, err := a.client.ExtractWebsite(ctx, url, facultyName)
	if err != nil {
		return nil, err
	}
	fields := resp.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	if resp.Method != "" {
		if _, ok := fields["extraction_method"]; !ok {
			fields["extraction_method"] = resp.Method
		}
	}
	return fields, nil
}
