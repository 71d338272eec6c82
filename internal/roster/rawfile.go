package roster

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/vandy-research/roster-cli/internal/model"
	"github.com/vandy-research/roster-cli/internal/normalize"
)

// rawExport is the JSON document shape the browser agent writes when asked to
// export instead of streaming: an origin page plus its extracted entries.
type rawExport struct {
	OriginURL string           `json:"origin_url"`
	Records   []map[string]any `json:"records"`
}

// LoadRawRecords reads pre-extracted records from a JSON export file. Two
// shapes are accepted: a bare array of field dictionaries, or a list of
// per-page exports carrying their origin URL.
func LoadRawRecords(path string, tag model.SourceTag) ([]normalize.Raw, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "roster: read raw export %s", path)
	}

	var exports []rawExport
	if err := json.Unmarshal(data, &exports); err == nil && len(exports) > 0 && exports[0].Records != nil {
		var raws []normalize.Raw
		for _, ex := range exports {
			for _, fields := range ex.Records {
				raws = append(raws, normalize.Raw{Source: tag, OriginURL: ex.OriginURL, Fields: fields})
			}
		}
		return raws, nil
	}

	var flat []map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, eris.Wrapf(err, "roster: parse raw export %s", path)
	}

	raws := make([]normalize.Raw, 0, len(flat))
	for _, fields := range flat {
		origin, _ := fields["source_url"].(string)
		raws = append(raws, normalize.Raw{Source: tag, OriginURL: origin, Fields: fields})
	}
	return raws, nil
}
