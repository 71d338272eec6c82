// Package roster persists the three canonical dataset stages as JSON
// snapshots and ingests the FIS spreadsheet that bootstraps the pipeline.
package roster

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/vandy-research/roster-cli/internal/model"
)

// Snapshot file names per stage, one JSON document each.
var stageFiles = map[model.Stage]string{
	model.StageBootstrapped: "faculty_from_fis.json",
	model.StageListed:       "faculty_roster.json",
	model.StageEnriched:     "faculty_enriched.json",
}

// StagePath returns the snapshot path for a stage under the data directory.
func StagePath(dir string, stage model.Stage) string {
	name, ok := stageFiles[stage]
	if !ok {
		name = string(stage) + ".json"
	}
	return filepath.Join(dir, name)
}

// Load reads a stage snapshot. An unreadable or malformed document is fatal
// to the run; there is nothing sensible to merge into.
func Load(path string) (*model.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "roster: read snapshot %s", path)
	}

	var ds model.Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, eris.Wrapf(err, "roster: parse snapshot %s", path)
	}
	return &ds, nil
}

// LoadLatest returns the most advanced stage snapshot present in the data
// directory, trying enriched, then listed, then bootstrapped.
func LoadLatest(dir string) (*model.Dataset, model.Stage, error) {
	for _, stage := range []model.Stage{model.StageEnriched, model.StageListed, model.StageBootstrapped} {
		path := StagePath(dir, stage)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		ds, err := Load(path)
		if err != nil {
			return nil, "", err
		}
		return ds, stage, nil
	}
	return nil, "", eris.Errorf("roster: no snapshot found in %s", dir)
}

// Save writes a dataset snapshot using write-to-temp-then-replace, so an
// interrupted pass leaves the previously persisted stage untouched. An
// inability to persist is fatal and happens before any partial write is
// visible.
func Save(path string, ds *model.Dataset) error {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return eris.Wrap(err, "roster: marshal snapshot")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "roster: create data dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return eris.Wrap(err, "roster: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return eris.Wrap(err, "roster: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return eris.Wrap(err, "roster: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "roster: close temp file")
	}

	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "roster: replace snapshot %s", path)
	}
	return nil
}
