package roster

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vandy-research/roster-cli/internal/fetcher"
	"github.com/vandy-research/roster-cli/internal/model"
	"github.com/vandy-research/roster-cli/internal/normalize"
)

// FISOptions configures the FIS spreadsheet ingest.
type FISOptions struct {
	SheetName string
	SkipRows  int
}

// fisColumns maps the header names seen in FIS exports to canonical fields.
// Matching is case-insensitive on the trimmed header.
var fisColumns = map[string]string{
	"name":            model.FieldName,
	"faculty name":    model.FieldName,
	"full name":       model.FieldName,
	"title":           model.FieldTitle,
	"rank":            model.FieldTitle,
	"department":      model.FieldDepartmentCode,
	"dept":            model.FieldDepartmentCode,
	"department code": model.FieldDepartmentCode,
	"email":           model.FieldEmail,
	"email address":   model.FieldEmail,
	"category":        model.FieldCategory,
	"faculty type":    model.FieldCategory,
	"tenure status":   model.FieldCategory,
}

// LoadFIS reads the FIS workbook (or CSV export) that bootstraps the roster
// and returns raw records ready for the bootstrap pass. The location may be a
// local path, an https URL, or the registrar's ftp drop.
func LoadFIS(ctx context.Context, location string, opts FISOptions) ([]normalize.Raw, error) {
	path, cleanup, err := fetcher.Fetch(ctx, location, nil, nil)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var header []string
	var rows [][]string

	if strings.HasSuffix(strings.ToLower(path), ".csv") {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "roster: open fis csv %s", path)
		}
		defer f.Close()
		header, rows, err = fetcher.ReadCSV(f, fetcher.CSVOptions{TrimSpace: true})
		if err != nil {
			return nil, err
		}
	} else {
		header, rows, err = fetcher.ReadXLSX(path, fetcher.XLSXOptions{
			SheetName: opts.SheetName,
			SkipRows:  opts.SkipRows,
		})
		if err != nil {
			return nil, err
		}
	}

	cols := mapColumns(header)
	if _, ok := cols[model.FieldName]; !ok {
		return nil, eris.Errorf("roster: fis input %s has no recognizable name column", location)
	}

	raws := make([]normalize.Raw, 0, len(rows))
	for _, row := range rows {
		fields := make(map[string]any, len(cols))
		for field, idx := range cols {
			if idx < len(row) && row[idx] != "" {
				fields[field] = row[idx]
			}
		}
		if len(fields) == 0 {
			continue
		}
		raws = append(raws, normalize.Raw{Source: model.SourceFIS, Fields: fields})
	}

	zap.L().Info("fis roster loaded",
		zap.String("location", location),
		zap.Int("rows", len(raws)),
	)
	return raws, nil
}

// mapColumns resolves header names to canonical field keys. The first header
// matching a field wins.
func mapColumns(header []string) map[string]int {
	cols := make(map[string]int)
	for idx, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		field, ok := fisColumns[key]
		if !ok {
			continue
		}
		if _, taken := cols[field]; !taken {
			cols[field] = idx
		}
	}
	return cols
}
