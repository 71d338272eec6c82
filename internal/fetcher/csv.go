package fetcher

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures CSV parsing.
type CSVOptions struct {
	Delimiter rune // default ','
	TrimSpace bool
}

// ReadCSV reads a CSV export, returning the header row and data rows. Rows
// with a field count different from the header are tolerated; the registrar's
// exports are not always rectangular.
func ReadCSV(r io.Reader, opts CSVOptions) (header []string, rows [][]string, err error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return header, rows, nil
		}
		if err != nil {
			return nil, nil, eris.Wrap(err, "csv: read row")
		}

		if opts.TrimSpace {
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}
		}

		if first {
			first = false
			header = record
			continue
		}
		rows = append(rows, record)
	}
}
