package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// row is one CSV record indexed by header name, tolerant of the header
// naming varying across source files (Korean or English column names).
type row struct {
	cols map[string]string
}

// first returns the first non-empty, non-"nan" value among the candidate
// column names, mirroring the source pipeline's lenient column lookup.
func (r row) first(keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(r.cols[k])
		if v != "" && !strings.EqualFold(v, "nan") {
			return v
		}
	}
	return ""
}

func (r row) all() map[string]string { return r.cols }

func readCSV(path string) ([]row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("ingest: read header of %s: %w", path, err)
	}

	var rows []row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ingest: read row of %s: %w", path, err)
		}
		cols := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(record) {
				cols[h] = record[i]
			}
		}
		rows = append(rows, row{cols: cols})
	}
	return rows, nil
}
