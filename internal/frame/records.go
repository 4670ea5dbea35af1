package frame

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// FromRecords builds a frame from a header and string rows. A column is
// numeric when every non-missing value parses as a float; empty strings,
// "NA" and "NaN" are missing.
func FromRecords(header []string, records [][]string) (*Frame, error) {
	f := New(len(records))
	seen := make(map[string]struct{}, len(header))
	for j, raw := range header {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, fmt.Errorf("column %d has an empty name", j)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = struct{}{}

		text := make([]string, len(records))
		for i, rec := range records {
			if len(rec) != len(header) {
				return nil, fmt.Errorf("row %d has %d fields, header has %d", i, len(rec), len(header))
			}
			text[i] = strings.TrimSpace(rec[j])
		}

		if num, ok := parseNumeric(text); ok {
			f.set(&column{name: name, kind: Numeric, num: num})
		} else {
			f.set(&column{name: name, kind: Text, text: text})
		}
	}
	return f, nil
}

func parseNumeric(values []string) ([]float64, bool) {
	out := make([]float64, len(values))
	for i, v := range values {
		if isMissing(v) {
			out[i] = math.NaN()
			continue
		}
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, false
		}
		out[i] = x
	}
	return out, true
}

func isMissing(v string) bool {
	switch v {
	case "", "NA", "NaN", "nan", "NULL":
		return true
	}
	return false
}

// ReadCSV reads a frame from CSV with a header row
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	all, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("read csv: missing header")
	}
	return FromRecords(all[0], all[1:])
}

// Row returns the values of row i in column order. Missing numbers are nil.
func (f *Frame) Row(i int) []any {
	out := make([]any, len(f.cols))
	for j, c := range f.cols {
		if c.kind == Text {
			out[j] = c.text[i]
			continue
		}
		if math.IsNaN(c.num[i]) {
			out[j] = nil
		} else {
			out[j] = c.num[i]
		}
	}
	return out
}
