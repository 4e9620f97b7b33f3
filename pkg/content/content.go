// Package content renders list results into the negotiated media type.
// JSON is the default and handled inline by the handler; formatters cover
// everything else the API document offers.
package content

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// Formatter renders projected list results into a response body
type Formatter interface {
	ContentType() string
	Format(w http.ResponseWriter, table string, results []map[string]interface{}) error
}

// CSVFormatter writes list results as a semicolon-separated download. The
// column set is the sorted union of every result's keys; nested values are
// rendered with fmt.
type CSVFormatter struct{}

// ContentType implements Formatter
func (f *CSVFormatter) ContentType() string { return "text/csv" }

// Format implements Formatter
func (f *CSVFormatter) Format(w http.ResponseWriter, table string, results []map[string]interface{}) error {
	columns := map[string]bool{}
	for _, row := range results {
		for key := range row {
			columns[key] = true
		}
	}

	header := make([]string, 0, len(columns))
	for key := range columns {
		header = append(header, key)
	}
	sort.Strings(header)

	filename := fmt.Sprintf("%s_%s.csv", table, time.Now().UTC().Format("20060102T150405Z"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	record := make([]string, len(header))
	for _, row := range results {
		for i, key := range header {
			record[i] = ""
			if value, ok := row[key]; ok && value != nil {
				record[i] = fmt.Sprintf("%v", value)
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
