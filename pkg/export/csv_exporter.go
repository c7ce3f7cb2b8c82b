package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		record := make([]string, len(data.Headers))
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderSections flattens several titled datasets, each keyed by its first
// header column, into one "section,key,value" CSV, so a single export can
// carry every report breakdown the way RenderSections does for PDFExporter.
// Datasets with more than two columns are flattened column-by-column, one
// row per (section, original row, column).
func (e *CSVExporter) RenderSections(sections []Section) ([]byte, error) {
	rows := make([]map[string]string, 0)
	for _, section := range sections {
		if len(section.Data.Headers) == 0 {
			continue
		}
		keyHeader := section.Data.Headers[0]
		for _, row := range section.Data.Rows {
			key := row[keyHeader]
			for _, header := range section.Data.Headers[1:] {
				rows = append(rows, map[string]string{
					"section": section.Title,
					"key":     key,
					"value":   row[header],
				})
			}
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("csv requires at least one row across sections")
	}
	return e.Render(Dataset{Headers: []string{"section", "key", "value"}, Rows: rows})
}
