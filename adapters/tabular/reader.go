// Package tabular reads delimited-text uploads into domain tables.
// The first column of every file is treated as the row-identifier key.
package tabular

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"rnadash/domain/expr"
	"rnadash/internal/errors"
)

// DelimiterFor maps a declared file extension to its cell delimiter.
// Recognized: csv (comma), tsv and txt (tab). Anything else fails with
// UnsupportedFormat before any file I/O happens.
func DelimiterFor(ext string) (rune, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "csv":
		return ',', nil
	case "tsv", "txt":
		return '\t', nil
	default:
		return 0, errors.UnsupportedFormat(ext)
	}
}

// Reader parses one delimited-text file. It holds no file handle between
// calls; each Read opens, parses and closes the file.
type Reader struct {
	path  string
	ext   string
	comma rune
}

// NewReader creates a reader for the file at path with the declared
// extension. The extension is declared separately because uploads land in
// scratch storage under generated names.
func NewReader(path, ext string) (*Reader, error) {
	comma, err := DelimiterFor(ext)
	if err != nil {
		return nil, err
	}
	return &Reader{path: path, ext: ext, comma: comma}, nil
}

// readRows loads the whole file as raw string cells.
func (r *Reader) readRows() ([][]string, error) {
	start := time.Now()

	file, err := os.Open(r.path)
	if err != nil {
		return nil, errors.IOError(r.path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = r.comma
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.IOError(r.path, err)
	}
	log.Printf("[TabularReader] %s file read in %.2fms (%d rows)",
		strings.ToUpper(r.ext), float64(time.Since(start).Nanoseconds())/1e6, len(rows))

	if len(rows) < 2 {
		return nil, errors.IOError(r.path, fmt.Errorf("file must have a header row and at least one data row"))
	}
	return rows, nil
}

// ReadCounts parses the file as a gene-count matrix: first column gene
// identifiers, remaining columns sample identifiers with non-negative
// integer counts. Columns holding unparseable cells are marked on the
// matrix rather than rejected here; validation fails them after stripping
// stray annotation columns.
func (r *Reader) ReadCounts() (*expr.CountsMatrix, error) {
	rows, err := r.readRows()
	if err != nil {
		return nil, err
	}

	header := rows[0]
	if len(header) < 2 {
		return nil, errors.InvalidInput("counts file needs a gene column and at least one sample column")
	}

	samples := make([]expr.SampleID, len(header)-1)
	for j, cell := range header[1:] {
		samples[j] = expr.SampleID(strings.TrimSpace(cell))
	}

	genes := make([]expr.GeneID, 0, len(rows)-1)
	counts := make([][]int64, 0, len(rows)-1)
	nonNumeric := make(map[expr.SampleID]string)
	for i, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, errors.InvalidInput(fmt.Sprintf("row %d has %d cells, expected %d", i+2, len(row), len(header)))
		}
		genes = append(genes, expr.GeneID(strings.TrimSpace(row[0])))

		values := make([]int64, len(row)-1)
		for j, cell := range row[1:] {
			v, err := parseCount(cell)
			if err != nil {
				if _, seen := nonNumeric[samples[j]]; !seen {
					nonNumeric[samples[j]] = fmt.Sprintf(
						"non-numeric count %q at row %d", strings.TrimSpace(cell), i+2)
				}
				continue
			}
			values[j] = v
		}
		counts = append(counts, values)
	}

	matrix, err := expr.NewCountsMatrix(genes, samples, counts)
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, err)
	}
	for id, detail := range nonNumeric {
		matrix.MarkNonNumeric(id, detail)
	}

	log.Printf("[TabularReader] counts matrix parsed (%d genes, %d samples)",
		matrix.NumGenes(), matrix.NumSamples())
	return matrix, nil
}

// ReadSamples parses the file as a sample sheet: first column sample
// identifiers, remaining columns categorical metadata.
func (r *Reader) ReadSamples() (*expr.SampleSheet, error) {
	rows, err := r.readRows()
	if err != nil {
		return nil, err
	}

	header := rows[0]
	if len(header) < 2 {
		return nil, errors.InvalidInput("metadata file needs a sample column and at least one metadata column")
	}

	columns := make([]string, len(header)-1)
	for j, cell := range header[1:] {
		columns[j] = strings.TrimSpace(cell)
	}

	records := make([]expr.SampleRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, errors.InvalidInput(fmt.Sprintf("row %d has %d cells, expected %d", i+2, len(row), len(header)))
		}
		fields := make(map[string]string, len(columns))
		for j, cell := range row[1:] {
			fields[columns[j]] = strings.TrimSpace(cell)
		}
		records = append(records, expr.SampleRecord{
			ID:     expr.SampleID(strings.TrimSpace(row[0])),
			Fields: fields,
		})
	}

	sheet, err := expr.NewSampleSheet(columns, records)
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, err)
	}

	log.Printf("[TabularReader] sample sheet parsed (%d samples, %d columns)",
		sheet.NumSamples(), len(sheet.Columns))
	return sheet, nil
}

// parseCount accepts plain integers and integral floats ("12", "12.0").
// Exporters that round-trip counts through spreadsheets emit the latter.
func parseCount(cell string) (int64, error) {
	s := strings.TrimSpace(cell)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer count: %q", s)
	}
	return int64(f), nil
}
