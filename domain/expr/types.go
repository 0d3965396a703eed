package expr

import (
	"fmt"
)

// GeneID is the unique key for a row of the counts matrix, typically a
// stable gene accession string.
type GeneID string

func (g GeneID) String() string { return string(g) }

// SampleID is the unique key for a column of the counts matrix and for a
// row of the sample sheet.
type SampleID string

func (s SampleID) String() string { return string(s) }

// ConditionColumn is the metadata column used as the experimental design
// factor for group comparison.
const ConditionColumn = "condition"

// CountsMatrix holds raw read counts, genes as rows and samples as columns.
// Row and column identifiers are unique; counts are non-negative integers.
type CountsMatrix struct {
	Genes   []GeneID
	Samples []SampleID
	// Counts is row-major: Counts[i][j] is the count for Genes[i] in Samples[j].
	Counts [][]int64

	geneIndex   map[GeneID]int
	sampleIndex map[SampleID]int
	nonNumeric  map[SampleID]string
}

// NewCountsMatrix builds a counts matrix and enforces its invariants:
// unique gene IDs, unique sample IDs, rectangular shape, non-negative counts.
func NewCountsMatrix(genes []GeneID, samples []SampleID, counts [][]int64) (*CountsMatrix, error) {
	if len(genes) != len(counts) {
		return nil, fmt.Errorf("counts matrix has %d rows but %d gene identifiers", len(counts), len(genes))
	}

	geneIndex := make(map[GeneID]int, len(genes))
	for i, g := range genes {
		if g == "" {
			return nil, fmt.Errorf("empty gene identifier at row %d", i+1)
		}
		if _, dup := geneIndex[g]; dup {
			return nil, fmt.Errorf("duplicate gene identifier %q", g)
		}
		geneIndex[g] = i
	}

	sampleIndex := make(map[SampleID]int, len(samples))
	for j, s := range samples {
		if s == "" {
			return nil, fmt.Errorf("empty sample identifier at column %d", j+1)
		}
		if _, dup := sampleIndex[s]; dup {
			return nil, fmt.Errorf("duplicate sample identifier %q", s)
		}
		sampleIndex[s] = j
	}

	for i, row := range counts {
		if len(row) != len(samples) {
			return nil, fmt.Errorf("row %q has %d values, expected %d", genes[i], len(row), len(samples))
		}
		for j, v := range row {
			if v < 0 {
				return nil, fmt.Errorf("negative count %d for gene %q sample %q", v, genes[i], samples[j])
			}
		}
	}

	return &CountsMatrix{
		Genes:       genes,
		Samples:     samples,
		Counts:      counts,
		geneIndex:   geneIndex,
		sampleIndex: sampleIndex,
	}, nil
}

// NumGenes returns the number of rows.
func (m *CountsMatrix) NumGenes() int { return len(m.Genes) }

// NumSamples returns the number of columns.
func (m *CountsMatrix) NumSamples() int { return len(m.Samples) }

// HasSample reports whether the given sample identifier is a column.
func (m *CountsMatrix) HasSample(id SampleID) bool {
	_, ok := m.sampleIndex[id]
	return ok
}

// SampleColumn returns the column index for a sample identifier.
func (m *CountsMatrix) SampleColumn(id SampleID) (int, bool) {
	j, ok := m.sampleIndex[id]
	return j, ok
}

// DropSample removes a column from the matrix. Used by validation to strip
// stray non-sample columns; removing an unknown sample is a no-op.
func (m *CountsMatrix) DropSample(id SampleID) {
	j, ok := m.sampleIndex[id]
	if !ok {
		return
	}

	m.Samples = append(m.Samples[:j], m.Samples[j+1:]...)
	for i, row := range m.Counts {
		m.Counts[i] = append(row[:j], row[j+1:]...)
	}
	delete(m.nonNumeric, id)

	m.sampleIndex = make(map[SampleID]int, len(m.Samples))
	for idx, s := range m.Samples {
		m.sampleIndex[s] = idx
	}
}

// MarkNonNumeric records that a column held a cell that could not be parsed
// as a count. Readers mark instead of failing so that stray annotation
// columns can still be stripped during validation; columns that survive the
// strip fail there. Marking an unknown column is a no-op.
func (m *CountsMatrix) MarkNonNumeric(id SampleID, detail string) {
	if _, ok := m.sampleIndex[id]; !ok {
		return
	}
	if m.nonNumeric == nil {
		m.nonNumeric = make(map[SampleID]string, 1)
	}
	if _, seen := m.nonNumeric[id]; !seen {
		m.nonNumeric[id] = detail
	}
}

// FirstNonNumeric returns the lowest-indexed column still marked as holding
// unparseable cells, with the recorded detail of the first offender.
func (m *CountsMatrix) FirstNonNumeric() (SampleID, string, bool) {
	best := -1
	var id SampleID
	for s := range m.nonNumeric {
		if j, ok := m.sampleIndex[s]; ok && (best == -1 || j < best) {
			best, id = j, s
		}
	}
	if best == -1 {
		return "", "", false
	}
	return id, m.nonNumeric[id], true
}

// SampleRecord is one row of the sample sheet.
type SampleRecord struct {
	ID     SampleID
	Fields map[string]string
}

// Condition returns the value of the design factor column.
func (r SampleRecord) Condition() string {
	return r.Fields[ConditionColumn]
}

// SampleSheet holds per-sample metadata keyed by sample identifier.
// Row order is preserved from the uploaded file.
type SampleSheet struct {
	Columns []string
	Records []SampleRecord

	index map[SampleID]int
}

// NewSampleSheet builds a sample sheet and enforces unique sample identifiers.
func NewSampleSheet(columns []string, records []SampleRecord) (*SampleSheet, error) {
	index := make(map[SampleID]int, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			return nil, fmt.Errorf("empty sample identifier at row %d", i+1)
		}
		if _, dup := index[rec.ID]; dup {
			return nil, fmt.Errorf("duplicate sample identifier %q", rec.ID)
		}
		index[rec.ID] = i
	}
	return &SampleSheet{Columns: columns, Records: records, index: index}, nil
}

// NumSamples returns the number of metadata rows.
func (s *SampleSheet) NumSamples() int { return len(s.Records) }

// HasColumn reports whether the sheet carries the named metadata column.
func (s *SampleSheet) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Record returns the metadata row for a sample identifier.
func (s *SampleSheet) Record(id SampleID) (SampleRecord, bool) {
	i, ok := s.index[id]
	if !ok {
		return SampleRecord{}, false
	}
	return s.Records[i], true
}

// ConditionOf returns the design factor value for a sample identifier.
func (s *SampleSheet) ConditionOf(id SampleID) (string, bool) {
	rec, ok := s.Record(id)
	if !ok {
		return "", false
	}
	return rec.Condition(), true
}

// Conditions returns the distinct design factor levels in first-seen order.
func (s *SampleSheet) Conditions() []string {
	seen := make(map[string]bool, 4)
	var levels []string
	for _, rec := range s.Records {
		cond := rec.Condition()
		if cond == "" || seen[cond] {
			continue
		}
		seen[cond] = true
		levels = append(levels, cond)
	}
	return levels
}

// ConditionCounts returns how many samples carry each design factor level.
func (s *SampleSheet) ConditionCounts() map[string]int {
	counts := make(map[string]int, 4)
	for _, rec := range s.Records {
		if cond := rec.Condition(); cond != "" {
			counts[cond]++
		}
	}
	return counts
}
