package expr

import (
	"errors"
	"strings"
	"testing"
)

func sheet(t *testing.T, conds map[SampleID]string, order []SampleID) *SampleSheet {
	t.Helper()
	records := make([]SampleRecord, 0, len(order))
	for _, id := range order {
		records = append(records, SampleRecord{
			ID:     id,
			Fields: map[string]string{ConditionColumn: conds[id]},
		})
	}
	s, err := NewSampleSheet([]string{ConditionColumn}, records)
	if err != nil {
		t.Fatalf("building sheet: %v", err)
	}
	return s
}

func matrix(t *testing.T, genes []GeneID, samples []SampleID, counts [][]int64) *CountsMatrix {
	t.Helper()
	m, err := NewCountsMatrix(genes, samples, counts)
	if err != nil {
		t.Fatalf("building matrix: %v", err)
	}
	return m
}

func TestValidateOK(t *testing.T) {
	m := matrix(t,
		[]GeneID{"G1", "G2"},
		[]SampleID{"S1", "S2", "S3", "S4"},
		[][]int64{{1, 2, 3, 4}, {5, 6, 7, 8}})
	s := sheet(t,
		map[SampleID]string{"S1": "a", "S2": "a", "S3": "b", "S4": "b"},
		[]SampleID{"S1", "S2", "S3", "S4"})

	if err := Validate(m, s); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateExtraCountsColumnsAllowed(t *testing.T) {
	// Counts may carry samples with no metadata row; those are excluded
	// from the design, not rejected here.
	m := matrix(t,
		[]GeneID{"G1"},
		[]SampleID{"S1", "S2", "S3"},
		[][]int64{{1, 2, 3}})
	s := sheet(t,
		map[SampleID]string{"S1": "a", "S2": "b"},
		[]SampleID{"S1", "S2"})

	if err := Validate(m, s); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateSampleMismatch(t *testing.T) {
	m := matrix(t,
		[]GeneID{"G1"},
		[]SampleID{"S1", "S2"},
		[][]int64{{1, 2}})
	s := sheet(t,
		map[SampleID]string{"S1": "a", "S9": "b", "S5": "b"},
		[]SampleID{"S9", "S1", "S5"})

	err := Validate(m, s)
	if err == nil {
		t.Fatal("expected mismatch error")
	}
	if !IsSampleMismatch(err) {
		t.Fatalf("expected sample mismatch, got %v", err)
	}

	var mismatch *SampleMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("error %v does not carry identifiers", err)
	}
	// Offenders come back sorted regardless of sheet order.
	got := mismatch.MissingStrings()
	want := []string{"S5", "S9"}
	if len(got) != len(want) {
		t.Fatalf("missing = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("missing[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestValidateConditionColumnRequired(t *testing.T) {
	m := matrix(t, []GeneID{"G1"}, []SampleID{"S1"}, [][]int64{{1}})
	records := []SampleRecord{{ID: "S1", Fields: map[string]string{"batch": "b1"}}}
	s, err := NewSampleSheet([]string{"batch"}, records)
	if err != nil {
		t.Fatalf("building sheet: %v", err)
	}

	if err := Validate(m, s); !errors.Is(err, ErrConditionMissing) {
		t.Fatalf("err = %v, want condition-missing", err)
	}
}

func TestValidateEmptyInputs(t *testing.T) {
	m := matrix(t, []GeneID{"G1"}, []SampleID{"S1"}, [][]int64{{1}})
	s := sheet(t, map[SampleID]string{"S1": "a"}, []SampleID{"S1"})

	if err := Validate(nil, s); !errors.Is(err, ErrEmptyCounts) {
		t.Errorf("nil counts: err = %v", err)
	}
	if err := Validate(m, nil); !errors.Is(err, ErrEmptySamples) {
		t.Errorf("nil sheet: err = %v", err)
	}
}

func TestValidateDropsGeneNameColumn(t *testing.T) {
	m := matrix(t,
		[]GeneID{"G1"},
		[]SampleID{"Gene Name", "S1", "S2"},
		[][]int64{{0, 1, 2}})
	s := sheet(t,
		map[SampleID]string{"S1": "a", "S2": "b"},
		[]SampleID{"S1", "S2"})

	if err := Validate(m, s); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if m.NumSamples() != 2 {
		t.Fatalf("NumSamples = %d after validation, want 2", m.NumSamples())
	}
	if m.HasSample("Gene Name") {
		t.Error("annotation column survived validation")
	}
	if m.Counts[0][0] != 1 {
		t.Errorf("counts not shifted after column drop: %v", m.Counts[0])
	}
}

func TestValidateDropsTextGeneNameColumn(t *testing.T) {
	// Text-valued annotation columns arrive marked by the reader; the mark
	// must die with the drop.
	m := matrix(t,
		[]GeneID{"G1"},
		[]SampleID{"Gene Name", "S1", "S2"},
		[][]int64{{0, 1, 2}})
	m.MarkNonNumeric("Gene Name", `non-numeric count "TP53" at row 2`)
	s := sheet(t,
		map[SampleID]string{"S1": "a", "S2": "b"},
		[]SampleID{"S1", "S2"})

	if err := Validate(m, s); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if m.HasSample("Gene Name") {
		t.Error("annotation column survived validation")
	}
	if _, _, marked := m.FirstNonNumeric(); marked {
		t.Error("non-numeric mark survived the column drop")
	}
}

func TestValidateRejectsNonNumericSampleColumn(t *testing.T) {
	m := matrix(t,
		[]GeneID{"G1"},
		[]SampleID{"S1", "S2"},
		[][]int64{{1, 0}})
	m.MarkNonNumeric("S2", `non-numeric count "lots" at row 2`)
	s := sheet(t,
		map[SampleID]string{"S1": "a", "S2": "b"},
		[]SampleID{"S1", "S2"})

	err := Validate(m, s)
	if err == nil {
		t.Fatal("expected error for non-numeric sample column")
	}
	if got := err.Error(); !strings.Contains(got, `"S2"`) || !strings.Contains(got, "lots") {
		t.Errorf("error %q does not name the column and cell", got)
	}
}
