package expr

import (
	"fmt"
	"sort"
)

// strayGeneNameColumn is a non-sample column some upstream counts exports
// carry next to the gene identifier. It is stripped during validation rather
// than rejected; see Validate.
const strayGeneNameColumn = SampleID("Gene Name")

// Validate gates progression from upload to analysis.
//
// The rule: every sample-sheet identifier must appear as a counts column
// (metadata keys are a subset of counts columns). Violation fails with a
// SampleMismatchError listing exactly the offending identifiers, sorted.
//
// On success the counts matrix is normalized in place by dropping a column
// literally named "Gene Name" if present. Upstream exports sometimes emit a
// human-readable gene-name column alongside the accession key; it is not a
// sample and would corrupt the model design. Columns the reader marked as
// non-numeric are judged only after that strip, so a text-valued annotation
// column passes while a corrupt sample column still fails.
func Validate(counts *CountsMatrix, samples *SampleSheet) error {
	if counts == nil || counts.NumGenes() == 0 {
		return ErrEmptyCounts
	}
	if samples == nil || samples.NumSamples() == 0 {
		return ErrEmptySamples
	}
	if !samples.HasColumn(ConditionColumn) {
		return ErrConditionMissing
	}

	var missing []SampleID
	for _, rec := range samples.Records {
		if !counts.HasSample(rec.ID) {
			missing = append(missing, rec.ID)
		}
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
		return &SampleMismatchError{Missing: missing}
	}

	counts.DropSample(strayGeneNameColumn)

	if id, detail, ok := counts.FirstNonNumeric(); ok {
		return fmt.Errorf("sample column %q: %s", id, detail)
	}
	return nil
}
