package parser

// ExtractionStats feeds the quality score: how many expected fields were
// found, and how unit normalization fared for nutrition documents.
type ExtractionStats struct {
	ExpectedFields  int
	PresentFields   int
	AttemptedUnits  int
	NormalizedUnits int
}

// Quality score weights. Field coverage dominates; unit normalization and
// OCR confidence refine it.
const (
	weightFields = 0.5
	weightUnits  = 0.3
	weightOCR    = 0.2
)

// QualityScore computes the deterministic 0..1 score from extraction stats
// and OCR confidence. ocrConfidence is 1 when no OCR ran; documents that
// never attempted unit normalization score that component by field coverage
// instead, so non-nutrition types are not penalized.
func QualityScore(stats *ExtractionStats, ocrConfidence float64) float64 {
	fieldFrac := 0.0
	if stats.ExpectedFields > 0 {
		fieldFrac = float64(stats.PresentFields) / float64(stats.ExpectedFields)
	}

	unitFrac := fieldFrac
	if stats.AttemptedUnits > 0 {
		unitFrac = float64(stats.NormalizedUnits) / float64(stats.AttemptedUnits)
	}

	if ocrConfidence < 0 {
		ocrConfidence = 0
	}
	if ocrConfidence > 1 {
		ocrConfidence = 1
	}

	score := weightFields*fieldFrac + weightUnits*unitFrac + weightOCR*ocrConfidence
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
