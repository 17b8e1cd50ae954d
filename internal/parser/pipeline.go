package parser

import (
	"context"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/interfaces"
	"github.com/ternarybob/nutriparse/internal/models"
)

// Pipeline stage labels, reported through the progress sink
const (
	StageBasicInfo    = "extract_basic_info"
	StageDetectType   = "detect_type"
	StageExtractText  = "extract_text"
	StageOCRFallback  = "ocr_fallback"
	StageStructured   = "extract_structured"
	StageQualityScore = "quality_score"
	StageCommit       = "commit"
)

// Pages averaging fewer extracted characters than this trigger OCR
const minCharsPerPage = 40

// StagedPipeline runs the ordered parsing stages. Cancellation is observed
// at every stage boundary; mid-stage work runs to completion.
type StagedPipeline struct {
	extractor  interfaces.PDFExtractor
	ocr        interfaces.OCREngine
	registry   *Registry
	ocrEnabled bool
	languages  []string
	logger     arbor.ILogger
}

var _ interfaces.Pipeline = (*StagedPipeline)(nil)

// NewPipeline wires the staged pipeline
func NewPipeline(extractor interfaces.PDFExtractor, ocr interfaces.OCREngine, registry *Registry, ocrEnabled bool, languages []string, logger arbor.ILogger) *StagedPipeline {
	return &StagedPipeline{
		extractor:  extractor,
		ocr:        ocr,
		registry:   registry,
		ocrEnabled: ocrEnabled,
		languages:  languages,
		logger:     logger,
	}
}

// Run executes the stages for one job. Errors come back as *models.JobError
// with the failing stage recorded; context errors pass through untouched so
// the worker can tell cancellation from parse failure.
func (p *StagedPipeline) Run(ctx context.Context, job *models.Job, data []byte, sink interfaces.ProgressSink) (*models.Result, error) {
	// Stage 1: structural metadata
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sink(StageBasicInfo, 5)
	pageCount, err := p.extractor.PageCount(ctx, data)
	if err != nil {
		return nil, models.AsJobError(err).WithStage(StageBasicInfo)
	}

	// Stage 3 runs before stage 2 needs its output when parsing_type is
	// auto, so text extraction happens first and detection reads from it.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sink(StageExtractText, 15)
	pages, err := p.extractor.ExtractPages(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, models.AsJobError(err).WithStage(StageExtractText)
	}
	rawText := joinPages(pages)
	sink(StageExtractText, 40)

	// Stage 4: OCR fallback on sparse text layers
	ocrUsed := false
	ocrConfidence := 1.0
	if p.needsOCR(rawText, pageCount) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sink(StageOCRFallback, 40)
		ocrText, confidence, ocrErr := p.runOCR(ctx, data, pageCount)
		if ocrErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// A usable text layer demotes OCR failure to a warning
			if strings.TrimSpace(rawText) == "" {
				return nil, models.AsJobError(ocrErr).WithStage(StageOCRFallback)
			}
			p.logger.Warn().Err(ocrErr).Str("job_id", job.ID).Msg("OCR failed, keeping direct text layer")
		} else {
			rawText = ocrText
			ocrConfidence = confidence
			ocrUsed = true
		}
	}

	if strings.TrimSpace(rawText) == "" {
		return nil, models.NewJobError(models.ErrKindUnparseable, "document has no extractable text").WithStage(StageExtractText)
	}

	// Stage 2: type detection (deferred until text exists)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resultType := resultTypeFor(job.ParsingType)
	if job.ParsingType == models.ParsingTypeAuto {
		sink(StageDetectType, 45)
		resultType = DetectType(rawText)
		p.logger.Debug().
			Str("job_id", job.ID).
			Str("detected_type", string(resultType)).
			Msg("Document type detected")
	}

	// Stage 5: structured extraction
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sink(StageStructured, 50)
	extractor, ok := p.registry.For(resultType)
	if !ok {
		return nil, models.NewJobError(models.ErrKindUnparseable, "no extractor for document type %s", resultType).WithStage(StageStructured)
	}
	result, stats, err := extractor.Extract(rawText)
	if err != nil {
		return nil, models.AsJobError(err).WithStage(StageStructured)
	}
	sink(StageStructured, 80)

	// Stage 6: quality score
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sink(StageQualityScore, 90)
	result.RawText = rawText
	result.PageCount = pageCount
	result.OCRUsed = ocrUsed
	result.QualityScore = QualityScore(stats, ocrConfidence)
	// Recognized text is never trusted to full confidence
	if ocrUsed && result.QualityScore > 0.7 {
		result.QualityScore = 0.7
	}

	// Stage 7: the caller commits; 100 lands with the terminal transition
	sink(StageCommit, 99)
	return result, nil
}

// needsOCR reports whether the text layer is too sparse to trust
func (p *StagedPipeline) needsOCR(text string, pageCount int) bool {
	if pageCount <= 0 {
		pageCount = 1
	}
	return len(strings.TrimSpace(text))/pageCount < minCharsPerPage
}

// runOCR recognizes every page and concatenates the text, averaging the
// per-page confidence. With no engine configured this surfaces a transient
// OCR error the caller demotes or retries.
func (p *StagedPipeline) runOCR(ctx context.Context, data []byte, pageCount int) (string, float64, error) {
	if !p.ocrEnabled || !p.ocr.Enabled() {
		return "", 0, models.NewJobError(models.ErrKindOCRTransient, "OCR requested but no engine is available")
	}

	var sb strings.Builder
	total := 0.0
	for page := 1; page <= pageCount; page++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		text, confidence, err := p.ocr.Recognize(ctx, data, page, p.languages)
		if err != nil {
			return "", 0, models.NewJobError(models.ErrKindOCRTransient, "OCR failed on page %d: %s", page, err)
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(text)
		total += confidence
	}

	avg := 0.0
	if pageCount > 0 {
		avg = total / float64(pageCount)
	}
	return sb.String(), avg, nil
}

// joinPages concatenates page texts in order
func joinPages(pages []interfaces.PDFPageContent) string {
	var sb strings.Builder
	for _, page := range pages {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(page.Text)
	}
	return sb.String()
}
