package parser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/interfaces"
	"github.com/ternarybob/nutriparse/internal/models"
)

type fakeExtractor struct {
	pageCount int
	pages     []interfaces.PDFPageContent
	err       error
}

func (f *fakeExtractor) PageCount(ctx context.Context, data []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.pageCount > 0 {
		return f.pageCount, nil
	}
	return len(f.pages), nil
}

func (f *fakeExtractor) ExtractPages(ctx context.Context, data []byte) ([]interfaces.PDFPageContent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

type fakeOCR struct {
	enabled    bool
	text       string
	confidence float64
	err        error
	calls      int
}

func (f *fakeOCR) Enabled() bool { return f.enabled }

func (f *fakeOCR) Recognize(ctx context.Context, data []byte, pageNum int, languages []string) (string, float64, error) {
	f.calls++
	if f.err != nil {
		return "", 0, f.err
	}
	return f.text, f.confidence, nil
}

type sinkRecorder struct {
	stages   []string
	percents []int
}

func (s *sinkRecorder) record(stage string, percent int) {
	s.stages = append(s.stages, stage)
	s.percents = append(s.percents, percent)
}

func (s *sinkRecorder) saw(stage string) bool {
	for _, seen := range s.stages {
		if seen == stage {
			return true
		}
	}
	return false
}

func newTestPipeline(extractor interfaces.PDFExtractor, ocr interfaces.OCREngine, ocrEnabled bool) *StagedPipeline {
	return NewPipeline(extractor, ocr, NewRegistry(), ocrEnabled, []string{"eng", "chi_sim"}, arbor.NewLogger())
}

func autoJob() *models.Job {
	return models.NewJob("job_pipeline_test", "label.pdf", 1024, "hash", "blob", models.ParsingTypeAuto, models.PriorityNormal)
}

func TestPipelineHappyPath(t *testing.T) {
	extractor := &fakeExtractor{pages: []interfaces.PDFPageContent{{PageNumber: 1, Text: englishLabel}}}
	ocr := &fakeOCR{}
	p := newTestPipeline(extractor, ocr, false)

	sink := &sinkRecorder{}
	result, err := p.Run(context.Background(), autoJob(), []byte("%PDF-"), sink.record)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Type != models.ResultTypeNutritionLabel {
		t.Errorf("type = %v", result.Type)
	}
	if result.OCRUsed {
		t.Error("OCR should not have run")
	}
	if result.PageCount != 1 {
		t.Errorf("page count = %d", result.PageCount)
	}
	if result.QualityScore <= 0 || result.QualityScore > 1 {
		t.Errorf("quality score = %v", result.QualityScore)
	}
	if ocr.calls != 0 {
		t.Errorf("ocr calls = %d", ocr.calls)
	}

	for _, stage := range []string{StageBasicInfo, StageExtractText, StageDetectType, StageStructured, StageQualityScore, StageCommit} {
		if !sink.saw(stage) {
			t.Errorf("stage %s never reported", stage)
		}
	}
	if sink.saw(StageOCRFallback) {
		t.Error("ocr_fallback reported without sparse text")
	}
	if last := sink.percents[len(sink.percents)-1]; last != 99 {
		t.Errorf("final percent = %d, want 99", last)
	}
	for i := 1; i < len(sink.percents); i++ {
		if sink.percents[i] < sink.percents[i-1] {
			t.Errorf("percent regressed: %v", sink.percents)
		}
	}
}

func TestPipelineOCRFallback(t *testing.T) {
	// Near-empty text layer on a scanned label forces recognition
	extractor := &fakeExtractor{pages: []interfaces.PDFPageContent{{PageNumber: 1, Text: "  "}}}
	ocr := &fakeOCR{enabled: true, text: englishLabel, confidence: 0.55}
	p := newTestPipeline(extractor, ocr, true)

	sink := &sinkRecorder{}
	result, err := p.Run(context.Background(), autoJob(), []byte("%PDF-"), sink.record)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !result.OCRUsed {
		t.Error("OCRUsed = false, want true")
	}
	if result.QualityScore > 0.7 {
		t.Errorf("quality score = %v, want <= 0.7 for recognized text", result.QualityScore)
	}
	if !sink.saw(StageOCRFallback) {
		t.Error("ocr_fallback stage never reported")
	}
	if ocr.calls != 1 {
		t.Errorf("ocr calls = %d, want 1", ocr.calls)
	}
}

func TestPipelineOCRUnavailableEmptyText(t *testing.T) {
	extractor := &fakeExtractor{pages: []interfaces.PDFPageContent{{PageNumber: 1, Text: ""}}}
	p := newTestPipeline(extractor, &fakeOCR{}, false)

	_, err := p.Run(context.Background(), autoJob(), []byte("%PDF-"), func(string, int) {})
	jobErr := models.AsJobError(err)
	if jobErr == nil || jobErr.Kind != models.ErrKindOCRTransient {
		t.Fatalf("expected ocr_transient, got %v", err)
	}
	if jobErr.Stage != StageOCRFallback {
		t.Errorf("stage = %q", jobErr.Stage)
	}
}

func TestPipelineOCRFailureDemotedToWarning(t *testing.T) {
	// A readable text layer spread over many pages trips the sparse-text
	// heuristic, but the recognition failure must not fail the job.
	extractor := &fakeExtractor{
		pageCount: 20,
		pages:     []interfaces.PDFPageContent{{PageNumber: 1, Text: englishLabel}},
	}
	ocr := &fakeOCR{enabled: true, err: errors.New("engine crashed")}
	p := newTestPipeline(extractor, ocr, true)

	result, err := p.Run(context.Background(), autoJob(), []byte("%PDF-"), func(string, int) {})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.OCRUsed {
		t.Error("OCRUsed = true after failed recognition")
	}
	if !strings.Contains(result.RawText, "Crunchy Oat Bar") {
		t.Error("direct text layer was discarded")
	}
}

func TestPipelineCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	extractor := &fakeExtractor{pages: []interfaces.PDFPageContent{{PageNumber: 1, Text: englishLabel}}}
	p := newTestPipeline(extractor, &fakeOCR{}, false)

	_, err := p.Run(ctx, autoJob(), []byte("%PDF-"), func(string, int) {})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestPipelineExplicitType(t *testing.T) {
	extractor := &fakeExtractor{pages: []interfaces.PDFPageContent{{PageNumber: 1, Text: englishRecipe}}}
	p := newTestPipeline(extractor, &fakeOCR{}, false)

	job := autoJob()
	job.ParsingType = models.ParsingTypeRecipe

	sink := &sinkRecorder{}
	result, err := p.Run(context.Background(), job, []byte("%PDF-"), sink.record)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Type != models.ResultTypeRecipe {
		t.Errorf("type = %v", result.Type)
	}
	if sink.saw(StageDetectType) {
		t.Error("detection ran despite explicit parsing type")
	}
}
