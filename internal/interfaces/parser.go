package interfaces

import (
	"context"

	"github.com/ternarybob/nutriparse/internal/models"
)

// ProgressSink accepts (stage, percent) notifications from the pipeline.
// Implementations coalesce writes; the pipeline may call this freely.
type ProgressSink func(stage string, percent int)

// PDFPageContent is the extracted text of one page
type PDFPageContent struct {
	PageNumber int
	Text       string
}

// PDFExtractor obtains the text layer of a PDF document
type PDFExtractor interface {
	PageCount(ctx context.Context, data []byte) (int, error)
	ExtractPages(ctx context.Context, data []byte) ([]PDFPageContent, error)
}

// OCREngine recognizes text on rasterized pages. External engines plug in
// behind this contract; the default engine reports itself disabled.
type OCREngine interface {
	Enabled() bool
	Recognize(ctx context.Context, data []byte, pageNum int, languages []string) (text string, confidence float64, err error)
}

// Pipeline runs the staged parsing flow for one job's document bytes.
// Cancellation is observed at stage boundaries via ctx.
type Pipeline interface {
	Run(ctx context.Context, job *models.Job, data []byte, sink ProgressSink) (*models.Result, error)
}
