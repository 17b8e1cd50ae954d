package pdf

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/interfaces"
)

// NoopOCREngine is the default OCR backend. It reports itself disabled so
// the pipeline records ocr_used=false and keeps whatever text layer exists;
// real engines (tesseract, cloud OCR) plug in behind the same interface.
type NoopOCREngine struct {
	logger arbor.ILogger
}

var _ interfaces.OCREngine = (*NoopOCREngine)(nil)

// NewNoopOCREngine creates the disabled OCR engine
func NewNoopOCREngine(logger arbor.ILogger) *NoopOCREngine {
	return &NoopOCREngine{logger: logger}
}

// Enabled always reports false
func (e *NoopOCREngine) Enabled() bool {
	return false
}

// Recognize rejects calls; callers must check Enabled first
func (e *NoopOCREngine) Recognize(ctx context.Context, data []byte, pageNum int, languages []string) (string, float64, error) {
	return "", 0, fmt.Errorf("no OCR engine configured")
}
