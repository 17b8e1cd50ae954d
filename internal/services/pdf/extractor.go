// -----------------------------------------------------------------------
// PDF Extractor Service - Extract text content from PDF documents
// Uses pdfcpu for Go-native PDF processing
// -----------------------------------------------------------------------

package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/interfaces"
	"github.com/ternarybob/nutriparse/internal/models"
)

// Extracted content files carry the page number; the surrounding naming
// varies between pdfcpu versions.
var pageFilePattern = regexp.MustCompile(`[Pp]age_?(\d+)`)

// Extractor implements the PDFExtractor interface using pdfcpu
type Extractor struct {
	logger  arbor.ILogger
	tempDir string
}

// Compile-time interface assertion
var _ interfaces.PDFExtractor = (*Extractor)(nil)

// NewExtractor creates a new PDF extractor service
func NewExtractor(logger arbor.ILogger) *Extractor {
	tempDir := filepath.Join(os.TempDir(), "nutriparse-pdf")
	os.MkdirAll(tempDir, 0755)

	return &Extractor{
		logger:  logger,
		tempDir: tempDir,
	}
}

// PageCount returns the number of pages without extracting text
func (e *Extractor) PageCount(ctx context.Context, data []byte) (int, error) {
	tempFile, cleanup, err := e.writeTemp(data)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return 0, models.NewJobError(models.ErrKindUnsupportedPDFVariant, "failed to read PDF structure: %s", err)
	}
	if pdfCtx.Encrypt != nil {
		return 0, models.NewJobError(models.ErrKindUnsupportedPDFVariant, "encrypted PDFs are not supported")
	}
	return pdfCtx.PageCount, nil
}

// ExtractPages extracts the text layer of every page, in page order.
// Pages without a text layer come back with empty text so the caller can
// decide on OCR.
func (e *Extractor) ExtractPages(ctx context.Context, data []byte) ([]interfaces.PDFPageContent, error) {
	tempFile, cleanup, err := e.writeTemp(data)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return nil, models.NewJobError(models.ErrKindUnsupportedPDFVariant, "failed to read PDF structure: %s", err)
	}
	if pdfCtx.Encrypt != nil {
		return nil, models.NewJobError(models.ErrKindUnsupportedPDFVariant, "encrypted PDFs are not supported")
	}

	pageCount := pdfCtx.PageCount
	pages := make([]interfaces.PDFPageContent, 0, pageCount)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// pdfcpu extracts raw content streams per page; decode the text
	// operators out of them afterwards.
	outDir, err := os.MkdirTemp(e.tempDir, "pages-")
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction directory: %w", err)
	}
	defer os.RemoveAll(outDir)

	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		e.logger.Warn().Err(err).Msg("Content extraction failed, pages will have no text layer")
		for pageNum := 1; pageNum <= pageCount; pageNum++ {
			pages = append(pages, interfaces.PDFPageContent{PageNumber: pageNum})
		}
		return pages, nil
	}

	files, _ := os.ReadDir(outDir)
	pageTexts := make(map[int]string)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		m := pageFilePattern.FindStringSubmatch(file.Name())
		if m == nil {
			continue
		}
		pageNum, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		pageTexts[pageNum] = decodeTextOperators(string(content))
	}

	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		pages = append(pages, interfaces.PDFPageContent{
			PageNumber: pageNum,
			Text:       pageTexts[pageNum],
		})
	}

	e.logger.Debug().
		Int("page_count", pageCount).
		Msg("Extracted PDF pages")
	return pages, nil
}

// writeTemp stages the bytes in a uniquely named file for pdfcpu
func (e *Extractor) writeTemp(data []byte) (string, func(), error) {
	f, err := os.CreateTemp(e.tempDir, "extract-*.pdf")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp PDF file: %w", err)
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", nil, fmt.Errorf("failed to write temp PDF file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", nil, fmt.Errorf("failed to close temp PDF file: %w", err)
	}
	return name, func() { os.Remove(name) }, nil
}

// decodeTextOperators pulls the literal strings shown by Tj and TJ
// operators out of a raw content stream. Escapes for parentheses and
// backslashes are honoured; positioning numbers inside TJ arrays are
// dropped. Text-showing lines become lines of output.
func decodeTextOperators(content string) string {
	var out strings.Builder
	var current strings.Builder
	inString := false
	escaped := false

	flushLine := func() {
		if current.Len() > 0 {
			out.WriteString(strings.TrimRight(current.String(), " "))
			out.WriteByte('\n')
			current.Reset()
		}
	}

	for i := 0; i < len(content); i++ {
		c := content[i]
		if inString {
			if escaped {
				switch c {
				case 'n':
					current.WriteByte('\n')
				case 't':
					current.WriteByte('\t')
				default:
					current.WriteByte(c)
				}
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case ')':
				inString = false
				current.WriteByte(' ')
			default:
				current.WriteByte(c)
			}
			continue
		}
		switch c {
		case '(':
			inString = true
		case '\n':
			// Td/TD/T* line moves end up as newlines in the stream
			flushLine()
		}
	}
	flushLine()

	return strings.TrimSpace(out.String())
}
