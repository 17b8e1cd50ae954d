package pdf

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/models"
)

// fixturePDF renders one page per text block. Compression is off so the
// content streams stay inspectable.
func fixturePDF(t *testing.T, pages ...string) []byte {
	t.Helper()

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	doc.SetFont("Helvetica", "", 12)
	for _, text := range pages {
		doc.AddPage()
		doc.MultiCell(180, 8, text, "", "L", false)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("failed to render fixture PDF: %v", err)
	}
	return buf.Bytes()
}

func TestPageCount(t *testing.T) {
	e := NewExtractor(arbor.NewLogger())
	data := fixturePDF(t, "Nutrition Facts", "Serving Size 40g", "Calories 180")

	count, err := e.PageCount(context.Background(), data)
	if err != nil {
		t.Fatalf("PageCount() error = %v", err)
	}
	if count != 3 {
		t.Errorf("page count = %d, want 3", count)
	}
}

func TestPageCountRejectsGarbage(t *testing.T) {
	e := NewExtractor(arbor.NewLogger())

	_, err := e.PageCount(context.Background(), []byte("definitely not a pdf"))
	jobErr := models.AsJobError(err)
	if jobErr == nil || jobErr.Kind != models.ErrKindUnsupportedPDFVariant {
		t.Fatalf("error = %v, want unsupported_pdf_variant", err)
	}
}

func TestExtractPages(t *testing.T) {
	e := NewExtractor(arbor.NewLogger())
	data := fixturePDF(t, "Nutrition Facts", "Calories 180")

	pages, err := e.ExtractPages(context.Background(), data)
	if err != nil {
		t.Fatalf("ExtractPages() error = %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(pages))
	}
	for i, page := range pages {
		if page.PageNumber != i+1 {
			t.Errorf("page %d has number %d", i, page.PageNumber)
		}
	}
}

func TestExtractPagesCancelled(t *testing.T) {
	e := NewExtractor(arbor.NewLogger())
	data := fixturePDF(t, "Nutrition Facts")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.ExtractPages(ctx, data); err == nil {
		t.Fatal("ExtractPages() ignored cancelled context")
	}
}

func TestDecodeTextOperators(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "single Tj",
			content: "BT\n/F1 12 Tf\n(Nutrition Facts) Tj\nET",
			want:    "Nutrition Facts",
		},
		{
			name:    "TJ array drops kerning numbers",
			content: "BT\n[(Cal) -20 (ories:) 5 ( 180)] TJ\nET",
			want:    "Cal ories:  180",
		},
		{
			name:    "line moves become newlines",
			content: "BT\n(Protein: 4 g) Tj\n0 -14 Td\n(Sodium: 95 mg) Tj\nET",
			want:    "Protein: 4 g\nSodium: 95 mg",
		},
		{
			name:    "escaped parentheses",
			content: "BT\n(serving \\(per 100g\\)) Tj\nET",
			want:    "serving (per 100g)",
		},
		{
			name:    "no text operators",
			content: "0 0 100 100 re f",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeTextOperators(tt.content); got != tt.want {
				t.Errorf("decodeTextOperators() = %q, want %q", got, tt.want)
			}
		})
	}
}
