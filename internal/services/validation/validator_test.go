package validation

import (
	"bytes"
	"compress/zlib"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/models"
)

const maxSize = 1024 * 1024
const maxSyncSize = 1024

func newTestValidator() *Validator {
	return NewValidator(maxSize, maxSyncSize, arbor.NewLogger())
}

// minimalPDF builds a structurally plausible PDF around the given body
func minimalPDF(body string) []byte {
	return []byte("%PDF-1.4\n" + body + "\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
}

func TestValidateAccept(t *testing.T) {
	v := newTestValidator()

	info, jobErr := v.Validate(minimalPDF("1 0 obj\n<< /Type /Catalog >>\nendobj"), "label.pdf", false)
	if jobErr != nil {
		t.Fatalf("Validate() error = %v", jobErr)
	}
	if info.Filename != "label.pdf" {
		t.Errorf("filename = %q", info.Filename)
	}
	if info.MIME != "application/pdf" {
		t.Errorf("mime = %q", info.MIME)
	}
	if len(info.Hash) != 64 {
		t.Errorf("hash = %q, want hex sha-256", info.Hash)
	}
	if info.Warning != "" {
		t.Errorf("warning = %q", info.Warning)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		filename string
		sync     bool
		wantKind models.ErrorKind
	}{
		{
			name:     "empty file",
			data:     nil,
			filename: "label.pdf",
			wantKind: models.ErrKindEmpty,
		},
		{
			name:     "oversize file",
			data:     bytes.Repeat([]byte("a"), maxSize+1),
			filename: "label.pdf",
			wantKind: models.ErrKindTooLarge,
		},
		{
			name:     "sync cap is tighter",
			data:     append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("a"), maxSyncSize)...),
			filename: "label.pdf",
			sync:     true,
			wantKind: models.ErrKindTooLarge,
		},
		{
			name:     "wrong extension",
			data:     minimalPDF(""),
			filename: "label.docx",
			wantKind: models.ErrKindWrongExtension,
		},
		{
			name:     "no extension",
			data:     minimalPDF(""),
			filename: "label",
			wantKind: models.ErrKindWrongExtension,
		},
		{
			name:     "plain text is not a pdf",
			data:     []byte("hello, this is a text file pretending to be a pdf"),
			filename: "label.pdf",
			wantKind: models.ErrKindNotPDF,
		},
		{
			name:     "javascript token",
			data:     minimalPDF("<< /S /JavaScript /JS (app.alert(1)) >>"),
			filename: "label.pdf",
			wantKind: models.ErrKindSuspectedMalicious,
		},
		{
			name:     "launch action token",
			data:     minimalPDF("<< /S /Launch /F (cmd.exe) >>"),
			filename: "label.pdf",
			wantKind: models.ErrKindSuspectedMalicious,
		},
		{
			name:     "embedded file token",
			data:     minimalPDF("<< /Type /EmbeddedFile >>"),
			filename: "label.pdf",
			wantKind: models.ErrKindSuspectedMalicious,
		},
		{
			name:     "open action token",
			data:     minimalPDF("<< /OpenAction 2 0 R >>"),
			filename: "label.pdf",
			wantKind: models.ErrKindSuspectedMalicious,
		},
	}

	v := newTestValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, jobErr := v.Validate(tt.data, tt.filename, tt.sync)
			if jobErr == nil {
				t.Fatal("Validate() accepted invalid upload")
			}
			if jobErr.Kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", jobErr.Kind, tt.wantKind)
			}
		})
	}
}

func TestValidateSyncTooLargeRecommendsAsync(t *testing.T) {
	v := newTestValidator()

	data := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("a"), maxSyncSize)...)
	_, jobErr := v.Validate(data, "label.pdf", true)
	if jobErr == nil || jobErr.Kind != models.ErrKindTooLarge {
		t.Fatalf("kind = %v, want too_large", jobErr)
	}
	if !strings.Contains(jobErr.Message, "/parse/async") {
		t.Errorf("message = %q, want async fallback hint", jobErr.Message)
	}

	// Async rejections carry no hint: there is no larger cap to point at
	_, jobErr = v.Validate(bytes.Repeat([]byte("a"), maxSize+1), "label.pdf", false)
	if jobErr == nil || strings.Contains(jobErr.Message, "/parse/async") {
		t.Errorf("async rejection = %v, want plain limit message", jobErr)
	}
}

func TestValidateCompressedStreamTokens(t *testing.T) {
	v := newTestValidator()

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write([]byte("<< /S /JavaScript /JS (app.alert(1)) >>")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	body := "2 0 obj\n<< /Filter /FlateDecode >>\nstream\n" + compressed.String() + "\nendstream\nendobj"
	_, jobErr := v.Validate(minimalPDF(body), "label.pdf", false)
	if jobErr == nil || jobErr.Kind != models.ErrKindSuspectedMalicious {
		t.Fatalf("kind = %v, want suspected_malicious", jobErr)
	}

	// A compressed stream with benign content still passes
	var benign bytes.Buffer
	zw = zlib.NewWriter(&benign)
	zw.Write([]byte("BT (Calories: 180) Tj ET"))
	zw.Close()
	body = "2 0 obj\n<< /Filter /FlateDecode >>\nstream\n" + benign.String() + "\nendstream\nendobj"
	if _, jobErr := v.Validate(minimalPDF(body), "label.pdf", false); jobErr != nil {
		t.Fatalf("Validate() error = %v", jobErr)
	}
}

func TestValidateSizeOrderBeforeSignature(t *testing.T) {
	// An oversize garbage payload reports too_large, not not_pdf
	v := newTestValidator()
	_, jobErr := v.Validate(bytes.Repeat([]byte("x"), maxSize+1), "label.pdf", false)
	if jobErr == nil || jobErr.Kind != models.ErrKindTooLarge {
		t.Fatalf("kind = %v, want too_large", jobErr)
	}
}

func TestValidateMissingTrailerWarns(t *testing.T) {
	v := newTestValidator()
	data := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	info, jobErr := v.Validate(data, "truncated.pdf", false)
	if jobErr != nil {
		t.Fatalf("Validate() error = %v", jobErr)
	}
	if !strings.Contains(info.Warning, "truncated") {
		t.Errorf("warning = %q, want truncation notice", info.Warning)
	}
}

func TestSanitizeFilename(t *testing.T) {
	v := newTestValidator()
	hash := strings.Repeat("ab", 32)

	tests := []struct {
		raw  string
		want string
	}{
		{"label.pdf", "label.pdf"},
		{"../../etc/passwd.pdf", "passwd.pdf"},
		{"..\\..\\evil.pdf", "evil.pdf"},
		{"with:colon.pdf", "withcolon.pdf"},
		{"nested/dir/report.PDF", "report.PDF"},
		{"no-extension", "no-extension.pdf"},
		{"///", "upload-abababababab.pdf"},
		{"\x01\x02\x03", "upload-abababababab.pdf"},
	}
	for _, tt := range tests {
		if got := v.SanitizeFilename(tt.raw, hash); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
