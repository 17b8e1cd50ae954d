package validation

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/interfaces"
	"github.com/ternarybob/nutriparse/internal/models"
)

// Byte window inspected for the PDF header and trailer markers
const signatureWindow = 1024

// Tokens whose presence marks a PDF as suspected malicious. Conservative:
// false positives beat silent acceptance.
var maliciousTokens = [][]byte{
	[]byte("/JS"),
	[]byte("/JavaScript"),
	[]byte("/Launch"),
	[]byte("/EmbeddedFile"),
	[]byte("/OpenAction"),
}

// Validator enforces the upload checks in a fixed order: size, extension,
// magic bytes, trailer, malicious-content heuristics, filename hygiene.
type Validator struct {
	maxFileSize     int64
	maxSyncFileSize int64
	logger          arbor.ILogger
}

var _ interfaces.UploadValidator = (*Validator)(nil)

// NewValidator creates an upload validator with the configured size caps
func NewValidator(maxFileSize, maxSyncFileSize int64, logger arbor.ILogger) *Validator {
	return &Validator{
		maxFileSize:     maxFileSize,
		maxSyncFileSize: maxSyncFileSize,
		logger:          logger,
	}
}

// Validate runs every check in order and returns the first failure. The
// sync flag selects the tighter size cap for inline parsing.
func (v *Validator) Validate(data []byte, filename string, sync bool) (*interfaces.FileInfo, *models.JobError) {
	size := int64(len(data))

	if size == 0 {
		return nil, models.NewJobError(models.ErrKindEmpty, "uploaded file is empty")
	}

	limit := v.maxFileSize
	if sync && v.maxSyncFileSize > 0 {
		limit = v.maxSyncFileSize
	}
	if size > limit {
		if sync && size <= v.maxFileSize {
			return nil, models.NewJobError(models.ErrKindTooLarge,
				"file is %d bytes, sync limit is %d; submit to /parse/async which accepts up to %d bytes",
				size, limit, v.maxFileSize)
		}
		return nil, models.NewJobError(models.ErrKindTooLarge,
			"file is %d bytes, limit is %d", size, limit)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".pdf" {
		return nil, models.NewJobError(models.ErrKindWrongExtension,
			"expected a .pdf file, got %q", ext)
	}

	// Magic bytes within the first window; PDFs may carry a small preamble
	head := data
	if len(head) > signatureWindow {
		head = head[:signatureWindow]
	}
	if !bytes.Contains(head, []byte("%PDF-")) {
		mime := mimetype.Detect(data)
		if mime.Is("application/pdf") {
			return nil, models.NewJobError(models.ErrKindCorruptSignature,
				"PDF header not found in the first %d bytes", signatureWindow)
		}
		return nil, models.NewJobError(models.ErrKindNotPDF,
			"content is %s, not a PDF", mime.String())
	}

	warning := ""
	tail := data
	if len(tail) > signatureWindow {
		tail = tail[len(tail)-signatureWindow:]
	}
	if !bytes.Contains(tail, []byte("%%EOF")) {
		// Truncated PDFs are tolerated; parsers downstream may still cope
		warning = "missing %%EOF trailer, file may be truncated"
	}

	if token := findActiveContentToken(data); token != nil {
		v.logger.Warn().
			Str("filename", filename).
			Str("token", string(token)).
			Msg("Upload rejected by malicious-content heuristic")
		return nil, models.NewJobError(models.ErrKindSuspectedMalicious,
			"document contains active-content token %s", token)
	}

	hash := models.ContentHash(data)
	clean := v.SanitizeFilename(filename, hash)
	if clean == "" {
		return nil, models.NewJobError(models.ErrKindInvalidFilename,
			"filename %q cannot be sanitized", filename)
	}

	return &interfaces.FileInfo{
		Filename: clean,
		Size:     size,
		MIME:     "application/pdf",
		Hash:     hash,
		Warning:  warning,
	}, nil
}

// findActiveContentToken scans the raw bytes and the inflated bodies of
// Flate-compressed stream objects. Other stream filters pass through
// undecoded, so this stays a heuristic rather than a full object walk.
func findActiveContentToken(data []byte) []byte {
	for _, token := range maliciousTokens {
		if bytes.Contains(data, token) {
			return token
		}
	}
	for _, body := range inflateStreams(data) {
		for _, token := range maliciousTokens {
			if bytes.Contains(body, token) {
				return token
			}
		}
	}
	return nil
}

// Cap on a single inflated stream body, so a crafted deflate bomb cannot
// balloon memory during validation
const maxInflatedStream = 10 << 20

// inflateStreams collects the zlib-decoded bodies of stream...endstream
// regions. Bodies that do not decode are skipped; they are either using a
// different filter or are not compressed at all.
func inflateStreams(data []byte) [][]byte {
	var out [][]byte
	rest := data
	for {
		i := bytes.Index(rest, []byte("stream"))
		if i < 0 {
			return out
		}
		body := rest[i+len("stream"):]
		if len(body) > 0 && body[0] == '\r' {
			body = body[1:]
		}
		if len(body) > 0 && body[0] == '\n' {
			body = body[1:]
		}
		end := bytes.Index(body, []byte("endstream"))
		if end < 0 {
			return out
		}
		if r, err := zlib.NewReader(bytes.NewReader(body[:end])); err == nil {
			inflated, readErr := io.ReadAll(io.LimitReader(r, maxInflatedStream))
			r.Close()
			if readErr == nil && len(inflated) > 0 {
				out = append(out, inflated)
			}
		}
		rest = body[end+len("endstream"):]
	}
}

// SanitizeFilename strips path separators and control characters. An empty
// survivor is synthesized from the content hash.
func (v *Validator) SanitizeFilename(filename, hash string) string {
	base := filepath.Base(filepath.ToSlash(filename))

	var sb strings.Builder
	for _, r := range base {
		switch {
		case r < 0x20 || r == 0x7f:
			// drop control characters
		case r == '/' || r == '\\' || r == ':':
			// drop separator remnants
		default:
			sb.WriteRune(r)
		}
	}

	clean := strings.TrimSpace(sb.String())
	clean = strings.Trim(clean, ".")
	if clean == "" || strings.EqualFold(clean, ".pdf") {
		if len(hash) >= 12 {
			return fmt.Sprintf("upload-%s.pdf", hash[:12])
		}
		return "upload.pdf"
	}
	if !strings.HasSuffix(strings.ToLower(clean), ".pdf") {
		clean += ".pdf"
	}
	return clean
}
