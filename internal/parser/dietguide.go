package parser

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ternarybob/nutriparse/internal/models"
)

var headingMarkerPattern = regexp.MustCompile(`^(?:第[一二三四五六七八九十\d]+[章节部分]|chapter\s+\d+|\d+\.\s+\S|[一二三四五六七八九十]+[、.])`)

// DietGuideExtractor sectionizes free-form guide text by headings
type DietGuideExtractor struct{}

func (e *DietGuideExtractor) CanHandle(t models.ResultType) bool {
	return t == models.ResultTypeDietGuide
}

// Extract splits the document at heading-like lines. A document with no
// recognizable headings becomes a single untitled section so the raw text
// is never lost.
func (e *DietGuideExtractor) Extract(text string) (*models.Result, *ExtractionStats, error) {
	stats := &ExtractionStats{ExpectedFields: 1}

	var sections []models.GuideSection
	current := models.GuideSection{}
	var body strings.Builder

	flush := func() {
		current.Body = strings.TrimSpace(body.String())
		if current.Heading != "" || current.Body != "" {
			sections = append(sections, current)
		}
		body.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if isHeading(trimmed) {
			flush()
			current = models.GuideSection{Heading: trimmed}
			continue
		}
		if trimmed != "" {
			if body.Len() > 0 {
				body.WriteByte('\n')
			}
			body.WriteString(trimmed)
		}
	}
	flush()

	if len(sections) == 0 {
		return nil, stats, models.NewJobError(models.ErrKindUnparseable, "document contains no text")
	}
	stats.PresentFields = 1

	return &models.Result{
		Type:      models.ResultTypeDietGuide,
		DietGuide: &models.DietGuideResult{Sections: sections},
	}, stats, nil
}

// isHeading guesses whether a line is a section heading: short, not ending
// in sentence punctuation, and either marker-prefixed, all-caps, or
// title-short.
func isHeading(line string) bool {
	if line == "" || len(line) > 80 {
		return false
	}
	for _, suffix := range []string{".", ",", ";", "。", "，", "；"} {
		if strings.HasSuffix(line, suffix) {
			return false
		}
	}
	lower := strings.ToLower(line)
	if headingMarkerPattern.MatchString(lower) {
		return true
	}
	// All-caps Latin lines read as headings
	hasLetter := false
	allUpper := true
	for _, r := range line {
		if unicode.IsLetter(r) && r < 128 {
			hasLetter = true
			if unicode.IsLower(r) {
				allUpper = false
			}
		}
	}
	return hasLetter && allUpper
}
