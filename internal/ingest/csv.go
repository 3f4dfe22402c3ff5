// Package ingest parses response CSV files for bulk import into a
// conversation. Rows carry free text plus an optional categorical tag;
// unrecognized tags are normalized to the default tag rather than rejected.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hively/engine/internal/models"
)

// DefaultTag is the fallback for unrecognized tags.
const DefaultTag = "general"

// knownTags is the accepted categorical tag set, matched case-insensitively.
var knownTags = map[string]string{
	"idea":     "idea",
	"issue":    "issue",
	"praise":   "praise",
	"question": "question",
	"general":  DefaultTag,
}

// row is the raw CSV row shape before normalization.
type row struct {
	Text string `validate:"required,min=1,max=10000"`
	Tag  string `validate:"max=100"`
}

// Stats tracks what happened during a parse.
type Stats struct {
	TotalRows      int
	SkippedInvalid int
	NormalizedTags int
	Parsed         int
}

// validate is safe for concurrent use; no registrations happen after init.
var validate = validator.New()

// ParseCSV reads rows of (text, tag) and returns the responses to insert.
// A header row of "text,tag" is skipped when present. Rows with empty or
// oversized text are counted and dropped, not fatal; a malformed CSV is.
func ParseCSV(r io.Reader) ([]models.NewResponse, Stats, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var (
		out   []models.NewResponse
		stats Stats
		first = true
	)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("read csv: %w", err)
		}

		if first {
			first = false
			if isHeader(record) {
				continue
			}
		}

		stats.TotalRows++

		parsed := row{Text: strings.TrimSpace(column(record, 0))}
		if len(record) > 1 {
			parsed.Tag = strings.TrimSpace(column(record, 1))
		}

		if err := validate.Struct(parsed); err != nil {
			stats.SkippedInvalid++
			continue
		}

		tag, normalized := NormalizeTag(parsed.Tag)
		if normalized {
			stats.NormalizedTags++
		}

		out = append(out, models.NewResponse{Text: parsed.Text, Tag: tag})
		stats.Parsed++
	}

	return out, stats, nil
}

// NormalizeTag maps a raw tag to its canonical form. Empty stays empty (nil);
// unrecognized values become the default tag. The second return reports
// whether the value was rewritten.
func NormalizeTag(raw string) (*string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}

	if canonical, ok := knownTags[strings.ToLower(trimmed)]; ok {
		rewritten := canonical != trimmed
		return &canonical, rewritten
	}

	fallback := DefaultTag
	return &fallback, true
}

func isHeader(record []string) bool {
	return len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "text")
}

func column(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	return record[i]
}
