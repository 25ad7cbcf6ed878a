// Package annotation extracts tagged lines from recognised page text.
//
// A marker line looks like
//
//	--kw TODO: call dentist
//	  --kw cal dentist appt friday 3pm
//	--kw Note: ask about the invoice
//
// The category code is case-insensitive and the colon is optional. Marked
// content is routed into a bucket and also kept, marker stripped, in the
// cleaned text. Unmarked lines pass through verbatim.
package annotation

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/phrazzld/pagescan/internal/domain"
)

// MarkerToken introduces every marker line.
const MarkerToken = "--kw"

// Category identifies the bucket a marker line is routed to.
type Category string

const (
	CategoryTask     Category = "todo"
	CategoryCalendar Category = "cal"
	CategoryNote     Category = "note"
)

// markerPattern is matched against a line whose leading whitespace has
// already been removed. The \b stops "--kw CALL mum" from reading as CAL.
var markerPattern = regexp.MustCompile(`(?i)^--kw\s*(todo|cal|note)\b\s*:?(.*)$`)

// Parse splits raw into lines, strips markers and fills the three buckets in
// the order the lines appear. It never fails; empty input yields empty output.
func Parse(raw string) domain.StructuredOutput {
	out := domain.StructuredOutput{
		Tasks:    []string{},
		Calendar: []string{},
		Notes:    []string{},
	}

	lines := splitLines(raw)
	cleaned := make([]string, 0, len(lines))

	for _, line := range lines {
		category, content, ok := matchMarker(line)
		if !ok {
			cleaned = append(cleaned, line)
			continue
		}

		cleaned = append(cleaned, content)
		if content == "" {
			continue
		}

		switch category {
		case CategoryTask:
			out.Tasks = append(out.Tasks, content)
		case CategoryCalendar:
			out.Calendar = append(out.Calendar, content)
		case CategoryNote:
			out.Notes = append(out.Notes, content)
		}
	}

	out.CleanedText = strings.TrimSpace(strings.Join(cleaned, "\n"))
	return out
}

// splitLines accepts both \n and \r\n line endings. Stray trailing carriage
// returns are dropped as well so that rejoined output splits the same way.
func splitLines(raw string) []string {
	if raw == "" {
		return nil
	}
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(raw, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	return lines
}

// matchMarker reports whether line is a marker line and returns its category
// and trimmed content. Markers repeated at the start of the content are
// removed too; otherwise the cleaned text would still carry a marker.
func matchMarker(line string) (Category, string, bool) {
	category, content, ok := matchOnce(line)
	if !ok {
		return "", "", false
	}
	for {
		_, inner, again := matchOnce(content)
		if !again {
			return category, content, true
		}
		content = inner
	}
}

func matchOnce(line string) (Category, string, bool) {
	m := markerPattern.FindStringSubmatch(strings.TrimLeftFunc(line, unicode.IsSpace))
	if m == nil {
		return "", "", false
	}
	return Category(strings.ToLower(m[1])), strings.TrimSpace(m[2]), true
}
