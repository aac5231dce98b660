package wikitext

import (
	"regexp"
	"strconv"
	"strings"
)

// LineKind is what a single line of a tier's table markup turned out to be.
type LineKind int

const (
	LineUnknown LineKind = iota
	LineBlank
	// LineTableControl is a row separator (|-), a table close (|}) or a table open ({|...).
	LineTableControl
	// LineCategoryHeader is a header cell spanning columns: !colspan="2"|Name
	LineCategoryHeader
	// LineEntry is a regular cell: |Topic or |Topic||Topic
	LineEntry
)

func (k LineKind) String() string {
	switch k {
	case LineBlank:
		return "blank"
	case LineTableControl:
		return "table-control"
	case LineCategoryHeader:
		return "category-header"
	case LineEntry:
		return "entry"
	default:
		return "unknown"
	}
}

// Line is a classified line, Span and Text are only meaningful for
// LineCategoryHeader (column span and label) and LineEntry (cell text).
type Line struct {
	Kind LineKind
	Span int
	Text string
}

var categoryHeaderRegex = regexp.MustCompile(`^!colspan=["']?(\d+)["']?\|(.+)`)

// ClassifyLine tokenizes one line of markup, the line is trimmed first.
func ClassifyLine(line string) Line {
	line = strings.TrimSpace(line)

	switch {
	case line == "":
		return Line{Kind: LineBlank}
	case line == "|-" || line == "|}" || strings.HasPrefix(line, "{|"):
		return Line{Kind: LineTableControl}
	}

	if groups := categoryHeaderRegex.FindStringSubmatch(line); groups != nil {
		span, err := strconv.Atoi(groups[1])
		if err != nil {
			// digits that overflow an int are still a header, the span is never used for layout
			span = 0
		}
		return Line{
			Kind: LineCategoryHeader,
			Span: span,
			Text: strings.TrimSpace(groups[2]),
		}
	}

	if strings.HasPrefix(line, "|") {
		return Line{
			Kind: LineEntry,
			Text: strings.TrimSpace(line[1:]),
		}
	}

	return Line{Kind: LineUnknown}
}

// PokemonCategory is the single name every spelling of the Pokémon category collapses into.
const PokemonCategory = "Pokemon"

// NormalizeCategory collapses the known variant spellings of a category name.
func NormalizeCategory(name string) string {
	if strings.Contains(name, "Pok") {
		return PokemonCategory
	}
	return name
}

// isFormatting reports whether a cell holds table formatting instead of a topic.
func isFormatting(text string) bool {
	return strings.HasPrefix(text, "class=") || strings.HasPrefix(text, "style=")
}

// splitCells splits a cell that holds several inline cells (Topic||Topic).
func splitCells(text string) []string {
	if !strings.Contains(text, "||") {
		return []string{text}
	}
	var out []string
	for _, part := range strings.Split(text, "||") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
