// Package wikitext parses the table dialect used by the Trainer Lodge pages.
//
// A page is made of tier sections (=== Interesting ===) that each hold a table
// of categories (!colspan=2|Pokemon) followed by their topics (|Topic||Topic).
// Parsing never fails, lines that don't fit are skipped.
package wikitext

import (
	"lodgemirror/internal/lodge"
	"regexp"
	"strings"
)

var (
	sectionHeaderRegex  = tierHeaderRegex()
	terminalHeaderRegex = regexp.MustCompile(`==\s*Scrapbook`)
)

// tierHeaderRegex only matches headers naming a tier, a header with any other
// label must not swallow the "===" of the header that follows it.
func tierHeaderRegex() *regexp.Regexp {
	var labels []string
	for _, tier := range lodge.Tiers() {
		labels = append(labels, regexp.QuoteMeta(string(tier)))
	}
	return regexp.MustCompile(`===\s*(` + strings.Join(labels, "|") + `)\s*===`)
}

type section struct {
	tier lodge.Tier
	// start is the end of the header, end is the start of the next header
	start, end int
}

// findSections locates the tier sections of a page. Level 3 headers that are
// not a tier are neither sections nor boundaries.
func findSections(markup string) []section {
	var out []section
	for _, match := range sectionHeaderRegex.FindAllStringSubmatchIndex(markup, -1) {
		label := markup[match[2]:match[3]]
		tier, ok := lodge.ParseTier(label)
		if !ok {
			continue
		}
		out = append(out, section{tier: tier, start: match[1], end: -1})
		if len(out) > 1 {
			out[len(out)-2].end = match[0]
		}
	}

	if len(out) > 0 {
		last := &out[len(out)-1]
		last.end = len(markup)
		if loc := terminalHeaderRegex.FindStringIndex(markup[last.start:]); loc != nil {
			last.end = last.start + loc[0]
		}
	}
	return out
}

// Parse turns the markup of a trainer's page into a record. A record without
// any tier means the page had nothing usable.
func Parse(markup, name string) lodge.Record {
	record := lodge.NewRecord(name)
	for _, s := range findSections(markup) {
		categories := ParseTier(markup[s.start:s.end])
		if len(categories) > 0 {
			record.Tiers[s.tier] = categories
		}
	}
	return record
}

// ParseTier reads the categories and topics out of the content of one tier section.
func ParseTier(content string) lodge.Categories {
	categories := lodge.Categories{}
	current := ""

	for _, raw := range strings.Split(content, "\n") {
		line := ClassifyLine(raw)

		switch line.Kind {
		case LineCategoryHeader:
			current = NormalizeCategory(line.Text)
			// a repeated header starts the category over
			categories[current] = []string{}
		case LineEntry:
			if current == "" || line.Text == "" || isFormatting(line.Text) {
				continue
			}
			categories[current] = append(categories[current], splitCells(line.Text)...)
		}
	}

	return categories
}
