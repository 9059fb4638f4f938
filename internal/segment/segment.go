// Package segment splits story text into narration sections.
//
// Stories are expected to carry five structural headers of the form
// "[SECTION N: NAME]". When fewer headers are present the text is split on
// blank lines and the paragraphs are redistributed into five groups.
package segment

import (
	"regexp"
	"strings"
)

// Count is the number of sections a story is split into.
const Count = 5

// DefaultMarker matches section headers such as "[SECTION 2: THE FRIEND]".
var DefaultMarker = regexp.MustCompile(`(?i)\[SECTION \d+:.*?\]`)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

var titles = [Count]string{
	"THE BEGINNING",
	"THE FRIEND",
	"THE WONDER",
	"THE COZY MOMENT",
	"SLEEP TIME",
}

// Title returns the conventional name of section i, or an empty string when i
// is out of range.
func Title(i int) string {
	if i < 0 || i >= Count {
		return ""
	}
	return titles[i]
}

// Options tunes how text is split.
type Options struct {
	// Marker matches a section header. Nil means DefaultMarker.
	Marker *regexp.Regexp
}

// Split splits text using the default marker.
func Split(text string) []string {
	return Options{}.Split(text)
}

// Split returns the sections of text. It always returns Count sections; with
// too few paragraphs some of them are empty strings.
func (o Options) Split(text string) []string {
	marker := o.Marker
	if marker == nil {
		marker = DefaultMarker
	}

	if sections, ok := byMarker(text, marker); ok {
		return sections
	}
	return byParagraph(text)
}

func byMarker(text string, marker *regexp.Regexp) ([]string, bool) {
	locs := marker.FindAllStringIndex(text, -1)
	if len(locs) < Count {
		return nil, false
	}

	sections := make([]string, 0, Count)
	for i := 0; i < Count; i++ {
		start := locs[i][1]
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		sections = append(sections, strings.TrimSpace(text[start:end]))
	}
	return sections, true
}

func byParagraph(text string) []string {
	var paragraphs []string
	for _, p := range paragraphBreak.Split(strings.TrimSpace(text), -1) {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	// The first n%Count groups take the ceil-sized share so that any story
	// with at least Count paragraphs fills every section.
	base, extra := len(paragraphs)/Count, len(paragraphs)%Count
	sections := make([]string, Count)
	start := 0
	for i := range sections {
		size := base
		if i < extra {
			size++
		}
		if size == 0 {
			continue
		}
		sections[i] = strings.Join(paragraphs[start:start+size], "\n\n")
		start += size
	}
	return sections
}
