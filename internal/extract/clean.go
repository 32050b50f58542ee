package extract

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// block is a run of text read from the source. heading is set when the
// source format itself marks the text as a heading.
type block struct {
	text    string
	heading bool
}

type line struct {
	text    string
	heading bool
}

var (
	blankRuns = regexp.MustCompile(`\n{3,}`)

	labelledHeading = regexp.MustCompile(`^(?i:article|section|clause|schedule|exhibit|annex)\s+[0-9IVXLCivxlc]+(?:\.\d+)*[.:)]?(?:\s+\S.*)?$`)
	numberedHeading = regexp.MustCompile(`^\d+(?:\.\d+)*[.)]?\s+\p{Lu}`)
)

const (
	terminalPunct    = ".,;!?"
	maxHeaderWords   = 12
	maxNumberedWords = 8
	maxTitleWords    = 5
)

var minorWords = map[string]bool{
	"a": true, "an": true, "and": true, "as": true, "at": true, "by": true,
	"for": true, "in": true, "of": true, "on": true, "or": true, "the": true,
	"to": true, "with": true,
}

// buildDocument cleans blocks and splits them into sections at headers.
func buildDocument(blocks []block) *Document {
	var lines []line
	for _, b := range blocks {
		for _, raw := range strings.Split(normalize(b.text), "\n") {
			text := cleanLine(raw)
			lines = append(lines, line{text: text, heading: b.heading && text != ""})
		}
	}
	for i := range lines {
		if lines[i].heading || lines[i].text == "" {
			continue
		}
		lines[i].heading = looksLikeHeader(lines[i].text, nextText(lines, i))
	}

	doc := &Document{}
	var (
		cur  Section
		body []string
	)
	flush := func() {
		cur.Body = collapseBlank(strings.Join(body, "\n"))
		if cur.Header != "" || cur.Body != "" {
			doc.Sections = append(doc.Sections, cur)
		}
		body = nil
	}
	for _, l := range lines {
		if l.heading {
			flush()
			cur = Section{Header: l.text}
			continue
		}
		body = append(body, l.text)
	}
	flush()
	return doc
}

// normalize folds compatibility characters (ligatures, non-breaking and
// typographic spaces) and line endings.
func normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// cleanLine drops non-printable characters and collapses whitespace.
func cleanLine(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return ' '
		case !unicode.IsPrint(r):
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func collapseBlank(s string) string {
	return strings.TrimSpace(blankRuns.ReplaceAllString(s, "\n\n"))
}

func nextText(lines []line, i int) string {
	for j := i + 1; j < len(lines); j++ {
		if lines[j].text != "" {
			return lines[j].text
		}
	}
	return ""
}

// looksLikeHeader applies the line heuristics: all caps, a numbered or
// labelled heading, or a short Title Case line introducing a longer one.
func looksLikeHeader(s, next string) bool {
	words := strings.Fields(s)
	if len(words) == 0 || len(words) > maxHeaderWords {
		return false
	}
	if strings.ContainsRune(terminalPunct, lastRune(s)) {
		return false
	}
	if labelledHeading.MatchString(s) {
		return true
	}
	if numberedHeading.MatchString(s) && len(words) <= maxNumberedWords {
		return true
	}
	if isAllCaps(s) {
		return true
	}
	return len(words) <= maxTitleWords && isTitleCase(words) &&
		len(strings.Fields(next)) > len(words)
}

func isAllCaps(s string) bool {
	letters := 0
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		if !unicode.IsUpper(r) {
			return false
		}
		letters++
	}
	return letters >= 2
}

func isTitleCase(words []string) bool {
	for i, w := range words {
		r := firstRune(w)
		if unicode.IsUpper(r) || unicode.IsDigit(r) {
			continue
		}
		if i > 0 && minorWords[strings.ToLower(w)] {
			continue
		}
		return false
	}
	return true
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func lastRune(s string) rune {
	r := []rune(s)
	if len(r) == 0 {
		return 0
	}
	return r[len(r)-1]
}
