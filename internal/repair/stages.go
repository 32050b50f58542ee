package repair

import (
	"fmt"
	"strings"
	"unicode"
)

type stage struct {
	name string
	fix  func(string) string
}

// Every stage is idempotent and a later stage never produces input an
// earlier stage would rewrite, so Sanitize(Sanitize(x)) == Sanitize(x).
var stages = []stage{
	{"strip_fences", stripFences},
	{"bound_json", boundJSON},
	{"normalize_quotes", normalizeQuotes},
	{"escape_strings", escapeStrings},
	{"stray_commas", removeStrayCommas},
	{"close_truncated", closeTruncated},
	{"placeholders", blankPlaceholders},
}

// Sanitize runs the textual fixups over raw and reports which ones changed it.
func Sanitize(raw string) (string, []string) {
	s := raw
	var applied []string
	for _, st := range stages {
		next := st.fix(s)
		if next != s {
			applied = append(applied, st.name)
		}
		s = next
	}
	return s, applied
}

const fence = "```"

// stripFences keeps the interior of the first fenced block. A missing
// closing fence keeps everything to the end of the text.
func stripFences(s string) string {
	start := strings.Index(s, fence)
	if start < 0 {
		return s
	}
	body := s[start+len(fence):]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		if isFenceTag(body[:nl]) {
			body = body[nl+1:]
		}
	} else if isFenceTag(body) {
		body = ""
	}
	if end := strings.Index(body, fence); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func isFenceTag(s string) bool {
	for _, r := range strings.TrimSpace(s) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' && r != '+' {
			return false
		}
	}
	return true
}

// boundJSON drops prose around the JSON value. The value ends at its
// balanced close, or at the end of the text when it never closes.
func boundJSON(s string) string {
	start := jsonStart(s)
	if start < 0 {
		return strings.TrimSpace(s)
	}
	depth := 0
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return strings.TrimRightFunc(s[start:], unicode.IsSpace)
}

// jsonStart finds the first '[' that looks like it opens a list or the first
// '{' that looks like it opens an object, whichever comes first. Brackets and
// braces used as asides in prose are skipped. When nothing looks like JSON
// the first '[', then the first '{', is the last resort.
func jsonStart(s string) int {
	firstList, firstObj := -1, -1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			if firstList < 0 {
				firstList = i
			}
			if opensValue(s, i+1, `{["]'`) {
				return i
			}
		case '{':
			if firstObj < 0 {
				firstObj = i
			}
			if opensValue(s, i+1, `"'}`) {
				return i
			}
		}
	}
	if firstList >= 0 {
		return firstList
	}
	return firstObj
}

// opensValue reports whether the first non-space byte at or after i is one of
// next, a curly quote, or the end of the text.
func opensValue(s string, i int, next string) bool {
	j := skipSpace(s, i)
	if j == len(s) {
		return true
	}
	return strings.IndexByte(next, s[j]) >= 0 || strings.HasPrefix(s[j:], "“")
}

func normalizeQuotes(s string) string {
	if !strings.Contains(s, `"`) && strings.ContainsAny(s, "“”") {
		s = strings.NewReplacer("“", `"`, "”", `"`).Replace(s)
	}
	return requoteSingle(s)
}

// requoteSingle rewrites single-quoted strings that sit where a JSON string
// token is expected into double-quoted ones.
func requoteSingle(s string) string {
	if !strings.Contains(s, "'") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inStr, esc := false, false
	prev := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			b.WriteByte(c)
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
				prev = '"'
			}
			continue
		}
		if c == '\'' && (prev == 0 || strings.IndexByte("[{,:", prev) >= 0) {
			if end := singleQuoteEnd(s, i); end > 0 {
				writeRequoted(&b, s[i+1:end])
				prev = '"'
				i = end
				continue
			}
		}
		b.WriteByte(c)
		if c == '"' {
			inStr = true
		}
		if !isSpace(c) {
			prev = c
		}
	}
	return b.String()
}

// singleQuoteEnd returns the index of the quote closing the single-quoted
// string opened at open, or -1. Apostrophes inside words do not close it.
func singleQuoteEnd(s string, open int) int {
	esc := false
	for j := open + 1; j < len(s); j++ {
		switch c := s[j]; {
		case esc:
			esc = false
		case c == '\\':
			esc = true
		case c == '\'':
			k := skipSpace(s, j+1)
			if k == len(s) || strings.IndexByte(",]}:", s[k]) >= 0 {
				return j
			}
		}
	}
	return -1
}

func writeRequoted(b *strings.Builder, body string) {
	b.WriteByte('"')
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\' && i+1 < len(body) && body[i+1] == '\'':
			b.WriteByte('\'')
			i++
		case c == '\\' && i+1 < len(body):
			b.WriteByte(c)
			b.WriteByte(body[i+1])
			i++
		case c == '"':
			b.WriteString(`\"`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
}

// escapeStrings escapes raw control characters and unescaped inner quotes
// inside strings and repairs escape sequences JSON does not allow.
func escapeStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inStr := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inStr {
			if c == '"' {
				inStr = true
			}
			b.WriteByte(c)
			continue
		}
		switch {
		case c == '\\':
			if i+1 >= len(s) {
				b.WriteString(`\\`)
				continue
			}
			next := s[i+1]
			switch {
			case strings.IndexByte(`"\/bfnrt`, next) >= 0, next == 'u' && isHex4(s, i+2):
				b.WriteByte(c)
				b.WriteByte(next)
				i++
			case next == '\'':
				b.WriteByte(next)
				i++
			default:
				b.WriteString(`\\`)
			}
		case c == '"':
			if closesString(s, i) {
				inStr = false
				b.WriteByte(c)
			} else {
				b.WriteString(`\"`)
			}
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20:
			fmt.Fprintf(&b, `\u%04x`, c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// closesString reports whether the quote at i ends a string. A quote followed
// by anything other than a separator, a closing bracket or the end of the text
// is an unescaped quote inside the string.
func closesString(s string, i int) bool {
	j := skipSpace(s, i+1)
	return j == len(s) || strings.IndexByte(",:]}", s[j]) >= 0
}

func isHex4(s string, i int) bool {
	if i+4 > len(s) {
		return false
	}
	for _, c := range []byte(s[i : i+4]) {
		if !strings.ContainsRune("0123456789abcdefABCDEF", rune(c)) {
			return false
		}
	}
	return true
}

// removeStrayCommas drops commas directly before a closing bracket, after an
// opening bracket, or doubled.
func removeStrayCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inStr, esc := false, false
	last := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			b.WriteByte(c)
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
				last = '"'
			}
			continue
		}
		if c == ',' {
			j := skipSpace(s, i+1)
			if j < len(s) && strings.IndexByte("]},", s[j]) >= 0 {
				continue
			}
			if last == '[' || last == '{' {
				continue
			}
		}
		b.WriteByte(c)
		if c == '"' {
			inStr = true
		}
		if !isSpace(c) {
			last = c
		}
	}
	return b.String()
}

type frame struct {
	open byte
	// lastEnd is the offset just past the last complete element.
	lastEnd int
}

// closeTruncated repairs a reply that stops mid-value. It cuts back to the
// last complete element of the outermost open array, which drops the partial
// record, and closes every container around it. Without an open array the
// outermost object is cut back to its last complete member.
func closeTruncated(s string) string {
	var stack []frame
	inStr, esc := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
				if n := len(stack); n > 0 && stack[n-1].open == '[' {
					stack[n-1].lastEnd = i + 1
				}
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '[', '{':
			stack = append(stack, frame{open: c, lastEnd: i + 1})
		case ']', '}':
			if len(stack) == 0 {
				continue
			}
			stack = stack[:len(stack)-1]
			if n := len(stack); n > 0 {
				stack[n-1].lastEnd = i + 1
			}
		case ',':
			if n := len(stack); n > 0 {
				stack[n-1].lastEnd = i
			}
		}
	}
	if len(stack) == 0 {
		return s
	}

	k := 0
	for i, f := range stack {
		if f.open == '[' {
			k = i
			break
		}
	}
	var b strings.Builder
	b.WriteString(strings.TrimRightFunc(s[:stack[k].lastEnd], unicode.IsSpace))
	for i := k; i >= 0; i-- {
		if stack[i].open == '[' {
			b.WriteByte(']')
		} else {
			b.WriteByte('}')
		}
	}
	return b.String()
}

var placeholderWords = map[string]bool{
	"[omitted]":   true,
	"<omitted>":   true,
	"(omitted)":   true,
	"[...]":       true,
	"[…]":         true,
	"[truncated]": true,
}

func isPlaceholder(v string) bool {
	t := strings.ToLower(strings.TrimSpace(v))
	if t == "" {
		return false
	}
	if strings.Trim(t, ".…") == "" {
		return strings.Contains(t, "…") || len(t) >= 3
	}
	return placeholderWords[t]
}

// blankPlaceholders replaces placeholder values with "". A bare placeholder
// used as a list element or object member is removed with its comma.
func blankPlaceholders(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	changed := false
	last := byte(0)
	for i := 0; i < len(s); {
		c := s[i]
		if c == '"' {
			end := stringEnd(s, i)
			if end < 0 {
				b.WriteString(s[i:])
				break
			}
			j := skipSpace(s, end+1)
			isKey := j < len(s) && s[j] == ':'
			if !isKey && isPlaceholder(s[i+1:end]) {
				b.WriteString(`""`)
				changed = true
			} else {
				b.WriteString(s[i : end+1])
			}
			last = '"'
			i = end + 1
			continue
		}
		if n := bareEllipsis(s, i); n > 0 {
			changed = true
			if last == ':' {
				b.WriteString(`""`)
				last = '"'
			}
			i += n
			continue
		}
		b.WriteByte(c)
		if !isSpace(c) {
			last = c
		}
		i++
	}
	if !changed {
		return s
	}
	return removeStrayCommas(b.String())
}

const ellipsis = "…"

// bareEllipsis returns the byte length of an unquoted placeholder run of dots
// or ellipsis characters starting at i, or 0.
func bareEllipsis(s string, i int) int {
	j, dots, hasEllipsis := i, 0, false
	for j < len(s) {
		if s[j] == '.' {
			dots++
			j++
			continue
		}
		if strings.HasPrefix(s[j:], ellipsis) {
			hasEllipsis = true
			j += len(ellipsis)
			continue
		}
		break
	}
	if hasEllipsis || dots >= 3 {
		return j - i
	}
	return 0
}

// stringEnd returns the index of the quote closing the string opened at open.
func stringEnd(s string, open int) int {
	esc := false
	for i := open + 1; i < len(s); i++ {
		switch c := s[i]; {
		case esc:
			esc = false
		case c == '\\':
			esc = true
		case c == '"':
			return i
		}
	}
	return -1
}

func skipSpace(s string, i int) int {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
