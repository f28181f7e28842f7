package repair

import (
	"regexp"
	"strings"
)

var fieldStartPattern = regexp.MustCompile(`"([A-Za-z_][A-Za-z0-9_]*)"\s*:\s*"`)

// escapeInteriorQuotes escapes bare double quotes inside the string values of
// the given fields. A quote counts as the closing delimiter only when what
// follows it looks like the continuation of the surrounding JSON.
func escapeInteriorQuotes(text string, fields map[string]struct{}) string {
	var b strings.Builder
	b.Grow(len(text) + 16)
	i := 0
	for i < len(text) {
		loc := fieldStartPattern.FindStringSubmatchIndex(text[i:])
		if loc == nil {
			b.WriteString(text[i:])
			break
		}
		name := text[i+loc[2] : i+loc[3]]
		valueStart := i + loc[1]
		b.WriteString(text[i:valueStart])
		if _, ok := fields[name]; !ok {
			i = skipString(text, valueStart, &b)
			continue
		}
		i = rewriteValue(text, valueStart, &b)
	}
	return b.String()
}

// rewriteValue copies a string value starting after its opening quote,
// escaping interior quotes, and returns the index after the closing quote.
func rewriteValue(text string, j int, b *strings.Builder) int {
	for j < len(text) {
		c := text[j]
		switch {
		case c == '\\' && j+1 < len(text):
			b.WriteByte(c)
			b.WriteByte(text[j+1])
			j += 2
		case c == '"':
			if closesValue(text, j+1) {
				b.WriteByte('"')
				return j + 1
			}
			b.WriteString(`\"`)
			j++
		default:
			b.WriteByte(c)
			j++
		}
	}
	return j
}

// skipString copies an untouched string value and returns the index after it.
func skipString(text string, j int, b *strings.Builder) int {
	for j < len(text) {
		c := text[j]
		if c == '\\' && j+1 < len(text) {
			b.WriteString(text[j : j+2])
			j += 2
			continue
		}
		b.WriteByte(c)
		j++
		if c == '"' {
			return j
		}
	}
	return j
}

func closesValue(text string, k int) bool {
	k = skipSpace(text, k)
	if k >= len(text) {
		return true
	}
	switch text[k] {
	case '}', ']':
		return true
	case ',':
		k = skipSpace(text, k+1)
		if k >= len(text) {
			return true
		}
		switch text[k] {
		case '"', '{', '[', '}', ']':
			return true
		}
	}
	return false
}

func skipSpace(text string, k int) int {
	for k < len(text) {
		switch text[k] {
		case ' ', '\t', '\n', '\r':
			k++
		default:
			return k
		}
	}
	return k
}
