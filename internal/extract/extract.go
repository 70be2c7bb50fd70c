// Package extract recovers a single candidate query from free-form
// model output. Extraction is best effort: the SQL path never fails
// (it degrades to the raw text and lets the parser reject it), while
// the document path fails loudly because nothing downstream can
// recover an unparseable JSON object.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// sqlTokens is the fixed set that marks a line as SQL rather than
// prose. Punctuation counts: a continuation line of a multi-line
// statement nearly always carries one of these.
var sqlTokens = []string{
	"SELECT", "FROM", "WHERE", "JOIN", "GROUP BY", "ORDER BY", "LIMIT",
	"HAVING", "UNION", "DISTINCT", "BETWEEN", "LIKE", "CASE", "WHEN",
	"COUNT(", "SUM(", "AVG(", "MIN(", "MAX(", "OVER", "PARTITION",
	" AND ", " OR ", " ON ", " AS ", " IN ", " NOT ",
	",", "(", ")", "=", "<", ">", "*", ";",
}

// SQL pulls the first SELECT statement out of raw model output.
// Fences are stripped, prose around the statement is dropped, and the
// kept lines are joined into one statement without a trailing
// semicolon. If no SELECT line is found the trimmed raw text is
// returned unchanged so the parser produces the error.
func SQL(raw string) string {
	text := StripFence(strings.TrimSpace(raw))

	var kept []string
	collecting := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !collecting {
			if hasSelectPrefix(trimmed) {
				collecting = true
				kept = append(kept, trimmed)
				if strings.HasSuffix(trimmed, ";") {
					break
				}
			}
			continue
		}
		if trimmed == "" || looksLikeProse(trimmed) {
			break
		}
		kept = append(kept, trimmed)
		if strings.HasSuffix(trimmed, ";") {
			break
		}
	}

	if len(kept) == 0 {
		return strings.TrimSpace(text)
	}
	return strings.TrimSuffix(strings.Join(kept, " "), ";")
}

// Document recovers one JSON object from raw model output. The whole
// text is tried first; otherwise the first balanced {...} span is.
func Document(raw string) ([]byte, error) {
	text := StripFence(strings.TrimSpace(raw))

	if strings.HasPrefix(text, "{") && json.Valid([]byte(text)) {
		return []byte(text), nil
	}

	if span, ok := firstJSONObject(text); ok && json.Valid([]byte(span)) {
		return []byte(span), nil
	}

	return nil, fmt.Errorf("no JSON query object in model output: %s", truncate(text, 200))
}

// StripFence removes one leading/trailing markdown code fence pair.
func StripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}
	lines = lines[1:]
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func hasSelectPrefix(line string) bool {
	return len(line) >= 6 && strings.EqualFold(line[:6], "SELECT")
}

// looksLikeProse flags explanatory text around the statement: a line
// starting with a capital letter, carrying no quote characters and
// none of the SQL token set.
func looksLikeProse(line string) bool {
	runes := []rune(line)
	if len(runes) == 0 || !unicode.IsUpper(runes[0]) {
		return false
	}
	if strings.ContainsAny(line, `'"`+"`") {
		return false
	}
	upper := strings.ToUpper(line)
	for _, tok := range sqlTokens {
		if strings.Contains(upper, tok) {
			return false
		}
	}
	return true
}

// firstJSONObject returns the first balanced top-level {...} span,
// skipping braces inside string literals.
func firstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
