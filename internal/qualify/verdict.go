package qualify

import (
	"regexp"
	"strings"

	"github.com/sells-group/lead-magnet/internal/model"
)

// Section labels recognized in classifier output.
const (
	labelVerdict    = "VERDICT"
	labelCategories = "PRODUCT_CATEGORIES"
	labelSegments   = "MARKET_SEGMENTS"
	labelReasoning  = "REASONING"
	labelEvidence   = "EVIDENCE"
)

var knownLabels = []string{labelVerdict, labelCategories, labelSegments, labelReasoning, labelEvidence}

var bulletPrefix = regexp.MustCompile(`^(?:[-*•·]+|\d+[.)])\s*`)

// ParseVerdict extracts a QualificationVerdict from labeled classifier
// output. A missing or malformed section leaves only that field empty.
func ParseVerdict(text string) model.QualificationVerdict {
	sections := splitSections(text)
	return model.QualificationVerdict{
		Matched:    parseYes(sections[labelVerdict]),
		Categories: parseList(sections[labelCategories]),
		Segments:   parseList(sections[labelSegments]),
		Reasoning:  sections[labelReasoning],
		Evidence:   sections[labelEvidence],
	}
}

// ParseWholesale reports whether a wholesale-check response is affirmative.
// It reads the VERDICT section and falls back to a leading YES for terse
// responses.
func ParseWholesale(text string) bool {
	sections := splitSections(text)
	if v, ok := sections[labelVerdict]; ok {
		return parseYes(v)
	}
	return parseYes(text)
}

// splitSections maps each known label to the trimmed text following it up
// to the next label. Labels are matched at line start, case-insensitively,
// with optional markdown emphasis or heading marks.
func splitSections(text string) map[string]string {
	out := make(map[string]string)
	var current string
	var buf []string

	flush := func() {
		if current != "" {
			out[current] = strings.TrimSpace(strings.Join(buf, "\n"))
		}
		buf = buf[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		if label, rest, ok := matchLabel(line); ok {
			flush()
			current = label
			buf = append(buf, rest)
			continue
		}
		if current != "" {
			buf = append(buf, line)
		}
	}
	flush()
	return out
}

func matchLabel(line string) (label, rest string, ok bool) {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "#*_ ")
	// Spaces and underscores are interchangeable in labels.
	upper := strings.ToUpper(strings.ReplaceAll(s, " ", "_"))
	for _, l := range knownLabels {
		if !strings.HasPrefix(upper, l) {
			continue
		}
		after := strings.TrimLeft(s[len(l):], "*_ ")
		if !strings.HasPrefix(after, ":") {
			continue
		}
		after = strings.TrimLeft(after[1:], "*_ ")
		return l, after, true
	}
	return "", "", false
}

func parseYes(v string) bool {
	v = strings.TrimSpace(v)
	v = strings.TrimLeft(v, "*_`\"' ")
	if v == "" {
		return false
	}
	words := strings.FieldsFunc(v, func(r rune) bool {
		return r == ' ' || r == '.' || r == ',' || r == '\n' || r == '*' || r == '-' || r == '(' || r == ':'
	})
	if len(words) == 0 {
		return false
	}
	switch strings.ToUpper(words[0]) {
	case "YES", "MATCH", "MATCHES", "TRUE", "QUALIFIED", "PASS":
		return true
	default:
		return false
	}
}

func parseList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return []string{}
	}
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	})
	out := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		f = bulletPrefix.ReplaceAllString(f, "")
		f = strings.Trim(f, "[]\"' ")
		if f == "" {
			continue
		}
		switch strings.ToLower(f) {
		case "none", "n/a", "na", "unknown":
			continue
		}
		if seen[strings.ToLower(f)] {
			continue
		}
		seen[strings.ToLower(f)] = true
		out = append(out, f)
	}
	return out
}
