// Package slack handles the /lead-magnet slash command: request
// verification, command parsing and posting results back to Slack.
package slack

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sells-group/lead-magnet/internal/model"
)

// CommandError is a user-correctable problem with the command text. Its
// message is shown to the user as is.
type CommandError struct {
	Problems []string
}

func (e *CommandError) Error() string {
	return strings.Join(e.Problems, "\n\n")
}

// Defaults fills request fields the command omits.
type Defaults struct {
	TargetCount  int
	MaxProcessed int
}

// keyAliases maps accepted command keys to their canonical names.
var keyAliases = map[string]string{
	"industry":            "industry",
	"industries":          "industry",
	"company_industry":    "industry",
	"keywords":            "keywords",
	"keyword":             "keywords",
	"company_keywords":    "keywords",
	"location":            "location",
	"locations":           "location",
	"company_location":    "location",
	"seniority":           "seniority",
	"person_seniority":    "seniority",
	"verified-email":      "verified-email",
	"verified_email":      "verified-email",
	"only_verified_email": "verified-email",
	"target":              "target",
	"max":                 "max",
	"max_processed":       "max",
	"context":             "context",
	"our-company-details": "context",
}

// industryQuickFixes maps common invalid industry values to the provider's
// exact value.
var industryQuickFixes = map[string]string{
	"general": "General Retail",
}

// seniorityAliases maps shorthand seniority values to the provider enum.
var seniorityAliases = map[string]string{
	"vp":             "Vice President",
	"vice-president": "Vice President",
	"c-level":        "C-Suite",
	"c-suite":        "C-Suite",
	"csuite":         "C-Suite",
	"cxo":            "C-Suite",
	"founder":        "Founder/Owner",
	"owner":          "Founder/Owner",
	"founder/owner":  "Founder/Owner",
}

// ParseCommand turns slash command text into a search request. The grammar
// is "key=value[,value] | key=value ...". Double-quoted values may contain
// "|" and ",". All problems found are reported together in a *CommandError.
func ParseCommand(text string, d Defaults) (model.SearchRequest, error) {
	req := model.SearchRequest{
		TargetCount:  d.TargetCount,
		MaxProcessed: d.MaxProcessed,
	}
	var problems []string

	for _, seg := range splitOutsideQuotes(text, '|') {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		rawKey, value, ok := strings.Cut(seg, "=")
		if !ok {
			problems = append(problems, fmt.Sprintf("Could not read `%s`: expected `key=value`.", seg))
			continue
		}
		name := strings.ToLower(strings.TrimSpace(rawKey))
		key, known := keyAliases[name]
		if !known {
			problems = append(problems, fmt.Sprintf("Unknown filter `%s`. See `/lead-magnet help`.", name))
			continue
		}

		switch key {
		case "industry":
			req.Industries = append(req.Industries, parseList(value)...)
		case "keywords":
			req.Keywords = append(req.Keywords, parseList(value)...)
		case "location":
			req.Locations = append(req.Locations, parseList(value)...)
		case "seniority":
			req.Seniority = append(req.Seniority, parseList(value)...)
		case "verified-email":
			req.VerifiedEmailOnly = parseBool(unquote(value))
		case "target", "max":
			n, err := strconv.Atoi(unquote(value))
			if err != nil || n <= 0 {
				problems = append(problems, fmt.Sprintf("`%s` must be a positive number, got `%s`.", name, unquote(value)))
				continue
			}
			if key == "target" {
				req.TargetCount = n
			} else {
				req.MaxProcessed = n
			}
		case "context":
			req.OurCompanyContext = unquote(value)
		}
	}

	problems = append(problems, checkIndustries(req.Industries)...)
	var seniorityProblems []string
	req.Seniority, seniorityProblems = normalizeSeniority(req.Seniority)
	problems = append(problems, seniorityProblems...)

	if len(req.Keywords) == 0 && len(req.Industries) == 0 {
		problems = append(problems, "Provide `keywords=` (recommended) or `industry=` so there is something to search for.")
	}
	if req.MaxProcessed < req.TargetCount {
		req.MaxProcessed = max(req.TargetCount, d.MaxProcessed)
	}

	if len(problems) > 0 {
		return req, &CommandError{Problems: problems}
	}
	return req, nil
}

func checkIndustries(industries []string) []string {
	var out []string
	for _, ind := range industries {
		if fix, ok := industryQuickFixes[strings.ToLower(ind)]; ok {
			out = append(out, fmt.Sprintf(
				"Industry \"%s\" is not a valid Prospeo value. Use instead: `%s`\nAll values: https://prospeo.io/api-docs/enum/industries",
				ind, fix))
		}
	}
	return out
}

// normalizeSeniority maps values onto the provider enum, case-insensitively
// and through aliases. Unknown values are reported.
func normalizeSeniority(values []string) ([]string, []string) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]bool)
	var invalid []string

	for _, v := range values {
		canon, ok := canonicalSeniority(v)
		if !ok {
			invalid = append(invalid, v)
			continue
		}
		if !seen[canon] {
			seen[canon] = true
			out = append(out, canon)
		}
	}
	if len(invalid) == 0 {
		return out, nil
	}
	return out, []string{fmt.Sprintf(
		"Invalid seniority level(s): %s\nValid seniority levels: `%s`\nExample: `/lead-magnet keywords=vape | seniority=Founder/Owner,C-Suite`",
		strings.Join(invalid, ", "), strings.Join(model.Seniorities, ", "))}
}

func canonicalSeniority(v string) (string, bool) {
	lv := strings.ToLower(strings.TrimSpace(v))
	if alias, ok := seniorityAliases[lv]; ok {
		return alias, true
	}
	for _, s := range model.Seniorities {
		if strings.ToLower(s) == lv {
			return s, true
		}
	}
	return "", false
}

// splitOutsideQuotes splits s on sep, ignoring separators inside double
// quotes. Quotes are kept.
func splitOutsideQuotes(s string, sep rune) []string {
	var parts []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == sep && !inQuotes:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(parts, cur.String())
}

func parseList(value string) []string {
	var out []string
	for _, item := range splitOutsideQuotes(value, ',') {
		if v := unquote(item); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on", "y":
		return true
	}
	return false
}
