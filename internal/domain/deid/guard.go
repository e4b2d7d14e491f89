// Package deid screens free text for content that could re-identify a patient.
//
// A single pattern table drives two passes. Before persistence, Scan rejects
// a whole submission when any Block-mode pattern matches any field. After
// text generation, Redact replaces every Redact-mode match with a marker.
//
// Any 6+ digit run blocks, even a benign lab value. The guard does not
// promise complete removal of identifying information.
package deid

import (
	"regexp"
	"strings"
)

// Mode selects which pass a pattern participates in.
type Mode uint8

const (
	// Block patterns reject a submission in Scan.
	Block Mode = 1 << iota
	// Redact patterns are masked in Redact.
	Redact
)

// RedactionMarker replaces matched text during Redact.
const RedactionMarker = "[redacted]"

// Pattern is one entry in the screening table.
type Pattern struct {
	Reason string
	Regex  *regexp.Regexp
	Mode   Mode
}

// Reasons reported by Scan.
const (
	ReasonIdentifierKeyword = "identifier keyword"
	ReasonExactDate         = "exact date format"
	ReasonISODate           = "exact ISO date"
	ReasonMonthDate         = "month-based exact date"
	ReasonLongNumber        = "long numeric sequence (possible identifier)"
)

var defaultPatterns = []Pattern{
	{
		Reason: ReasonIdentifierKeyword,
		Regex:  regexp.MustCompile(`(?i)\b(?:mrn|medical\s*record\s*number|uhid|aadhaar|date\s*of\s*birth|dob)\b`),
		Mode:   Block | Redact,
	},
	{
		Reason: ReasonExactDate,
		Regex:  regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`),
		Mode:   Block | Redact,
	},
	{
		Reason: ReasonISODate,
		Regex:  regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
		Mode:   Block | Redact,
	},
	{
		Reason: ReasonMonthDate,
		Regex:  regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\s+\d{1,2}(?:,\s*\d{2,4}|\s+\d{2,4})?\b`),
		Mode:   Block | Redact,
	},
	{
		Reason: ReasonLongNumber,
		Regex:  regexp.MustCompile(`\b\d{6,}\b`),
		Mode:   Block,
	},
	{
		Reason: "name keyword",
		Regex:  regexp.MustCompile(`(?i)\bname\b`),
		Mode:   Redact,
	},
	{
		Reason: "long numeric sequence",
		Regex:  regexp.MustCompile(`\b\d{8,}\b`),
		Mode:   Redact,
	},
}

// Result is the outcome of a Scan.
type Result struct {
	Blocked bool     `json:"blocked"`
	Reasons []string `json:"reasons,omitempty"`
}

// Guard applies a pattern table. The zero value has no patterns; use New.
type Guard struct {
	patterns []Pattern
}

// New returns a Guard over the default pattern table.
func New() *Guard {
	return &Guard{patterns: defaultPatterns}
}

// Scan checks every text against the Block-mode patterns. Empty texts are
// skipped. Reasons are deduplicated and keep first-seen order.
func (g *Guard) Scan(texts ...string) Result {
	var reasons []string
	seen := make(map[string]bool)

	for _, raw := range texts {
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}
		for _, p := range g.patterns {
			if p.Mode&Block == 0 || seen[p.Reason] {
				continue
			}
			if p.Regex.MatchString(text) {
				seen[p.Reason] = true
				reasons = append(reasons, p.Reason)
			}
		}
	}

	return Result{Blocked: len(reasons) > 0, Reasons: reasons}
}

// Redact trims text and masks every Redact-mode match in table order.
func (g *Guard) Redact(text string) string {
	clean := strings.TrimSpace(text)
	for _, p := range g.patterns {
		if p.Mode&Redact == 0 {
			continue
		}
		clean = p.Regex.ReplaceAllString(clean, RedactionMarker)
	}
	return clean
}
