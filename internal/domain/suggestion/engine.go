// Package suggestion turns an ISBAR note into conservative follow-up drafts.
// The engine is pure: the same input always yields the same ordered list.
package suggestion

import "strings"

// Engine evaluates a Rulebook.
type Engine struct {
	rules *Rulebook
}

// NewEngine returns an engine over rb.
func NewEngine(rb *Rulebook) *Engine {
	return &Engine{rules: rb}
}

// NewDefaultEngine returns an engine over the embedded rulebook.
func NewDefaultEngine() (*Engine, error) {
	rb, err := DefaultRulebook()
	if err != nil {
		return nil, err
	}
	return NewEngine(rb), nil
}

type draftKey struct {
	category Category
	content  string
}

// Propose returns the drafts triggered by in, in rule order with duplicate
// (category, content) pairs removed. When no rule fires it returns exactly
// the fallback draft.
func (e *Engine) Propose(in Input) []Draft {
	all := strings.ToLower(strings.Join([]string{
		in.Identification,
		in.Situation,
		in.Background,
		in.Assessment,
		in.Recommendation,
		in.LabsSummary,
		in.ImagingSummary,
	}, " "))
	labs := strings.ToLower(in.LabsSummary)

	var out []Draft
	seen := make(map[draftKey]bool)

	for _, r := range e.rules.Rules {
		text := all
		if r.Scope == ScopeLabs {
			text = labs
		}
		if !fires(r, in.Flags, text) {
			continue
		}
		for _, d := range r.Drafts {
			k := draftKey{d.Category, d.Content}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, d)
		}
	}

	if len(out) == 0 {
		return []Draft{e.rules.Fallback}
	}
	return out
}

func fires(r Rule, flags Flags, text string) bool {
	if r.Flag != "" && flags.IsSet(r.Flag) {
		return true
	}
	return containsAny(text, r.Keywords)
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
