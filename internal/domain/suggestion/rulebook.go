package suggestion

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rulebook.yaml
var defaultRulebook []byte

const maxDraftsPerRule = 3

// Scope selects which note text a rule's keywords are matched against.
type Scope string

const (
	ScopeAll  Scope = "all"
	ScopeLabs Scope = "labs"
)

// Rule fires when its flag is set or any keyword occurs in its scope text.
type Rule struct {
	Name     string   `yaml:"name"`
	Flag     Flag     `yaml:"flag"`
	Scope    Scope    `yaml:"scope"`
	Keywords []string `yaml:"keywords"`
	Drafts   []Draft  `yaml:"drafts"`
}

// Rulebook is an ordered rule list plus the draft emitted when nothing fires.
type Rulebook struct {
	Rules    []Rule `yaml:"rules"`
	Fallback Draft  `yaml:"fallback"`
}

// ParseRulebook decodes and validates a YAML rulebook. Keywords are
// normalised to lower case.
func ParseRulebook(data []byte) (*Rulebook, error) {
	var rb Rulebook
	if err := yaml.Unmarshal(data, &rb); err != nil {
		return nil, fmt.Errorf("parse rulebook: %w", err)
	}
	if err := rb.validate(); err != nil {
		return nil, err
	}
	for i := range rb.Rules {
		for j, kw := range rb.Rules[i].Keywords {
			rb.Rules[i].Keywords[j] = strings.ToLower(strings.TrimSpace(kw))
		}
	}
	return &rb, nil
}

// DefaultRulebook returns the rulebook compiled into the binary.
func DefaultRulebook() (*Rulebook, error) {
	return ParseRulebook(defaultRulebook)
}

func (rb *Rulebook) validate() error {
	if len(rb.Rules) == 0 {
		return fmt.Errorf("rulebook has no rules")
	}
	if err := validateDraft(rb.Fallback); err != nil {
		return fmt.Errorf("rulebook fallback: %w", err)
	}

	names := make(map[string]bool, len(rb.Rules))
	for i, r := range rb.Rules {
		if r.Name == "" {
			return fmt.Errorf("rule %d: name is required", i)
		}
		if names[r.Name] {
			return fmt.Errorf("rule %q: duplicate name", r.Name)
		}
		names[r.Name] = true

		switch r.Scope {
		case ScopeAll, ScopeLabs:
		default:
			return fmt.Errorf("rule %q: unknown scope %q", r.Name, r.Scope)
		}
		if r.Flag != "" && !knownFlag(r.Flag) {
			return fmt.Errorf("rule %q: unknown flag %q", r.Name, r.Flag)
		}
		if r.Flag == "" && len(r.Keywords) == 0 {
			return fmt.Errorf("rule %q: needs a flag or keywords", r.Name)
		}
		for _, kw := range r.Keywords {
			if strings.TrimSpace(kw) == "" {
				return fmt.Errorf("rule %q: empty keyword", r.Name)
			}
		}
		if len(r.Drafts) == 0 || len(r.Drafts) > maxDraftsPerRule {
			return fmt.Errorf("rule %q: needs 1 to %d drafts, has %d", r.Name, maxDraftsPerRule, len(r.Drafts))
		}
		for j, d := range r.Drafts {
			if err := validateDraft(d); err != nil {
				return fmt.Errorf("rule %q draft %d: %w", r.Name, j, err)
			}
		}
	}
	return nil
}

func validateDraft(d Draft) error {
	if !d.Category.Valid() {
		return fmt.Errorf("unknown category %q", d.Category)
	}
	if strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("content is required")
	}
	if strings.TrimSpace(d.Rationale) == "" {
		return fmt.Errorf("rationale is required")
	}
	return nil
}
