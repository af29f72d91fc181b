package internal

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/phuslu/log"
)

type RuleSyntax string

const (
	RuleSyntaxRegex      RuleSyntax = "regex"
	RuleSyntaxPrintflike RuleSyntax = "printflike"
)

var RuleFileName = ".dispq.toml"

var nonWordRe = regexp.MustCompile(`\W`)

type Rule struct {
	ID      string     `toml:"id"`
	Syntax  RuleSyntax `toml:"syntax"`
	Pattern string     `toml:"pattern,multiline"`
	Color   string     `toml:"color,omitempty"`
	// {rule} is replaced with ID
	Link string `toml:"link,omitempty"`

	// Only populated by Compile
	Compiled *regexp.Regexp `toml:"-"`
	ArgCnt   int            `toml:"-"`
}

func (r *Rule) groupName() string {
	return "rule_" + nonWordRe.ReplaceAllString(r.ID, "_")
}

func (r *Rule) Compile() error {
	if r.ID == "" {
		return fmt.Errorf("rule with pattern %q has no id", r.Pattern)
	}
	var expr string
	switch r.Syntax {
	case RuleSyntaxRegex, "":
		expr = r.Pattern
	case RuleSyntaxPrintflike:
		parsed, err := ParsePrintfFormat(r.Pattern, r.groupName())
		if err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
		expr = parsed.Regex
		r.ArgCnt = parsed.ArgCnt
	default:
		return fmt.Errorf("rule %s: unknown syntax %q", r.ID, r.Syntax)
	}
	compiled, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("rule %s: invalid pattern %q: %w", r.ID, r.Pattern, err)
	}
	r.Compiled = compiled
	return nil
}

// ArgumentGroups returns the submatch indices of the rule's argument captures:
// named printf arguments for printflike rules, every group for regex rules.
func (r *Rule) ArgumentGroups() []int {
	if r.Compiled == nil {
		return nil
	}
	groups := []int{}
	prefix := "arg" + r.groupName()
	for i, name := range r.Compiled.SubexpNames() {
		if i == 0 {
			continue
		}
		if r.Syntax == RuleSyntaxPrintflike && !strings.HasPrefix(name, prefix) {
			continue
		}
		groups = append(groups, i)
	}
	return groups
}

func (r *Rule) ResolveLink() string {
	return strings.ReplaceAll(r.Link, "{rule}", r.ID)
}

type RuleFile struct {
	Name  string `toml:"name"`
	Rules []Rule `toml:"rules"`
}

func SampleRuleFile() RuleFile {
	return RuleFile{
		Name: "sample",
		Rules: []Rule{
			{
				ID:      "http_request",
				Syntax:  RuleSyntaxPrintflike,
				Pattern: "%s %s completed with %d in %.2fms",
				Color:   "#66ccff",
				Link:    "https://example.com/runbooks/{rule}",
			},
			{
				ID:      "queue_disposed",
				Syntax:  RuleSyntaxRegex,
				Pattern: `queue: disposed`,
				Color:   "#ff6666",
			},
		},
	}
}

// Compile compiles every rule, rejecting duplicate ids.
func (f *RuleFile) Compile() error {
	seen := make(map[string]struct{}, len(f.Rules))
	for i := range f.Rules {
		if _, dup := seen[f.Rules[i].ID]; dup {
			return fmt.Errorf("duplicate rule id %q", f.Rules[i].ID)
		}
		seen[f.Rules[i].ID] = struct{}{}
		if err := f.Rules[i].Compile(); err != nil {
			return err
		}
	}
	return nil
}

func (f *RuleFile) Marshal() ([]byte, error) {
	return toml.Marshal(f)
}

func ParseRuleFile(data []byte) (RuleFile, error) {
	var f RuleFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return RuleFile{}, fmt.Errorf("error unmarshalling rule file: %w", err)
	}
	if err := f.Compile(); err != nil {
		return RuleFile{}, fmt.Errorf("invalid rule: %w", err)
	}
	return f, nil
}

func ReadRuleFile(path string) (RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleFile{}, fmt.Errorf("error reading rule file: %w", err)
	}
	f, err := ParseRuleFile(data)
	if err != nil {
		return RuleFile{}, fmt.Errorf("%s: %w", path, err)
	}
	log.Debug().Msgf("Loaded %d rules from %s", len(f.Rules), path)
	return f, nil
}
