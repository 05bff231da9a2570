package security

import (
	"regexp"
	"strings"
)

// RuleKind tags a denylist rule.
type RuleKind string

const (
	RuleLiteralPrefix RuleKind = "prefix"
	RulePattern       RuleKind = "pattern"
)

// Rule is a single denylist entry. Matches receives the already trimmed
// command.
type Rule interface {
	Kind() RuleKind
	Matches(trimmed string) bool
	String() string
}

// LiteralPrefix restricts every command that starts with the prefix.
// Matching is case-sensitive.
type LiteralPrefix string

func (p LiteralPrefix) Kind() RuleKind { return RuleLiteralPrefix }

func (p LiteralPrefix) Matches(trimmed string) bool {
	return strings.HasPrefix(trimmed, string(p))
}

func (p LiteralPrefix) String() string { return string(p) }

// Pattern restricts every command the expression matches. Anchoring is part
// of the expression itself.
type Pattern struct {
	re *regexp.Regexp
}

func NewPattern(expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{re: re}, nil
}

func MustPattern(expr string) Pattern {
	return Pattern{re: regexp.MustCompile(expr)}
}

func (p Pattern) Kind() RuleKind { return RulePattern }

func (p Pattern) Matches(trimmed string) bool {
	return p.re != nil && p.re.MatchString(trimmed)
}

func (p Pattern) String() string {
	if p.re == nil {
		return ""
	}
	return p.re.String()
}

var baseLiteralPrefixes = []LiteralPrefix{
	"rm -rf",
	"sudo",
	"chmod",
	"chown",
	"mv /",
	"cp -r /",
	"dd",
	"mkfs",
	"kill -9",
	"pkill",
	"killall",
	"reboot",
	"shutdown",
	"docker run --privileged",
	"docker run -v /:/host",
}

var basePatterns = []Pattern{
	MustPattern(`^ssh\s+`),
	MustPattern(`^telnet\s+`),
	MustPattern(`^ftp\s+`),
	MustPattern(`^git\s+.*(--force|-f)`),
	MustPattern(`eval\s*\(`),
	MustPattern(`sudo\s+-`),
}

// BaseRules returns the fixed denylist: literal prefixes first, then patterns.
func BaseRules() []Rule {
	rules := make([]Rule, 0, len(baseLiteralPrefixes)+len(basePatterns))
	for _, p := range baseLiteralPrefixes {
		rules = append(rules, p)
	}
	for _, p := range basePatterns {
		rules = append(rules, p)
	}
	return rules
}

// UserPrefixes converts configured prefixes to rules. Entries are trimmed and
// blank entries are dropped, since an empty prefix would restrict everything.
func UserPrefixes(prefixes []string) []Rule {
	rules := make([]Rule, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		rules = append(rules, LiteralPrefix(p))
	}
	return rules
}

// IsRestricted reports whether any rule matches the trimmed command.
func IsRestricted(command string, rules []Rule) bool {
	_, ok := Explain(command, rules)
	return ok
}

// Explain returns the first rule that restricts the command. Literal prefixes
// are checked before patterns regardless of their order in rules.
func Explain(command string, rules []Rule) (Rule, bool) {
	trimmed := strings.TrimSpace(command)
	for _, r := range rules {
		if r.Kind() == RuleLiteralPrefix && r.Matches(trimmed) {
			return r, true
		}
	}
	for _, r := range rules {
		if r.Kind() == RulePattern && r.Matches(trimmed) {
			return r, true
		}
	}
	return nil, false
}

// Gate evaluates commands against the base rules plus user prefixes read
// from source on every call, so settings changes apply without a restart.
type Gate struct {
	base   []Rule
	source func() []string
}

func NewGate(source func() []string) *Gate {
	return &Gate{base: BaseRules(), source: source}
}

// Rules returns the effective denylist for this instant.
func (g *Gate) Rules() []Rule {
	rules := make([]Rule, 0, len(g.base)+4)
	rules = append(rules, g.base...)
	if g.source != nil {
		rules = append(rules, UserPrefixes(g.source())...)
	}
	return rules
}

func (g *Gate) IsRestricted(command string) bool {
	return IsRestricted(command, g.Rules())
}

func (g *Gate) Explain(command string) (Rule, bool) {
	return Explain(command, g.Rules())
}
