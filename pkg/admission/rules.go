package admission

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Scope determines what a rule's counters are keyed on.
type Scope string

const (
	// ScopePerIdentity keys counters on the client identity, so each
	// user or IP gets its own allowance.
	ScopePerIdentity Scope = "per_identity"

	// ScopeGlobal shares one counter across all clients of the tier,
	// capping total throughput on the protected endpoints.
	ScopeGlobal Scope = "global"
)

// globalIdentity is the counter identity used for ScopeGlobal rules.
const globalIdentity = "_global"

// Window is one (max count, duration) pair of a rule. All windows of
// a rule must pass for admission.
type Window struct {
	// Max is the maximum number of requests admitted per window.
	Max int `yaml:"max" json:"max"`

	// Duration is the fixed window length.
	Duration time.Duration `yaml:"duration" json:"duration"`
}

// Rule is the static rate limit configuration for one tier.
// Immutable after load; many endpoints map onto one rule.
type Rule struct {
	// Tier is the rule's name.
	Tier string `yaml:"tier" json:"tier"`

	// Scope selects per-identity or global counting.
	// Default: per_identity
	Scope Scope `yaml:"scope" json:"scope"`

	// Windows are the (max, duration) pairs, all of which must pass.
	// Must be sorted by ascending duration (validated at load).
	Windows []Window `yaml:"windows" json:"windows"`

	// Patterns are the endpoint identifiers the rule applies to:
	// either exact route names ("ai.analyze") or prefixes with a
	// trailing "*" ("ai.*").
	Patterns []string `yaml:"patterns" json:"patterns"`
}

// patternEntry is one resolved pattern -> rule binding.
type patternEntry struct {
	pattern string
	prefix  bool // trailing "*" stripped
	rule    *Rule
}

// RuleSet is the immutable endpoint -> rule resolution table built
// once at load (or reload) time.
type RuleSet struct {
	exact    map[string]*Rule
	prefixes []patternEntry // sorted by descending pattern length
	byTier   map[string]*Rule
	fallback *Rule
}

// NewRuleSet validates rules and builds the resolution table.
//
// Validation is deliberately strict: a misconfigured rule set must
// fail at startup rather than silently admit unlimited traffic.
// Returned errors cover: no rules, empty tier names or duplicate
// tiers, rules without windows or patterns, non-positive window
// limits or durations, windows not in ascending duration order, and a
// missing or unknown default tier.
func NewRuleSet(rules []Rule, defaultTier string) (*RuleSet, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("admission: no rate limit rules configured")
	}

	rs := &RuleSet{
		exact:  make(map[string]*Rule),
		byTier: make(map[string]*Rule),
	}

	for i := range rules {
		rule := &rules[i]

		if rule.Tier == "" {
			return nil, fmt.Errorf("admission: rule %d has no tier name", i)
		}
		if _, dup := rs.byTier[rule.Tier]; dup {
			return nil, fmt.Errorf("admission: duplicate tier %q", rule.Tier)
		}
		if rule.Scope == "" {
			rule.Scope = ScopePerIdentity
		}
		if rule.Scope != ScopePerIdentity && rule.Scope != ScopeGlobal {
			return nil, fmt.Errorf("admission: tier %q has invalid scope %q", rule.Tier, rule.Scope)
		}
		if len(rule.Windows) == 0 {
			return nil, fmt.Errorf("admission: tier %q has no windows", rule.Tier)
		}
		for j, w := range rule.Windows {
			if w.Max <= 0 {
				return nil, fmt.Errorf("admission: tier %q window %d has non-positive max %d", rule.Tier, j, w.Max)
			}
			if w.Duration <= 0 {
				return nil, fmt.Errorf("admission: tier %q window %d has non-positive duration %v", rule.Tier, j, w.Duration)
			}
			if j > 0 && w.Duration <= rule.Windows[j-1].Duration {
				return nil, fmt.Errorf("admission: tier %q windows must be in ascending duration order", rule.Tier)
			}
		}
		if len(rule.Patterns) == 0 {
			return nil, fmt.Errorf("admission: tier %q has no endpoint patterns", rule.Tier)
		}

		rs.byTier[rule.Tier] = rule

		for _, p := range rule.Patterns {
			if p == "" {
				return nil, fmt.Errorf("admission: tier %q has an empty pattern", rule.Tier)
			}
			if strings.HasSuffix(p, "*") {
				rs.prefixes = append(rs.prefixes, patternEntry{
					pattern: p,
					prefix:  true,
					rule:    rule,
				})
				continue
			}
			if _, dup := rs.exact[p]; dup {
				return nil, fmt.Errorf("admission: pattern %q bound to more than one tier", p)
			}
			rs.exact[p] = rule
		}
	}

	// Longest prefix wins: sort descending by pattern length so the
	// first match during resolution is the most specific one.
	sort.SliceStable(rs.prefixes, func(i, j int) bool {
		return len(rs.prefixes[i].pattern) > len(rs.prefixes[j].pattern)
	})

	if defaultTier == "" {
		return nil, fmt.Errorf("admission: no default tier configured; endpoints without a matching rule would be unlimited")
	}
	fallback, ok := rs.byTier[defaultTier]
	if !ok {
		return nil, fmt.Errorf("admission: default tier %q does not match any rule", defaultTier)
	}
	rs.fallback = fallback

	return rs, nil
}

// Resolve maps an endpoint identifier to its rule. An exact pattern
// beats any prefix; among prefixes the longest wins; the default tier
// catches everything else. Resolve never returns nil.
func (rs *RuleSet) Resolve(endpoint string) *Rule {
	if rule, ok := rs.exact[endpoint]; ok {
		return rule
	}
	for _, e := range rs.prefixes {
		if strings.HasPrefix(endpoint, e.pattern[:len(e.pattern)-1]) {
			return e.rule
		}
	}
	return rs.fallback
}

// Tier returns the rule for a tier name, or nil if unknown.
func (rs *RuleSet) Tier(name string) *Rule {
	return rs.byTier[name]
}

// Rules returns copies of the configured rules, ordered by tier name.
func (rs *RuleSet) Rules() []Rule {
	rules := make([]Rule, 0, len(rs.byTier))
	for _, name := range rs.Tiers() {
		rules = append(rules, *rs.byTier[name])
	}
	return rules
}

// DefaultTier returns the fallback tier name.
func (rs *RuleSet) DefaultTier() string {
	return rs.fallback.Tier
}

// Tiers returns the configured tier names, sorted.
func (rs *RuleSet) Tiers() []string {
	names := make([]string, 0, len(rs.byTier))
	for name := range rs.byTier {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
