package admission

import (
	"testing"
	"time"
)

func validRules() []Rule {
	return []Rule{
		{
			Tier:     "expensive",
			Windows:  []Window{{Max: 10, Duration: time.Minute}, {Max: 50, Duration: time.Hour}},
			Patterns: []string{"ai.*", "doc.generate"},
		},
		{
			Tier:     "moderate",
			Windows:  []Window{{Max: 60, Duration: time.Minute}},
			Patterns: []string{"scrape.*"},
		},
		{
			Tier:     "cheap",
			Windows:  []Window{{Max: 600, Duration: time.Minute}},
			Patterns: []string{"health"},
		},
	}
}

// ============================================================================
// Resolution Tests
// ============================================================================

func TestRuleSet_Resolve(t *testing.T) {
	rs, err := NewRuleSet(validRules(), "cheap")
	if err != nil {
		t.Fatalf("NewRuleSet failed: %v", err)
	}

	tests := []struct {
		endpoint string
		wantTier string
	}{
		{"doc.generate", "expensive"}, // exact match
		{"ai.analyze", "expensive"},   // prefix match
		{"ai.summarize", "expensive"},
		{"scrape.run", "moderate"},
		{"health", "cheap"},
		{"unknown.endpoint", "cheap"}, // default tier
	}

	for _, tt := range tests {
		if got := rs.Resolve(tt.endpoint).Tier; got != tt.wantTier {
			t.Errorf("Resolve(%q) = %q, want %q", tt.endpoint, got, tt.wantTier)
		}
	}
}

func TestRuleSet_LongestPrefixWins(t *testing.T) {
	rules := []Rule{
		{Tier: "broad", Windows: []Window{{Max: 100, Duration: time.Minute}}, Patterns: []string{"api.*"}},
		{Tier: "narrow", Windows: []Window{{Max: 5, Duration: time.Minute}}, Patterns: []string{"api.ai.*"}},
	}
	rs, err := NewRuleSet(rules, "broad")
	if err != nil {
		t.Fatalf("NewRuleSet failed: %v", err)
	}

	if got := rs.Resolve("api.ai.analyze").Tier; got != "narrow" {
		t.Errorf("Expected longest prefix to win, got tier %q", got)
	}
	if got := rs.Resolve("api.users.list").Tier; got != "broad" {
		t.Errorf("Expected broad prefix match, got tier %q", got)
	}
}

func TestRuleSet_ExactBeatsPrefix(t *testing.T) {
	rules := []Rule{
		{Tier: "prefix", Windows: []Window{{Max: 100, Duration: time.Minute}}, Patterns: []string{"ai.*"}},
		{Tier: "exact", Windows: []Window{{Max: 5, Duration: time.Minute}}, Patterns: []string{"ai.analyze"}},
	}
	rs, err := NewRuleSet(rules, "prefix")
	if err != nil {
		t.Fatalf("NewRuleSet failed: %v", err)
	}

	if got := rs.Resolve("ai.analyze").Tier; got != "exact" {
		t.Errorf("Expected exact pattern to win, got tier %q", got)
	}
}

// ============================================================================
// Validation Tests
// ============================================================================

func TestNewRuleSet_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		rules       []Rule
		defaultTier string
	}{
		{
			name:        "no rules",
			rules:       nil,
			defaultTier: "cheap",
		},
		{
			name:        "missing default tier",
			rules:       validRules(),
			defaultTier: "",
		},
		{
			name:        "unknown default tier",
			rules:       validRules(),
			defaultTier: "nonexistent",
		},
		{
			name: "no windows",
			rules: []Rule{
				{Tier: "t", Patterns: []string{"a"}},
			},
			defaultTier: "t",
		},
		{
			name: "zero max",
			rules: []Rule{
				{Tier: "t", Windows: []Window{{Max: 0, Duration: time.Minute}}, Patterns: []string{"a"}},
			},
			defaultTier: "t",
		},
		{
			name: "windows out of order",
			rules: []Rule{
				{Tier: "t", Windows: []Window{{Max: 50, Duration: time.Hour}, {Max: 10, Duration: time.Minute}}, Patterns: []string{"a"}},
			},
			defaultTier: "t",
		},
		{
			name: "duplicate tier",
			rules: []Rule{
				{Tier: "t", Windows: []Window{{Max: 1, Duration: time.Minute}}, Patterns: []string{"a"}},
				{Tier: "t", Windows: []Window{{Max: 1, Duration: time.Minute}}, Patterns: []string{"b"}},
			},
			defaultTier: "t",
		},
		{
			name: "no patterns",
			rules: []Rule{
				{Tier: "t", Windows: []Window{{Max: 1, Duration: time.Minute}}},
			},
			defaultTier: "t",
		},
		{
			name: "invalid scope",
			rules: []Rule{
				{Tier: "t", Scope: "per_galaxy", Windows: []Window{{Max: 1, Duration: time.Minute}}, Patterns: []string{"a"}},
			},
			defaultTier: "t",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRuleSet(tt.rules, tt.defaultTier); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestNewRuleSet_DefaultScope(t *testing.T) {
	rs, err := NewRuleSet(validRules(), "cheap")
	if err != nil {
		t.Fatalf("NewRuleSet failed: %v", err)
	}
	if got := rs.Tier("expensive").Scope; got != ScopePerIdentity {
		t.Errorf("Expected default scope per_identity, got %q", got)
	}
}
