// Package admission provides the tiered rate limit manager that makes
// the allow/deny decision on every inbound request.
//
// # Overview
//
// Endpoints are grouped into named tiers ("expensive", "moderate",
// "cheap"), each governed by one rule combining one or more fixed
// windows that must all pass for admission:
//
//	rules := []admission.Rule{{
//	    Tier:     "expensive",
//	    Scope:    admission.ScopePerIdentity,
//	    Windows:  []admission.Window{{Max: 10, Duration: time.Minute}, {Max: 50, Duration: time.Hour}},
//	    Patterns: []string{"ai.*", "doc.generate"},
//	}}
//
//	manager, err := admission.NewManager(admission.Config{
//	    Rules:       rules,
//	    DefaultTier: "cheap",
//	})
//	decision := manager.Check("user-42", "ai.analyze")
//
// # Hot Path
//
// Check performs no I/O: it resolves the endpoint against an immutable
// pattern table and issues one locked increment per rule window on the
// in-process counter store. Violation records are handed to a
// non-blocking analytics queue; nothing on the decision path blocks.
//
// # Failure Policy
//
// The manager fails closed. A fault inside the counter store (error or
// panic) resolves to a denied decision and a fault log entry, never an
// error to the caller. Protecting the backend from cost overruns takes
// precedence over availability.
package admission
