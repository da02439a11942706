// Package queryhash normalizes SQL query text into a literal-free
// template and hashes it, so repeated executions of the same query
// shape collapse onto one key regardless of parameter values.
package queryhash

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	// Quoted string literals, including escaped quotes inside.
	stringLiteral = regexp.MustCompile(`'(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*"`)

	// Numeric literals. Applied after string stripping so digits inside
	// identifiers survive only when attached to word characters.
	numericLiteral = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)

	// IN lists collapse to a single placeholder so IN (1,2) and
	// IN (1,2,3) hash identically.
	inList = regexp.MustCompile(`(?i)\bin\s*\(\s*\?(?:\s*,\s*\?)*\s*\)`)

	whitespace = regexp.MustCompile(`\s+`)
)

// Normalize strips literals from a query and canonicalizes its
// spacing and case, producing a stable template.
//
//	Normalize("SELECT * FROM users WHERE id = 42")
//	// "select * from users where id = ?"
func Normalize(query string) string {
	q := stringLiteral.ReplaceAllString(query, "?")
	q = numericLiteral.ReplaceAllString(q, "?")
	q = inList.ReplaceAllString(q, "in (?)")
	q = whitespace.ReplaceAllString(q, " ")
	return strings.ToLower(strings.TrimSpace(q))
}

// Hash returns the hex-encoded SHA-256 of the normalized query
// template. Two queries differing only in literal values produce the
// same hash.
func Hash(query string) string {
	sum := sha256.Sum256([]byte(Normalize(query)))
	return hex.EncodeToString(sum[:])
}
