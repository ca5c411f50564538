// Package resolve implements version-constraint solving and the dependency
// resolution engine shared by all format adapters. Two traversal policies
// exist: deep (full transitive expansion with cycle truncation) and shallow
// (direct dependencies only, for ecosystems whose transitive metadata cannot
// be navigated safely).
package resolve

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Constraint is a parsed version-range expression: a conjunction of
// comparison terms that a candidate version must satisfy. The zero term list
// means "any version".
type Constraint struct {
	raw   string
	terms []term
}

type term struct {
	op  string // "", ">=", ">", "<=", "<", "!=", "^", "~" ("" = exact)
	ver string // canonical "vX.Y.Z[-pre]"
}

// ParseConstraint parses a constraint expression. Supported syntax: "*" or
// empty (any), bare version or "==" (exact), ">=", ">", "<=", "<", "!=",
// caret "^" and tilde "~" ranges, and comma-separated conjunctions such as
// ">=1.0.0, <2.0.0".
func ParseConstraint(expr string) (*Constraint, error) {
	c := &Constraint{raw: strings.TrimSpace(expr)}
	if c.raw == "" || c.raw == "*" {
		return c, nil
	}
	for _, tok := range strings.Split(c.raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" || tok == "*" {
			continue
		}
		t, err := parseTerm(tok)
		if err != nil {
			return nil, err
		}
		c.terms = append(c.terms, t)
	}
	return c, nil
}

func parseTerm(tok string) (term, error) {
	ops := []string{">=", "<=", "==", "!=", ">", "<", "^", "~", "="}
	op := ""
	for _, candidate := range ops {
		if strings.HasPrefix(tok, candidate) {
			op = candidate
			tok = strings.TrimSpace(strings.TrimPrefix(tok, candidate))
			break
		}
	}
	switch op {
	case "==", "=":
		op = ""
	}
	v, ok := canon(tok)
	if !ok {
		return term{}, fmt.Errorf("invalid version %q in constraint", tok)
	}
	return term{op: op, ver: v}, nil
}

// Any reports whether the constraint matches every version (wildcard).
func (c *Constraint) Any() bool { return len(c.terms) == 0 }

// String returns the original expression, or "*" for the wildcard.
func (c *Constraint) String() string {
	if c.raw == "" {
		return "*"
	}
	return c.raw
}

// Matches reports whether version satisfies every term of the constraint.
// Versions that do not parse as semver never match a non-wildcard constraint.
func (c *Constraint) Matches(version string) bool {
	if c.Any() {
		return true
	}
	v, ok := canon(version)
	if !ok {
		return false
	}
	for _, t := range c.terms {
		if !t.matches(v) {
			return false
		}
	}
	return true
}

func (t term) matches(v string) bool {
	cmp := semver.Compare(v, t.ver)
	switch t.op {
	case "":
		return cmp == 0
	case ">=":
		return cmp >= 0
	case ">":
		return cmp > 0
	case "<=":
		return cmp <= 0
	case "<":
		return cmp < 0
	case "!=":
		return cmp != 0
	case "^":
		return cmp >= 0 && semver.Compare(v, caretUpper(t.ver)) < 0
	case "~":
		return cmp >= 0 && semver.Compare(v, tildeUpper(t.ver)) < 0
	}
	return false
}

// caretUpper computes the exclusive upper bound for a caret range:
// ^1.2.3 < 2.0.0, ^0.2.3 < 0.3.0, ^0.0.3 < 0.0.4.
func caretUpper(v string) string {
	major, minor, patch := mmp(v)
	switch {
	case major > 0:
		return fmt.Sprintf("v%d.0.0", major+1)
	case minor > 0:
		return fmt.Sprintf("v0.%d.0", minor+1)
	default:
		return fmt.Sprintf("v0.0.%d", patch+1)
	}
}

// tildeUpper computes the exclusive upper bound for a tilde range:
// ~1.2.3 < 1.3.0.
func tildeUpper(v string) string {
	major, minor, _ := mmp(v)
	return fmt.Sprintf("v%d.%d.0", major, minor+1)
}

func mmp(v string) (major, minor, patch int) {
	core := strings.TrimPrefix(v, "v")
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	parts := strings.SplitN(core, ".", 3)
	nums := [3]int{}
	for i := 0; i < len(parts) && i < 3; i++ {
		n, _ := strconv.Atoi(parts[i])
		nums[i] = n
	}
	return nums[0], nums[1], nums[2]
}

// canon normalizes a version string to canonical semver with a "v" prefix.
// Returns false for versions that cannot be interpreted as semver.
func canon(version string) (string, bool) {
	v := strings.TrimSpace(version)
	v = strings.TrimPrefix(v, "v")
	if v == "" {
		return "", false
	}
	c := semver.Canonical("v" + v)
	if !semver.IsValid(c) {
		return "", false
	}
	return c, true
}

// Compare orders two version strings. Non-semver versions sort below all
// valid ones; ties between them fall back to string comparison so ordering
// stays deterministic.
func Compare(a, b string) int {
	ca, aok := canon(a)
	cb, bok := canon(b)
	switch {
	case aok && bok:
		if c := semver.Compare(ca, cb); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	case aok:
		return 1
	case bok:
		return -1
	default:
		return strings.Compare(a, b)
	}
}

// Select picks the highest available version satisfying the constraint.
// The wildcard selects the highest valid version overall. Returns false when
// no version satisfies.
func Select(versions []string, c *Constraint) (string, bool) {
	best := ""
	found := false
	for _, v := range versions {
		if !c.Matches(v) {
			continue
		}
		if !found || Compare(v, best) > 0 {
			best, found = v, true
		}
	}
	return best, found
}
