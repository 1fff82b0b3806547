// Package semver implements the three-component version ordering and the
// <op><version> constraint grammar used by the version gate.
package semver

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a major.minor.patch triple. Missing components parse as zero,
// so "1" and "1.0" compare equal to "1.0.0".
type Version struct {
	Major int
	Minor int
	Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Parse parses a version triple. Comparison is numeric, not lexical:
// "1.10.0" is newer than "1.9.0".
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, fmt.Errorf("empty version")
	}
	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		return Version{}, fmt.Errorf("invalid version %q: too many components", s)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version %q: component %q is not a number", s, p)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// Compare returns -1, 0 or 1 ordering a against b by major, then minor,
// then patch.
func Compare(a, b Version) int {
	if a.Major != b.Major {
		return sign(a.Major - b.Major)
	}
	if a.Minor != b.Minor {
		return sign(a.Minor - b.Minor)
	}
	return sign(a.Patch - b.Patch)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// Op is a constraint comparator.
type Op string

const (
	OpGE Op = ">="
	OpLE Op = "<="
	OpGT Op = ">"
	OpLT Op = "<"
	OpEQ Op = "=="
	OpNE Op = "!="
)

// Constraint is a parsed <op><version> expression, e.g. ">=1.0.0".
// A constraint with no operator defaults to exact equality.
type Constraint struct {
	Op     Op
	Target Version
}

func (c Constraint) String() string {
	return string(c.Op) + c.Target.String()
}

// ParseConstraint parses a constraint string. Two-character operators must
// be checked before their one-character prefixes.
func ParseConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)
	op := OpEQ
	for _, candidate := range []Op{OpGE, OpLE, OpEQ, OpNE, OpGT, OpLT} {
		if strings.HasPrefix(s, string(candidate)) {
			op = candidate
			s = s[len(candidate):]
			break
		}
	}
	target, err := Parse(s)
	if err != nil {
		return Constraint{}, fmt.Errorf("invalid constraint: %w", err)
	}
	return Constraint{Op: op, Target: target}, nil
}

// Check reports whether v satisfies the constraint.
func (c Constraint) Check(v Version) bool {
	cmp := Compare(v, c.Target)
	switch c.Op {
	case OpGE:
		return cmp >= 0
	case OpLE:
		return cmp <= 0
	case OpGT:
		return cmp > 0
	case OpLT:
		return cmp < 0
	case OpNE:
		return cmp != 0
	default:
		return cmp == 0
	}
}
