// version.go: Semantic version parsing and constraint evaluation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"strconv"
	"strings"
)

// Version represents a semantic version with comparison capabilities.
//
// This structure provides version parsing and comparison functionality for
// extension compatibility checking. It supports semantic versioning with
// major, minor, and patch components plus optional prerelease and build
// metadata. Ordering is strictly numeric over major/minor/patch; a release
// orders after any prerelease of the same triple, but prerelease
// identifiers are not otherwise compared component-wise.
//
// Example usage:
//
//	v1, _ := ParseVersion("1.2.3")
//	v2, _ := ParseVersion("1.2.4")
//	if v1.Compare(v2) < 0 {
//	    // v1 is older
//	}
type Version struct {
	Major      uint64 `json:"major"`
	Minor      uint64 `json:"minor"`
	Patch      uint64 `json:"patch"`
	Prerelease string `json:"prerelease,omitempty"`
	Build      string `json:"build,omitempty"`
	Original   string `json:"original"`
}

// ParseVersion parses a semantic version string.
//
// Accepted forms are "x", "x.y" and "x.y.z", optionally prefixed with "v"
// and optionally carrying "-prerelease" and "+build" suffixes on the last
// component. Missing minor/patch components default to zero, so descriptor
// authors can write "1.0" for "1.0.0".
func ParseVersion(versionStr string) (*Version, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(versionStr), "v"))
	if trimmed == "" {
		return nil, NewMalformedVersionError(versionStr)
	}

	parts := strings.SplitN(trimmed, ".", 3)

	v := &Version{Original: versionStr}

	// Metadata can only trail the last component present.
	last := len(parts) - 1
	core, prerelease, build := splitVersionMetadata(parts[last])
	parts[last] = core
	v.Prerelease = prerelease
	v.Build = build

	var err error
	if v.Major, err = parseVersionComponent(versionStr, parts[0], "major"); err != nil {
		return nil, err
	}
	if len(parts) > 1 {
		if v.Minor, err = parseVersionComponent(versionStr, parts[1], "minor"); err != nil {
			return nil, err
		}
	}
	if len(parts) > 2 {
		if v.Patch, err = parseVersionComponent(versionStr, parts[2], "patch"); err != nil {
			return nil, err
		}
	}

	return v, nil
}

// splitVersionMetadata splits "z-pre+build" into its core, prerelease and
// build parts. Either suffix may be absent.
func splitVersionMetadata(component string) (core, prerelease, build string) {
	core = component
	if idx := strings.Index(core, "+"); idx >= 0 {
		build = core[idx+1:]
		core = core[:idx]
	}
	if idx := strings.Index(core, "-"); idx >= 0 {
		prerelease = core[idx+1:]
		core = core[:idx]
	}
	return core, prerelease, build
}

// parseVersionComponent parses a single numeric version component.
func parseVersionComponent(original, component, componentType string) (uint64, error) {
	value, err := strconv.ParseUint(component, 10, 64)
	if err != nil {
		return 0, NewMalformedVersionError(original).
			WithContext("component_type", componentType).
			WithContext("component_value", component)
	}
	return value, nil
}

// Compare compares two versions. Returns -1, 0, or 1.
func (v *Version) Compare(other *Version) int {
	if result := compareComponent(v.Major, other.Major); result != 0 {
		return result
	}
	if result := compareComponent(v.Minor, other.Minor); result != 0 {
		return result
	}
	if result := compareComponent(v.Patch, other.Patch); result != 0 {
		return result
	}
	return v.comparePrerelease(other)
}

func compareComponent(a, b uint64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// comparePrerelease orders a release after any prerelease of the same triple.
func (v *Version) comparePrerelease(other *Version) int {
	if v.Prerelease == "" && other.Prerelease != "" {
		return 1
	}
	if v.Prerelease != "" && other.Prerelease == "" {
		return -1
	}
	return strings.Compare(v.Prerelease, other.Prerelease)
}

// String returns the canonical x.y.z form of the version.
func (v *Version) String() string {
	s := strconv.FormatUint(v.Major, 10) + "." +
		strconv.FormatUint(v.Minor, 10) + "." +
		strconv.FormatUint(v.Patch, 10)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	return s
}

// constraintOp is a single comparator inside a constraint expression.
type constraintOp struct {
	operator string
	version  *Version
}

// Constraint is a parsed version constraint expression.
//
// Supported forms:
//   - "*" or "" - any version
//   - "1.2.3" - exact match
//   - "^1.2.3" - same major, version >= target
//   - "~1.2.3" - same major and minor, patch >= target
//   - ">=1.0.0", ">1.0", "<=2.0.0", "<2", "=1.0.0", "!=1.3.0"
//   - ">=1.0.0,<2.0.0" - comma-separated conjunction of any of the above
//
// A Constraint obtained through ParseConstraint on malformed input is still
// usable: it matches any version but carries the Flagged marker so callers
// can decide between warning and rejecting. The orchestrator warns and
// continues.
type Constraint struct {
	Raw     string
	Flagged bool

	ops []constraintOp
}

// AnyVersion returns the unconstrained predicate.
func AnyVersion() *Constraint {
	return &Constraint{Raw: "*"}
}

// ParseConstraint parses a constraint expression.
//
// On malformed input it returns both an unconstrained-but-flagged
// Constraint and a malformed-constraint error, so the caller can keep the
// permissive predicate while surfacing the problem.
func ParseConstraint(expr string) (*Constraint, error) {
	raw := strings.TrimSpace(expr)
	if raw == "" || raw == "*" {
		return &Constraint{Raw: raw}, nil
	}

	c := &Constraint{Raw: raw}
	for _, clause := range strings.Split(raw, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			return &Constraint{Raw: raw, Flagged: true}, NewMalformedConstraintError(expr, nil)
		}

		op, err := parseConstraintClause(clause)
		if err != nil {
			return &Constraint{Raw: raw, Flagged: true}, NewMalformedConstraintError(expr, err)
		}
		c.ops = append(c.ops, op)
	}

	return c, nil
}

// parseConstraintClause parses one comparator clause of a constraint.
func parseConstraintClause(clause string) (constraintOp, error) {
	operators := []string{">=", "<=", "!=", "^", "~", ">", "<", "="}

	operator := ""
	rest := clause
	for _, candidate := range operators {
		if strings.HasPrefix(clause, candidate) {
			operator = candidate
			rest = strings.TrimSpace(strings.TrimPrefix(clause, candidate))
			break
		}
	}
	if operator == "" {
		operator = "=" // bare version means exact match
	}

	version, err := ParseVersion(rest)
	if err != nil {
		return constraintOp{}, err
	}

	return constraintOp{operator: operator, version: version}, nil
}

// Satisfies reports whether the given version satisfies the constraint.
// Flagged (malformed) constraints match any version.
func (c *Constraint) Satisfies(v *Version) bool {
	if v == nil {
		return false
	}

	for _, op := range c.ops {
		if !satisfiesOp(v, op) {
			return false
		}
	}
	return true
}

func satisfiesOp(v *Version, op constraintOp) bool {
	target := op.version
	switch op.operator {
	case "=":
		return v.Compare(target) == 0
	case "!=":
		return v.Compare(target) != 0
	case ">":
		return v.Compare(target) > 0
	case ">=":
		return v.Compare(target) >= 0
	case "<":
		return v.Compare(target) < 0
	case "<=":
		return v.Compare(target) <= 0
	case "^":
		return v.Major == target.Major && v.Compare(target) >= 0
	case "~":
		return v.Major == target.Major && v.Minor == target.Minor && v.Patch >= target.Patch
	default:
		return false
	}
}

// String returns the original constraint expression.
func (c *Constraint) String() string {
	if c.Raw == "" {
		return "*"
	}
	return c.Raw
}
