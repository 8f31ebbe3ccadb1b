package adapters

import (
	"regexp"
	"strings"

	mastermindsemver "github.com/Masterminds/semver"
)

// simpleRequirement matches a single-clause requirement: an optional
// operator prefix followed by a dotted numeric version. Multi-clause
// requirements (unions, comma-separated ranges) do not match; for them
// RewriteRequirement reports ok=false, and classification falls back to
// Unknown only when Masterminds cannot parse them either.
var simpleRequirement = regexp.MustCompile(`^(\^|~|==|>=|<=|>|<|=)?\s*(\d[\d.]*(?:-[0-9A-Za-z.-]+)?)$`)

// ParsedRequirement is a single-clause requirement split into its operator
// (empty string means "exact pin", the bare-version convention for a
// dependency pinned to one exact release) and numeric version text.
type ParsedRequirement struct {
	Operator string
	Version  string
}

// ParseSimpleRequirement parses a single-clause requirement string. ok is
// false for multi-clause ranges, path-only entries, or anything else that
// does not match the single-operator-plus-version shape.
func ParseSimpleRequirement(req string) (ParsedRequirement, bool) {
	req = strings.TrimSpace(req)
	m := simpleRequirement.FindStringSubmatch(req)
	if m == nil {
		return ParsedRequirement{}, false
	}
	return ParsedRequirement{Operator: m[1], Version: m[2]}, true
}

// IsExactPin reports whether a parsed requirement pins an exact version —
// either no operator at all (a bare version is an exact pin) or an
// explicit "=" or "==" operator.
func (p ParsedRequirement) IsExactPin() bool {
	return p.Operator == "" || p.Operator == "=" || p.Operator == "=="
}

// classifyWithMasterminds validates a requirement string against a
// candidate version using a general-purpose constraint parser. This
// handles the full dialect of caret/tilde/comparison/union requirements;
// only strings Masterminds itself cannot parse become Unknown.
func classifyWithMasterminds(requirement, candidate string) ConstraintOutcome {
	requirement = strings.TrimSpace(requirement)
	if requirement == "" || requirement == "*" {
		return Satisfies
	}
	// Masterminds/semver's comparator set uses "=", not PEP 440's "==".
	requirement = strings.ReplaceAll(requirement, "==", "=")
	constraints, err := mastermindsemver.NewConstraint(requirement)
	if err != nil {
		return Unknown
	}
	version, err := mastermindsemver.NewVersion(candidate)
	if err != nil {
		return Unknown
	}
	if constraints.Check(version) {
		return Satisfies
	}
	return Violates
}

// RewriteRequirement computes the new requirement text for a single-clause
// requirement being bumped to newVersion, preserving the operator symbol.
// ok is false when the requirement is not single-clause (caller should
// leave it untouched).
func RewriteRequirement(requirement, newVersion string) (string, bool) {
	parsed, ok := ParseSimpleRequirement(requirement)
	if !ok {
		return "", false
	}
	return parsed.Operator + newVersion, true
}

// ValidateConstraint is the shared ValidateConstraint implementation used by
// every concrete adapter: classification itself does not vary by ecosystem,
// only the manifest syntax around it does.
func ValidateConstraint(requirement, candidate string) ConstraintOutcome {
	return classifyWithMasterminds(requirement, candidate)
}

// IsPathOrWildcard reports whether a requirement string is a bare path
// reference or wildcard, which must be left untouched by any edit.
func IsPathOrWildcard(requirement string) bool {
	req := strings.TrimSpace(requirement)
	return req == "" || req == "*" || strings.HasPrefix(req, ".") || strings.HasPrefix(req, "/") || strings.HasPrefix(req, "file:")
}
