package manifestio

import (
	"fmt"
	"regexp"
)

// ReplaceTOMLScalar rewrites the first `key = "value"` (or `key = 'value'`)
// assignment for key inside the named top-level TOML table, leaving every
// other byte untouched. It is narrow text surgery rather than a
// parse-and-re-marshal round trip because no library in this ecosystem's
// dependency set can re-serialize a go-toml/v2 document while preserving
// comments, key order, and quoting style.
func ReplaceTOMLScalar(data []byte, section, key, newValue string) ([]byte, error) {
	start, end, err := findTOMLSection(data, section)
	if err != nil {
		return nil, err
	}
	body := data[start:end]

	pattern := regexp.MustCompile(`(?m)^(\s*` + regexp.QuoteMeta(key) + `\s*=\s*)(?:"[^"]*"|'[^']*')`)
	loc := pattern.FindSubmatchIndex(body)
	if loc == nil {
		return nil, fmt.Errorf("manifestio: key %q not found in [%s]", key, section)
	}

	out := make([]byte, 0, len(data)+len(newValue))
	out = append(out, data[:start]...)
	out = append(out, body[:loc[2]]...)
	out = append(out, body[loc[2]:loc[3]]...)
	out = append(out, []byte(`"`+newValue+`"`)...)
	out = append(out, body[loc[1]:]...)
	out = append(out, data[end:]...)
	return out, nil
}

// findTOMLSection locates the byte range of a top-level [section] table,
// from just after its header line to just before the next top-level header
// (or end of file).
func findTOMLSection(data []byte, section string) (start, end int, err error) {
	header := regexp.MustCompile(`(?m)^\[` + regexp.QuoteMeta(section) + `\]\s*$`)
	loc := header.FindIndex(data)
	if loc == nil {
		return 0, 0, fmt.Errorf("manifestio: section [%s] not found", section)
	}
	start = loc[1]

	next := regexp.MustCompile(`(?m)^\[`)
	rest := data[start:]
	if nl := next.FindIndex(rest); nl != nil {
		end = start + nl[0]
	} else {
		end = len(data)
	}
	return start, end, nil
}

// ReplaceTOMLDependencyRequirement rewrites the requirement string attached
// to depName within the named dependency table, handling both the bare
// `dep = "req"` form and the inline-table `dep = { version = "req", ... }`
// form used by Cargo and PyPI/Poetry manifests.
func ReplaceTOMLDependencyRequirement(data []byte, section, depName, newRequirement string) ([]byte, error) {
	start, end, err := findTOMLSection(data, section)
	if err != nil {
		return nil, err
	}
	body := data[start:end]

	bare := regexp.MustCompile(`(?m)^(\s*` + regexp.QuoteMeta(depName) + `\s*=\s*)"[^"]*"`)
	if loc := bare.FindSubmatchIndex(body); loc != nil {
		return spliceTOML(data, start, end, body, loc, `"`+newRequirement+`"`), nil
	}

	inline := regexp.MustCompile(`(?m)^(\s*` + regexp.QuoteMeta(depName) + `\s*=\s*\{[^}]*?version\s*=\s*)"[^"]*"`)
	if loc := inline.FindSubmatchIndex(body); loc != nil {
		return spliceTOML(data, start, end, body, loc, `"`+newRequirement+`"`), nil
	}

	return nil, fmt.Errorf("manifestio: dependency %q not found in [%s]", depName, section)
}

func spliceTOML(data []byte, start, end int, body []byte, loc []int, replacement string) []byte {
	out := make([]byte, 0, len(data)+len(replacement))
	out = append(out, data[:start]...)
	out = append(out, body[:loc[2]]...)
	out = append(out, body[loc[2]:loc[3]]...)
	out = append(out, []byte(replacement)...)
	out = append(out, body[loc[1]:]...)
	out = append(out, data[end:]...)
	return out
}

// ReplaceJSONStringField rewrites the value of "key": "value" at the
// top level of a JSON document, byte-for-byte outside the replaced scalar.
func ReplaceJSONStringField(data []byte, key, newValue string) ([]byte, error) {
	pattern := regexp.MustCompile(`("` + regexp.QuoteMeta(key) + `"\s*:\s*)"[^"]*"`)
	loc := pattern.FindSubmatchIndex(data)
	if loc == nil {
		return nil, fmt.Errorf("manifestio: field %q not found", key)
	}
	out := make([]byte, 0, len(data)+len(newValue))
	out = append(out, data[:loc[2]]...)
	out = append(out, data[loc[2]:loc[3]]...)
	out = append(out, []byte(`"`+newValue+`"`)...)
	out = append(out, data[loc[1]:]...)
	return out, nil
}

// ReplaceJSONNestedStringField rewrites "depName": "value" inside the
// object found under the top-level "section" key (e.g. "dependencies").
func ReplaceJSONNestedStringField(data []byte, section, depName, newValue string) ([]byte, error) {
	start, end, err := findJSONObjectScope(data, section)
	if err != nil {
		return nil, err
	}
	scope := data[start:end]

	pattern := regexp.MustCompile(`("` + regexp.QuoteMeta(depName) + `"\s*:\s*)"[^"]*"`)
	loc := pattern.FindSubmatchIndex(scope)
	if loc == nil {
		return nil, fmt.Errorf("manifestio: field %q not found in %q", depName, section)
	}
	out := make([]byte, 0, len(data)+len(newValue))
	out = append(out, data[:start]...)
	out = append(out, scope[:loc[2]]...)
	out = append(out, scope[loc[2]:loc[3]]...)
	out = append(out, []byte(`"`+newValue+`"`)...)
	out = append(out, scope[loc[1]:]...)
	out = append(out, data[end:]...)
	return out, nil
}

// FindJSONNestedStringField returns the current value of "depName" inside
// the object found under the top-level "section" key.
func FindJSONNestedStringField(data []byte, section, depName string) (string, bool) {
	start, end, err := findJSONObjectScope(data, section)
	if err != nil {
		return "", false
	}
	scope := data[start:end]
	pattern := regexp.MustCompile(`"` + regexp.QuoteMeta(depName) + `"\s*:\s*"([^"]*)"`)
	m := pattern.FindSubmatch(scope)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}

// findJSONObjectScope returns the byte range of the object value for the
// given top-level key, using brace counting rather than a full parse so
// unrelated bytes are never touched.
func findJSONObjectScope(data []byte, key string) (start, end int, err error) {
	header := regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*:\s*\{`)
	loc := header.FindIndex(data)
	if loc == nil {
		return 0, 0, fmt.Errorf("manifestio: section %q not found", key)
	}
	depth := 1
	i := loc[1]
	for i < len(data) && depth > 0 {
		switch data[i] {
		case '{':
			depth++
		case '}':
			depth--
		}
		i++
	}
	if depth != 0 {
		return 0, 0, fmt.Errorf("manifestio: unbalanced braces under %q", key)
	}
	return loc[1], i - 1, nil
}
