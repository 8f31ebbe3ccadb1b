// Package changeset reads, resolves, and writes the markdown changeset
// files contributors author under .sampo/changesets. Frontmatter is a
// "---"-delimited YAML block, parsed with go.yaml.in/yaml/v3 to preserve
// per-line key order and support both quoted and bare identifiers
// without hand-rolled quote stripping. Both a flat ref:level mapping and
// a legacy packages:/release: shape are accepted, and an optional
// "(Tag)" suffix on a level names a custom changelog heading.
package changeset

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	yaml "go.yaml.in/yaml/v3"

	"github.com/bruits/sampo/internal/sampoerr"
	"github.com/bruits/sampo/internal/semver"
	"github.com/bruits/sampo/internal/workspace"
)

// Entry is one frontmatter line: a PackageRef mapped to a bump level and
// an optional custom tag.
type Entry struct {
	Ref   string // canonical id or plain name, as written
	Level semver.Level
	Tag   string // empty when no "(Tag)" suffix was present
}

// Changeset is a parsed changeset file: its frontmatter entries and the
// markdown body, preserved verbatim.
type Changeset struct {
	Path    string // absolute path on disk; empty for one not yet written
	Entries []Entry
	Body    string
}

var levelWithTag = regexp.MustCompile(`^(major|minor|patch)\s*(?:\(([^)]+)\))?$`)

const delim = "---"

// splitFrontmatter splits content on "---" delimiters into its YAML
// frontmatter block and markdown body.
func splitFrontmatter(content string) (string, string, error) {
	content = strings.TrimLeft(content, " \t\r\n")
	if !strings.HasPrefix(content, delim) {
		return "", "", fmt.Errorf("changeset: file does not start with %s frontmatter delimiter", delim)
	}
	rest := content[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	var frontmatter, body string
	if idx >= 0 {
		frontmatter = rest[:idx+1]
		body = rest[idx+1+len(delim):]
	} else if strings.HasPrefix(strings.TrimLeft(rest, "\r\n"), delim) {
		// closing delimiter immediately follows the opening one with only
		// whitespace between (an empty frontmatter block)
		trimmed := strings.TrimLeft(rest, "\r\n")
		body = trimmed[len(delim):]
	} else {
		return "", "", fmt.Errorf("changeset: missing closing %s frontmatter delimiter", delim)
	}
	return frontmatter, body, nil
}

// Parse parses the markdown content of a single changeset file.
func Parse(content string) (*Changeset, error) {
	frontmatter, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, sampoerr.Wrap(sampoerr.KindInvalidChangeset, "parsing changeset", err)
	}

	entries, err := parseFrontmatter(frontmatter)
	if err != nil {
		return nil, err
	}

	return &Changeset{
		Entries: entries,
		Body:    normalizeBody(body),
	}, nil
}

func normalizeBody(body string) string {
	return strings.TrimSpace(body) + "\n"
}

func parseFrontmatter(raw string) ([]Entry, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, sampoerr.New(sampoerr.KindInvalidChangeset, "changeset frontmatter has no package entries")
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &root); err != nil {
		return nil, sampoerr.Wrap(sampoerr.KindInvalidChangeset, "parsing changeset frontmatter", err)
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, sampoerr.New(sampoerr.KindInvalidChangeset, "changeset frontmatter must be a mapping")
	}
	mapping := root.Content[0]

	keys := make([]string, 0, len(mapping.Content)/2)
	for i := 0; i < len(mapping.Content); i += 2 {
		keys = append(keys, mapping.Content[i].Value)
	}
	if isLegacyShape(keys) {
		return parseLegacyFrontmatter(mapping)
	}
	return parseFlatFrontmatter(mapping)
}

func isLegacyShape(keys []string) bool {
	if len(keys) != 2 {
		return false
	}
	has := map[string]bool{}
	for _, k := range keys {
		has[k] = true
	}
	return has["packages"] && has["release"]
}

func parseFlatFrontmatter(mapping *yaml.Node) ([]Entry, error) {
	entries := make([]Entry, 0, len(mapping.Content)/2)
	for i := 0; i < len(mapping.Content); i += 2 {
		key := mapping.Content[i]
		val := mapping.Content[i+1]
		level, tag, err := parseLevelWithTag(val.Value)
		if err != nil {
			return nil, sampoerr.New(sampoerr.KindInvalidChangeset, fmt.Sprintf("package %q: %s", key.Value, err))
		}
		entries = append(entries, Entry{Ref: key.Value, Level: level, Tag: tag})
	}
	if len(entries) == 0 {
		return nil, sampoerr.New(sampoerr.KindInvalidChangeset, "changeset frontmatter has no package entries")
	}
	return entries, nil
}

func parseLegacyFrontmatter(mapping *yaml.Node) ([]Entry, error) {
	var packagesNode, releaseNode *yaml.Node
	for i := 0; i < len(mapping.Content); i += 2 {
		key := mapping.Content[i]
		switch key.Value {
		case "packages":
			packagesNode = mapping.Content[i+1]
		case "release":
			releaseNode = mapping.Content[i+1]
		}
	}
	if packagesNode == nil || packagesNode.Kind != yaml.SequenceNode {
		return nil, sampoerr.New(sampoerr.KindInvalidChangeset, "legacy changeset frontmatter requires a 'packages' list")
	}
	if releaseNode == nil {
		return nil, sampoerr.New(sampoerr.KindInvalidChangeset, "legacy changeset frontmatter requires a 'release' level")
	}
	level, err := semver.ParseLevel(releaseNode.Value)
	if err != nil {
		return nil, sampoerr.New(sampoerr.KindInvalidChangeset, "legacy changeset 'release' value: "+err.Error())
	}
	if len(packagesNode.Content) == 0 {
		return nil, sampoerr.New(sampoerr.KindInvalidChangeset, "legacy changeset 'packages' list is empty")
	}
	entries := make([]Entry, 0, len(packagesNode.Content))
	for _, item := range packagesNode.Content {
		entries = append(entries, Entry{Ref: item.Value, Level: level})
	}
	return entries, nil
}

func parseLevelWithTag(raw string) (semver.Level, string, error) {
	m := levelWithTag.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return semver.None, "", fmt.Errorf("unrecognized bump value %q", raw)
	}
	level, err := semver.ParseLevel(m[1])
	if err != nil {
		return semver.None, "", err
	}
	return level, strings.TrimSpace(m[2]), nil
}

// Render writes entries and body as the flat-form-only markdown changeset
// format.
func Render(entries []Entry, body string) string {
	var b strings.Builder
	b.WriteString(delim)
	b.WriteByte('\n')
	for _, e := range entries {
		b.WriteString(renderKey(e.Ref))
		b.WriteString(": ")
		b.WriteString(e.Level.String())
		if e.Tag != "" {
			b.WriteString(" (")
			b.WriteString(e.Tag)
			b.WriteString(")")
		}
		b.WriteByte('\n')
	}
	b.WriteString(delim)
	b.WriteString("\n\n")
	b.WriteString(normalizeBody(body))
	return b.String()
}

var bareIdentifier = regexp.MustCompile(`^[A-Za-z0-9_/.-]+$`)

func renderKey(ref string) string {
	if bareIdentifier.MatchString(ref) {
		return ref
	}
	return `"` + strings.ReplaceAll(ref, `"`, `\"`) + `"`
}

// ActiveEntry is a frontmatter entry whose PackageRef resolved to a known,
// active workspace package.
type ActiveEntry struct {
	ID    workspace.PackageId
	Level semver.Level
	Tag   string
}

// Resolution is the result of resolving every entry in a Changeset
// against a Workspace.
type Resolution struct {
	Active    []ActiveEntry
	AllActive bool // true when every entry resolved to an active package
}

// Resolve maps every entry's PackageRef to a PackageId. A plain name that
// matches more than one package fails hard with an ambiguous-package
// error regardless of how many other entries are active. A ref that
// matches a package filtered out by ignore rules is dropped from Active
// rather than failing the whole resolution; a ref that matches no
// workspace package at all fails with an unknown-package error. AllActive
// tracks whether every entry was in fact active,
// which the caller uses to decide whether the source file may be
// consumed.
func Resolve(cs *Changeset, w *workspace.Workspace) (Resolution, error) {
	var res Resolution
	res.AllActive = true
	for _, e := range cs.Entries {
		result := w.Resolve(e.Ref)
		switch result.Status {
		case workspace.ResolvedMatch:
			res.Active = append(res.Active, ActiveEntry{ID: result.ID, Level: e.Level, Tag: e.Tag})
		case workspace.ResolvedAmbiguous:
			return Resolution{}, sampoerr.New(sampoerr.KindAmbiguousPackage,
				fmt.Sprintf("%q is ambiguous: %s", e.Ref, workspace.FormatAmbiguity(result.Matches)))
		case workspace.ResolvedIgnored:
			// Matched a real package that ignore filtering dropped from the
			// active set; not an authoring mistake, just inactive.
			res.AllActive = false
		case workspace.ResolvedNotFound:
			return Resolution{}, sampoerr.New(sampoerr.KindUnknownPackage,
				fmt.Sprintf("unknown package %q", e.Ref)).WithPackage(e.Ref)
		}
	}
	return res, nil
}

// NewFileName returns an opaque, unique changeset file name.
func NewFileName() string {
	return uuid.New().String() + ".md"
}
