package adapters

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/bruits/sampo/internal/manifestio"
)

// hexAdapter discovers and edits Elixir Mix projects. mix.exs is Elixir
// source, not a data format, so there is no parser in this module's
// dependency set that understands it; discovery and editing are regex
// text surgery over the handful of shapes mix.exs actually takes, mirroring
// the byte-preserving discipline of the other adapters (see
// _examples/original_source's adapters/hex.rs for the fields this mirrors:
// app, version, deps, and the presence of a package() function).
type hexAdapter struct{}

// NewHexAdapter returns the Hex/Mix ecosystem adapter.
func NewHexAdapter() Adapter { return hexAdapter{} }

func (hexAdapter) Ecosystem() string { return "hex" }

var (
	mixApp        = regexp.MustCompile(`app:\s*:([A-Za-z0-9_]+)`)
	mixVersion    = regexp.MustCompile(`version:\s*"([^"]*)"`)
	mixPackageDef = regexp.MustCompile(`def\s+package\s+do`)
	mixDepEntry   = regexp.MustCompile(`\{\s*:([A-Za-z0-9_]+)\s*,\s*"([^"]*)"`)
)

func (hexAdapter) Discover(root string) ([]string, error) {
	rootManifest := filepath.Join(root, "mix.exs")
	if _, err := os.Stat(rootManifest); err != nil {
		return nil, fmt.Errorf("adapters: reading %s: %w", rootManifest, err)
	}

	dirs := map[string]bool{root: true}

	// Umbrella projects keep member apps under apps/*/mix.exs.
	matches, _ := filepath.Glob(filepath.Join(root, "apps", "*", "mix.exs"))
	for _, m := range matches {
		dirs[filepath.Dir(m)] = true
	}
	if len(matches) > 0 {
		delete(dirs, root)
	}

	out := make([]string, 0, len(dirs))
	for dir := range dirs {
		out = append(out, filepath.Join(dir, "mix.exs"))
	}
	sort.Strings(out)
	return out, nil
}

func (hexAdapter) Parse(manifestPath string) (RawPackage, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return RawPackage{}, fmt.Errorf("adapters: reading %s: %w", manifestPath, err)
	}

	appMatch := mixApp.FindSubmatch(data)
	if appMatch == nil {
		return RawPackage{}, fmt.Errorf("adapters: %s is missing app: :name", manifestPath)
	}
	name := string(appMatch[1])

	version := ""
	if m := mixVersion.FindSubmatch(data); m != nil {
		version = string(m[1])
	}

	var deps []RawDependency
	for _, m := range mixDepEntry.FindAllSubmatch(data, -1) {
		deps = append(deps, RawDependency{
			Name:        string(m[1]),
			Kind:        Runtime,
			Requirement: string(m[2]),
			PathOnly:    IsPathOrWildcard(string(m[2])),
		})
	}

	return RawPackage{
		Name:         name,
		ManifestPath: manifestPath,
		Dir:          filepath.Dir(manifestPath),
		Version:      version,
		Publishable:  mixPackageDef.Match(data),
		Dependencies: deps,
	}, nil
}

func (hexAdapter) WriteVersion(manifestPath, newVersion string) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("adapters: reading %s: %w", manifestPath, err)
	}
	loc := mixVersion.FindSubmatchIndex(data)
	if loc == nil {
		return fmt.Errorf("adapters: version: field not found in %s", manifestPath)
	}
	out := append([]byte{}, data[:loc[2]]...)
	out = append(out, []byte(newVersion)...)
	out = append(out, data[loc[3]:]...)
	return manifestio.AtomicWriteFile(manifestPath, out)
}

func (hexAdapter) WriteDependencyRequirement(root, manifestPath, depName, newVersion string, inherited bool) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("adapters: reading %s: %w", manifestPath, err)
	}
	pattern := regexp.MustCompile(`(\{\s*:` + regexp.QuoteMeta(depName) + `\s*,\s*")([^"]*)(")`)
	loc := pattern.FindSubmatchIndex(data)
	if loc == nil {
		return fmt.Errorf("adapters: dependency %q not found in %s", depName, manifestPath)
	}
	oldSpec := string(data[loc[4]:loc[5]])
	prefix := "~> "
	if !regexp.MustCompile(`^~>\s*`).MatchString(oldSpec) {
		prefix = ""
	}
	newSpec := prefix + newVersion
	out := append([]byte{}, data[:loc[4]]...)
	out = append(out, []byte(newSpec)...)
	out = append(out, data[loc[5]:]...)
	return manifestio.AtomicWriteFile(manifestPath, out)
}

func (hexAdapter) RegenerateLockfile(root string) error {
	// mix.lock regeneration requires invoking the mix binary; not wired for
	// the same reason as the other adapters' lockfile no-ops.
	return nil
}

func (hexAdapter) ValidateConstraint(requirement, candidate string) ConstraintOutcome {
	if IsPathOrWildcard(requirement) {
		return Satisfies
	}
	normalized := regexp.MustCompile(`^~>\s*`).ReplaceAllString(requirement, "~")
	return ValidateConstraint(normalized, candidate)
}
