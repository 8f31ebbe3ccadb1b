package adapters

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/bruits/sampo/internal/manifestio"
)

// cargoAdapter discovers and edits a Cargo workspace, expanding the root
// Cargo.toml's [workspace] members globs to find member crates (exclude
// entries are not applied), reading manifests with pelletier/go-toml/v2 and editing them with
// manifestio's byte-level scalar surgery rather than a parse-and-re-marshal
// round trip.
type cargoAdapter struct{}

// NewCargoAdapter returns the Cargo ecosystem adapter.
func NewCargoAdapter() Adapter { return cargoAdapter{} }

func (cargoAdapter) Ecosystem() string { return "cargo" }

type cargoManifest struct {
	Workspace *struct {
		Members []string `toml:"members"`
	} `toml:"workspace"`
	Package *struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
		Publish any    `toml:"publish"`
	} `toml:"package"`
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
}

// cargoDependency accepts either a bare requirement string or an inline
// table ({ version = "...", path = "...", workspace = true }).
type cargoDependency struct {
	Requirement string
	Path        string
	Workspace   bool
}

func (d *cargoDependency) UnmarshalTOML(value any) error {
	switch v := value.(type) {
	case string:
		d.Requirement = v
	case map[string]any:
		if ver, ok := v["version"].(string); ok {
			d.Requirement = ver
		}
		if p, ok := v["path"].(string); ok {
			d.Path = p
		}
		if ws, ok := v["workspace"].(bool); ok {
			d.Workspace = ws
		}
	}
	return nil
}

func (cargoAdapter) Discover(root string) ([]string, error) {
	rootManifestPath := filepath.Join(root, "Cargo.toml")
	data, err := os.ReadFile(rootManifestPath)
	if err != nil {
		return nil, fmt.Errorf("adapters: reading %s: %w", rootManifestPath, err)
	}
	var manifest cargoManifest
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("adapters: invalid TOML in %s: %w", rootManifestPath, err)
	}

	var memberDirs []string
	if manifest.Workspace != nil {
		for _, pattern := range manifest.Workspace.Members {
			dirs, err := expandMemberPattern(root, pattern)
			if err != nil {
				return nil, err
			}
			memberDirs = append(memberDirs, dirs...)
		}
	}
	if manifest.Package != nil {
		memberDirs = append(memberDirs, root)
	}

	seen := map[string]bool{}
	var out []string
	for _, dir := range memberDirs {
		manifestPath := filepath.Join(dir, "Cargo.toml")
		if seen[manifestPath] {
			continue
		}
		seen[manifestPath] = true
		out = append(out, manifestPath)
	}
	sort.Strings(out)
	return out, nil
}

// expandMemberPattern expands a workspace.members entry (plain path or a
// single-level glob) into manifest directories.
func expandMemberPattern(root, pattern string) ([]string, error) {
	full := filepath.Join(root, pattern)
	matches, err := filepath.Glob(full)
	if err != nil {
		return nil, fmt.Errorf("adapters: invalid member pattern %q: %w", pattern, err)
	}
	if matches == nil {
		matches = []string{full}
	}
	var dirs []string
	for _, m := range matches {
		if _, err := os.Stat(filepath.Join(m, "Cargo.toml")); err == nil {
			dirs = append(dirs, m)
		}
	}
	return dirs, nil
}

func (cargoAdapter) Parse(manifestPath string) (RawPackage, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return RawPackage{}, fmt.Errorf("adapters: reading %s: %w", manifestPath, err)
	}
	var manifest cargoManifest
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return RawPackage{}, fmt.Errorf("adapters: invalid TOML in %s: %w", manifestPath, err)
	}
	if manifest.Package == nil || manifest.Package.Name == "" {
		return RawPackage{}, fmt.Errorf("adapters: %s is missing [package].name", manifestPath)
	}

	var deps []RawDependency
	deps = append(deps, collectCargoDeps(manifest.Dependencies, Runtime)...)
	deps = append(deps, collectCargoDeps(manifest.DevDependencies, Dev)...)
	deps = append(deps, collectCargoDeps(manifest.BuildDependencies, Build)...)

	return RawPackage{
		Name:         manifest.Package.Name,
		ManifestPath: manifestPath,
		Dir:          filepath.Dir(manifestPath),
		Version:      manifest.Package.Version,
		Publishable:  cargoIsPublishable(manifest.Package.Publish),
		Dependencies: deps,
	}, nil
}

func cargoIsPublishable(publish any) bool {
	switch v := publish.(type) {
	case bool:
		return v
	case []any:
		for _, entry := range v {
			if s, ok := entry.(string); ok && s == "crates-io" {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func collectCargoDeps(deps map[string]any, kind DependencyKind) []RawDependency {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]RawDependency, 0, len(names))
	for _, name := range names {
		var dep cargoDependency
		_ = dep.UnmarshalTOML(deps[name])
		out = append(out, RawDependency{
			Name:        name,
			Kind:        kind,
			Requirement: dep.Requirement,
			Inherited:   dep.Workspace,
			PathOnly:    dep.Path != "" || (dep.Requirement == "" && !dep.Workspace),
		})
	}
	return out
}

func (cargoAdapter) WriteVersion(manifestPath, newVersion string) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("adapters: reading %s: %w", manifestPath, err)
	}
	updated, err := manifestio.ReplaceTOMLScalar(data, "package", "version", newVersion)
	if err != nil {
		return fmt.Errorf("adapters: %s: %w", manifestPath, err)
	}
	return manifestio.AtomicWriteFile(manifestPath, updated)
}

func (cargoAdapter) WriteDependencyRequirement(root, manifestPath, depName, newVersion string, inherited bool) error {
	target := manifestPath
	section := "dependencies"
	if inherited {
		target = filepath.Join(root, "Cargo.toml")
		section = "workspace.dependencies"
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return fmt.Errorf("adapters: reading %s: %w", target, err)
	}

	newReq := newVersion
	oldReq := regexp.MustCompile(`(?m)^\s*` + regexp.QuoteMeta(depName) + `\s*=\s*(?:\{[^}\n]*?\bversion\s*=\s*)?"([^"]*)"`)
	if m := oldReq.FindSubmatch(data); m != nil {
		if rewritten, ok := RewriteRequirement(string(m[1]), newVersion); ok {
			newReq = rewritten
		}
	}

	sections := []string{section}
	if !inherited {
		sections = []string{"dependencies", "dev-dependencies", "build-dependencies"}
	}
	for _, s := range sections {
		if updated, err := manifestio.ReplaceTOMLDependencyRequirement(data, s, depName, newReq); err == nil {
			return manifestio.AtomicWriteFile(target, updated)
		}
	}
	return fmt.Errorf("adapters: dependency %q not found in %s", depName, target)
}

func (cargoAdapter) RegenerateLockfile(root string) error {
	// Regenerating Cargo.lock requires invoking the cargo binary; this
	// package has no process-execution dependency, so this is a no-op and
	// Cargo.lock is left as it is. No diagnostic reports it as stale.
	return nil
}

func (cargoAdapter) ValidateConstraint(requirement, candidate string) ConstraintOutcome {
	if IsPathOrWildcard(requirement) {
		return Satisfies
	}
	return ValidateConstraint(requirement, candidate)
}
