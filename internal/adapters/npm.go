package adapters

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bruits/sampo/internal/manifestio"
)

// npmAdapter discovers and edits npm/pnpm workspaces, expanding the root
// package.json's "workspaces" globs to find member packages, and editing
// manifests with raw-byte text surgery rather than marshaling the whole
// document, to preserve field order and formatting untouched fields had.
type npmAdapter struct{}

// NewNPMAdapter returns the npm ecosystem adapter.
func NewNPMAdapter() Adapter { return npmAdapter{} }

func (npmAdapter) Ecosystem() string { return "npm" }

type npmManifest struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	Private          bool              `json:"private"`
	Workspaces       json.RawMessage   `json:"workspaces"`
	Dependencies     map[string]string `json:"dependencies"`
	DevDependencies  map[string]string `json:"devDependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
}

func (npmAdapter) Discover(root string) ([]string, error) {
	rootManifestPath := filepath.Join(root, "package.json")
	rootData, err := os.ReadFile(rootManifestPath)
	hasRoot := err == nil

	dirs := map[string]bool{}

	if hasRoot {
		var manifest npmManifest
		if err := json.Unmarshal(rootData, &manifest); err != nil {
			return nil, fmt.Errorf("adapters: invalid JSON in %s: %w", rootManifestPath, err)
		}
		patterns, err := extractWorkspacePatterns(manifest.Workspaces)
		if err != nil {
			return nil, err
		}
		for _, pattern := range patterns {
			matches, err := filepath.Glob(filepath.Join(root, pattern))
			if err != nil {
				continue
			}
			for _, match := range matches {
				if info, err := os.Stat(match); err == nil && info.IsDir() {
					if _, err := os.Stat(filepath.Join(match, "package.json")); err == nil {
						dirs[match] = true
					}
				}
			}
		}
		if manifest.Name != "" && !manifest.Private {
			dirs[root] = true
		}
	}

	if len(dirs) == 0 && hasRoot {
		dirs[root] = true
	}

	out := make([]string, 0, len(dirs))
	for dir := range dirs {
		out = append(out, filepath.Join(dir, "package.json"))
	}
	sort.Strings(out)
	return out, nil
}

func extractWorkspacePatterns(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var asArray []string
	if err := json.Unmarshal(raw, &asArray); err == nil {
		return asArray, nil
	}
	var asObject struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(raw, &asObject); err == nil {
		return asObject.Packages, nil
	}
	return nil, fmt.Errorf("adapters: workspaces field has unsupported shape")
}

func (npmAdapter) Parse(manifestPath string) (RawPackage, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return RawPackage{}, fmt.Errorf("adapters: reading %s: %w", manifestPath, err)
	}
	var manifest npmManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return RawPackage{}, fmt.Errorf("adapters: invalid JSON in %s: %w", manifestPath, err)
	}
	if manifest.Name == "" {
		return RawPackage{}, fmt.Errorf("adapters: %s is missing a name field", manifestPath)
	}

	var deps []RawDependency
	deps = append(deps, collectNPMDeps(manifest.Dependencies, Runtime)...)
	deps = append(deps, collectNPMDeps(manifest.DevDependencies, Dev)...)
	deps = append(deps, collectNPMDeps(manifest.PeerDependencies, Peer)...)

	return RawPackage{
		Name:         manifest.Name,
		ManifestPath: manifestPath,
		Dir:          filepath.Dir(manifestPath),
		Version:      manifest.Version,
		Publishable:  !manifest.Private,
		Dependencies: deps,
	}, nil
}

func collectNPMDeps(deps map[string]string, kind DependencyKind) []RawDependency {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]RawDependency, 0, len(names))
	for _, name := range names {
		req := deps[name]
		out = append(out, RawDependency{
			Name:        name,
			Kind:        kind,
			Requirement: req,
			PathOnly:    IsPathOrWildcard(req),
		})
	}
	return out
}

func (npmAdapter) WriteVersion(manifestPath, newVersion string) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("adapters: reading %s: %w", manifestPath, err)
	}
	updated, err := manifestio.ReplaceJSONStringField(data, "version", newVersion)
	if err != nil {
		return fmt.Errorf("adapters: %s: %w", manifestPath, err)
	}
	return manifestio.AtomicWriteFile(manifestPath, updated)
}

func (npmAdapter) WriteDependencyRequirement(root, manifestPath, depName, newVersion string, inherited bool) error {
	target := manifestPath
	if inherited {
		target = filepath.Join(root, "package.json")
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return fmt.Errorf("adapters: reading %s: %w", target, err)
	}

	for _, section := range []string{"dependencies", "devDependencies", "peerDependencies"} {
		oldSpec, found := manifestio.FindJSONNestedStringField(data, section, depName)
		if !found {
			continue
		}
		newSpec, ok := RewriteRequirement(oldSpec, newVersion)
		if !ok {
			newSpec = "^" + newVersion
		}
		updated, err := manifestio.ReplaceJSONNestedStringField(data, section, depName, newSpec)
		if err != nil {
			return fmt.Errorf("adapters: %s: %w", target, err)
		}
		return manifestio.AtomicWriteFile(target, updated)
	}
	return fmt.Errorf("adapters: dependency %q not found in %s", depName, target)
}

func (npmAdapter) RegenerateLockfile(root string) error {
	// Regenerating package-lock.json/pnpm-lock.yaml requires invoking npm or
	// pnpm, which this package has no process-execution dependency for, so
	// this is a no-op and the lockfile is left as it is. No diagnostic
	// reports it as stale.
	return nil
}

func (npmAdapter) ValidateConstraint(requirement, candidate string) ConstraintOutcome {
	if IsPathOrWildcard(requirement) {
		return Satisfies
	}
	return ValidateConstraint(requirement, candidate)
}
