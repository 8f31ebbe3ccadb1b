package adapters

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bruits/sampo/internal/manifestio"
)

// packagistAdapter discovers and edits a single Composer package.
// Composer has no native monorepo/workspace mechanism, so discovery only
// ever reports the root composer.json, grounded on the original
// implementation's discover_packagist (see
// _examples/original_source's adapters/packagist.rs).
type packagistAdapter struct{}

// NewPackagistAdapter returns the Packagist/Composer ecosystem adapter.
func NewPackagistAdapter() Adapter { return packagistAdapter{} }

func (packagistAdapter) Ecosystem() string { return "packagist" }

type composerManifest struct {
	Name       string            `json:"name"`
	Version    string            `json:"version"`
	Abandoned  json.RawMessage   `json:"abandoned"`
	Require    map[string]string `json:"require"`
	RequireDev map[string]string `json:"require-dev"`
}

func (packagistAdapter) Discover(root string) ([]string, error) {
	manifestPath := filepath.Join(root, "composer.json")
	if _, err := os.Stat(manifestPath); err != nil {
		return nil, fmt.Errorf("adapters: reading %s: %w", manifestPath, err)
	}
	return []string{manifestPath}, nil
}

func (packagistAdapter) Parse(manifestPath string) (RawPackage, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return RawPackage{}, fmt.Errorf("adapters: reading %s: %w", manifestPath, err)
	}
	var manifest composerManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return RawPackage{}, fmt.Errorf("adapters: invalid JSON in %s: %w", manifestPath, err)
	}
	if strings.TrimSpace(manifest.Name) == "" {
		return RawPackage{}, fmt.Errorf("adapters: %s is missing a name field", manifestPath)
	}
	if !strings.Contains(manifest.Name, "/") {
		return RawPackage{}, fmt.Errorf("adapters: %s name %q must be in 'vendor/package' format", manifestPath, manifest.Name)
	}

	var deps []RawDependency
	deps = append(deps, collectComposerDeps(manifest.Require, Runtime)...)
	deps = append(deps, collectComposerDeps(manifest.RequireDev, Dev)...)

	return RawPackage{
		Name:         manifest.Name,
		ManifestPath: manifestPath,
		Dir:          filepath.Dir(manifestPath),
		Version:      manifest.Version,
		Publishable:  composerIsPublishable(manifest),
		Dependencies: deps,
	}, nil
}

func composerIsPublishable(manifest composerManifest) bool {
	if strings.TrimSpace(manifest.Version) == "" {
		return false
	}
	if len(manifest.Abandoned) > 0 {
		var asBool bool
		if json.Unmarshal(manifest.Abandoned, &asBool) == nil && asBool {
			return false
		}
		var asString string
		if json.Unmarshal(manifest.Abandoned, &asString) == nil {
			return false
		}
	}
	return true
}

func collectComposerDeps(deps map[string]string, kind DependencyKind) []RawDependency {
	names := make([]string, 0, len(deps))
	for name := range deps {
		// PHP platform requirements (e.g. "php", "ext-json") are not
		// workspace-internal packages.
		if name == "php" || strings.HasPrefix(name, "ext-") || strings.HasPrefix(name, "lib-") {
			continue
		}
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

func (packagistAdapter) WriteVersion(manifestPath, newVersion string) error {
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

func (packagistAdapter) WriteDependencyRequirement(root, manifestPath, depName, newVersion string, inherited bool) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("adapters: reading %s: %w", manifestPath, err)
	}
	for _, section := range []string{"require", "require-dev"} {
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
			return fmt.Errorf("adapters: %s: %w", manifestPath, err)
		}
		return manifestio.AtomicWriteFile(manifestPath, updated)
	}
	return fmt.Errorf("adapters: dependency %q not found in %s", depName, manifestPath)
}

func (packagistAdapter) RegenerateLockfile(root string) error {
	// composer.lock regeneration requires invoking the composer binary; not
	// wired for the same reason as the other adapters' lockfile no-ops.
	return nil
}

func (packagistAdapter) ValidateConstraint(requirement, candidate string) ConstraintOutcome {
	if IsPathOrWildcard(requirement) {
		return Satisfies
	}
	return ValidateConstraint(requirement, candidate)
}
