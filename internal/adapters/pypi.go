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

// pypiAdapter discovers and edits a pyproject.toml workspace using the PEP
// 621 [project] table and a uv-style [tool.uv.workspace] members/exclude
// list.
type pypiAdapter struct{}

// NewPyPIAdapter returns the PyPI/pip ecosystem adapter.
func NewPyPIAdapter() Adapter { return pypiAdapter{} }

func (pypiAdapter) Ecosystem() string { return "pypi" }

type pyprojectManifest struct {
	Project *struct {
		Name         string   `toml:"name"`
		Version      string   `toml:"version"`
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
	Tool *struct {
		UV *struct {
			Workspace *struct {
				Members []string `toml:"members"`
				Exclude []string `toml:"exclude"`
			} `toml:"workspace"`
		} `toml:"uv"`
	} `toml:"tool"`
}

func (pypiAdapter) Discover(root string) ([]string, error) {
	rootManifestPath := filepath.Join(root, "pyproject.toml")
	data, err := os.ReadFile(rootManifestPath)
	if err != nil {
		return nil, fmt.Errorf("adapters: reading %s: %w", rootManifestPath, err)
	}
	var manifest pyprojectManifest
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("adapters: invalid TOML in %s: %w", rootManifestPath, err)
	}

	dirs := map[string]bool{}
	if manifest.Project != nil && manifest.Project.Name != "" {
		dirs[root] = true
	}

	if manifest.Tool != nil && manifest.Tool.UV != nil && manifest.Tool.UV.Workspace != nil {
		ws := manifest.Tool.UV.Workspace
		for _, pattern := range ws.Members {
			expanded, err := expandMemberPatternFor(root, pattern, "pyproject.toml")
			if err != nil {
				return nil, err
			}
			for _, d := range expanded {
				dirs[d] = true
			}
		}
		excluded := map[string]bool{}
		for _, pattern := range ws.Exclude {
			expanded, _ := expandMemberPatternFor(root, pattern, "pyproject.toml")
			for _, d := range expanded {
				excluded[d] = true
			}
		}
		for d := range excluded {
			delete(dirs, d)
		}
	}

	out := make([]string, 0, len(dirs))
	for d := range dirs {
		out = append(out, filepath.Join(d, "pyproject.toml"))
	}
	sort.Strings(out)
	return out, nil
}

func expandMemberPatternFor(root, pattern, manifestFile string) ([]string, error) {
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
		if _, err := os.Stat(filepath.Join(m, manifestFile)); err == nil {
			dirs = append(dirs, m)
		}
	}
	return dirs, nil
}

func (pypiAdapter) Parse(manifestPath string) (RawPackage, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return RawPackage{}, fmt.Errorf("adapters: reading %s: %w", manifestPath, err)
	}
	var manifest pyprojectManifest
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return RawPackage{}, fmt.Errorf("adapters: invalid TOML in %s: %w", manifestPath, err)
	}
	if manifest.Project == nil || manifest.Project.Name == "" {
		return RawPackage{}, fmt.Errorf("adapters: %s is missing project.name", manifestPath)
	}

	var deps []RawDependency
	if manifest.Project != nil {
		for _, spec := range manifest.Project.Dependencies {
			name, requirement := parsePEP508(spec)
			if name == "" {
				continue
			}
			deps = append(deps, RawDependency{
				Name:        name,
				Kind:        Runtime,
				Requirement: requirement,
				PathOnly:    IsPathOrWildcard(requirement),
			})
		}
	}

	return RawPackage{
		Name:         manifest.Project.Name,
		ManifestPath: manifestPath,
		Dir:          filepath.Dir(manifestPath),
		Version:      manifest.Project.Version,
		Publishable:  true,
		Dependencies: deps,
	}, nil
}

// pep508 matches a PEP 508 dependency specifier: a bare name followed by an
// optional version specifier clause, e.g. "requests>=2.0,<3".
var pep508 = regexp.MustCompile(`^\s*([A-Za-z0-9][A-Za-z0-9._-]*)\s*(\[[^\]]*\])?\s*(.*)$`)

func parsePEP508(spec string) (name, requirement string) {
	m := pep508.FindStringSubmatch(spec)
	if m == nil {
		return "", ""
	}
	return m[1], m[3]
}

func (pypiAdapter) WriteVersion(manifestPath, newVersion string) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("adapters: reading %s: %w", manifestPath, err)
	}
	updated, err := manifestio.ReplaceTOMLScalar(data, "project", "version", newVersion)
	if err != nil {
		return fmt.Errorf("adapters: %s: %w", manifestPath, err)
	}
	return manifestio.AtomicWriteFile(manifestPath, updated)
}

func (pypiAdapter) WriteDependencyRequirement(root, manifestPath, depName, newVersion string, inherited bool) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("adapters: reading %s: %w", manifestPath, err)
	}
	// Captures: (1) name+optional extras bracket, (2) version specifier
	// clause, up to the closing quote of the array entry.
	pattern := regexp.MustCompile(`"(` + regexp.QuoteMeta(depName) + `(?:\[[^\]]*\])?)([^"]*)"`)
	loc := pattern.FindSubmatchIndex(data)
	if loc == nil {
		return fmt.Errorf("adapters: dependency %q not found in %s", depName, manifestPath)
	}

	oldSpec := string(data[loc[4]:loc[5]])
	newSpec := oldSpec
	if rewritten, ok := RewriteRequirement(oldSpec, newVersion); ok {
		newSpec = rewritten
	} else if oldSpec != "" {
		newSpec = "==" + newVersion
	}

	out := append([]byte{}, data[:loc[4]]...)
	out = append(out, []byte(newSpec)...)
	out = append(out, data[loc[5]:]...)
	return manifestio.AtomicWriteFile(manifestPath, out)
}

func (pypiAdapter) RegenerateLockfile(root string) error {
	// uv.lock/poetry.lock regeneration requires invoking an external
	// resolver binary; no such dependency exists in this module, so this is
	// a no-op and the lockfile is left as it is. No diagnostic reports it
	// as stale.
	return nil
}

func (pypiAdapter) ValidateConstraint(requirement, candidate string) ConstraintOutcome {
	if IsPathOrWildcard(requirement) {
		return Satisfies
	}
	return ValidateConstraint(requirement, candidate)
}
