// Package workspace discovers the packages that make up a polyglot
// monorepo and builds the canonical package index the release planner
// operates over. Discovery runs every adapter in internal/adapters over
// the root directory and unions their results, keyed by the canonical
// "<ecosystem>/<name>" PackageId form.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bruits/sampo/internal/adapters"
	"github.com/bruits/sampo/internal/config"
	"github.com/bruits/sampo/internal/depgraph"
	"github.com/bruits/sampo/internal/sampoerr"
)

// PackageId is the canonical "<ecosystem>/<name>" identifier.
// Equality is case-sensitive.
type PackageId string

// NewPackageId builds a canonical id from its ecosystem and native name.
func NewPackageId(ecosystem, name string) PackageId {
	return PackageId(ecosystem + "/" + name)
}

// Ecosystem returns the ecosystem tag portion of the id.
func (id PackageId) Ecosystem() string {
	eco, _, _ := strings.Cut(string(id), "/")
	return eco
}

// Name returns the ecosystem-native name portion of the id.
func (id PackageId) Name() string {
	_, name, _ := strings.Cut(string(id), "/")
	return name
}

func (id PackageId) String() string { return string(id) }

// Dependency is a resolved internal dependency edge: a RawDependency whose
// target has been matched to a workspace PackageId.
type Dependency struct {
	Target      PackageId
	Kind        adapters.DependencyKind
	Requirement string
	Inherited   bool
	PathOnly    bool
}

// Package is a discovered workspace member.
type Package struct {
	ID           PackageId
	Ecosystem    string
	Dir          string // absolute path to the manifest directory
	ManifestPath string // absolute path to the manifest file
	Version      string
	Publishable  bool
	Dependencies []Dependency
}

// Workspace is the canonical package index.
type Workspace struct {
	Root       string
	Ecosystems []string
	packages   map[PackageId]Package
	byName     map[string][]PackageId // plain name -> set of ids, built last

	// ignored holds packages that were discovered but then dropped by
	// packages.ignore_unpublished / packages.ignore, kept around only so
	// Resolve can tell "filtered out" apart from "never existed".
	ignored       map[PackageId]bool
	ignoredByName map[string][]PackageId
}

// Packages returns every package in the workspace, sorted by id for
// deterministic iteration.
func (w *Workspace) Packages() []Package {
	out := make([]Package, 0, len(w.packages))
	for _, pkg := range w.packages {
		out = append(out, pkg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the package with the given id.
func (w *Workspace) Get(id PackageId) (Package, bool) {
	pkg, ok := w.packages[id]
	return pkg, ok
}

// Len reports the number of packages in the workspace.
func (w *Workspace) Len() int { return len(w.packages) }

// NewTestWorkspace builds a minimal Workspace directly from a set of ids,
// for use by other packages' tests that need a resolvable workspace
// without a filesystem fixture.
func NewTestWorkspace(ids map[PackageId]bool) *Workspace {
	w := &Workspace{packages: make(map[PackageId]Package, len(ids))}
	for id := range ids {
		w.packages[id] = Package{ID: id, Ecosystem: id.Ecosystem()}
	}
	w.buildNameIndex()
	return w
}

// NewTestWorkspaceWithIgnored builds a minimal Workspace like
// NewTestWorkspace, plus a set of ignored ids: packages that resolve but
// were dropped by ignore filtering, for tests that need to exercise that
// distinction without a filesystem fixture.
func NewTestWorkspaceWithIgnored(ids, ignored map[PackageId]bool) *Workspace {
	w := NewTestWorkspace(ids)
	w.ignored = make(map[PackageId]bool, len(ignored))
	for id := range ignored {
		w.ignored[id] = true
	}
	w.buildIgnoredNameIndex()
	return w
}

// NewTestWorkspaceFromPackages builds a Workspace from fully-formed
// Package values (versions, dependency edges), for planner tests that need
// more than bare resolvability.
func NewTestWorkspaceFromPackages(pkgs []Package) *Workspace {
	w := &Workspace{packages: make(map[PackageId]Package, len(pkgs))}
	for _, pkg := range pkgs {
		if pkg.Ecosystem == "" {
			pkg.Ecosystem = pkg.ID.Ecosystem()
		}
		w.packages[pkg.ID] = pkg
	}
	w.buildNameIndex()
	return w
}

// FindRoot walks upward from dir looking for a .sampo marker directory,
// returning its parent as the workspace root.
func FindRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", sampoerr.Wrap(sampoerr.KindIO, "resolving working directory", err)
	}
	current := abs
	for {
		if info, err := os.Stat(filepath.Join(current, ".sampo")); err == nil && info.IsDir() {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", sampoerr.New(sampoerr.KindNotInitialized, "no .sampo directory found above "+abs)
		}
		current = parent
	}
}

// Discover builds the Workspace rooted at root by invoking every adapter
// in registry, unioning their reported packages, and applying the
// packages.ignore_unpublished / packages.ignore filters from cfg
//. An adapter whose root manifest does not exist contributes no packages.
func Discover(root string, registry *adapters.Registry, cfg config.Config) (*Workspace, error) {
	w := &Workspace{
		Root:       root,
		Ecosystems: registry.Ecosystems(),
		packages:   make(map[PackageId]Package),
	}

	depRefs := make(map[PackageId][]adapters.RawDependency)

	for _, adapter := range registry.All() {
		manifestPaths, err := adapter.Discover(root)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, sampoerr.Wrap(sampoerr.KindIO, "discovering "+adapter.Ecosystem()+" packages", err)
		}
		for _, manifestPath := range manifestPaths {
			raw, err := adapter.Parse(manifestPath)
			if err != nil {
				return nil, sampoerr.Wrap(sampoerr.KindIO, "parsing "+manifestPath, err).WithFile(manifestPath)
			}
			id := NewPackageId(adapter.Ecosystem(), raw.Name)
			if _, exists := w.packages[id]; exists {
				return nil, sampoerr.New(sampoerr.KindDuplicatePackage, "package id already claimed by another manifest").WithPackage(string(id)).WithFile(manifestPath)
			}
			w.packages[id] = Package{
				ID:           id,
				Ecosystem:    adapter.Ecosystem(),
				Dir:          raw.Dir,
				ManifestPath: raw.ManifestPath,
				Version:      raw.Version,
				Publishable:  raw.Publishable,
			}
			depRefs[id] = raw.Dependencies
		}
	}

	if len(w.packages) == 0 {
		return nil, sampoerr.New(sampoerr.KindNoPackagesFound, "no packages found under "+root)
	}

	// Resolve each raw dependency's target name against the same
	// ecosystem's namespace: internal dependencies are always same-
	// ecosystem (a Cargo crate depends on another Cargo crate by its
	// Cargo name), so the target id is <source ecosystem>/<dep name>.
	// A dependency whose name does not match any workspace package is
	// external and simply has no resolved Dependency entry.
	for id, raw := range depRefs {
		pkg := w.packages[id]
		for _, rawDep := range raw {
			targetID := NewPackageId(pkg.Ecosystem, rawDep.Name)
			if _, ok := w.packages[targetID]; !ok {
				continue
			}
			pkg.Dependencies = append(pkg.Dependencies, Dependency{
				Target:      targetID,
				Kind:        rawDep.Kind,
				Requirement: rawDep.Requirement,
				Inherited:   rawDep.Inherited,
				PathOnly:    rawDep.PathOnly,
			})
		}
		w.packages[id] = pkg
	}

	w.applyIgnoreFilters(cfg)
	w.buildIgnoredNameIndex()

	if len(w.packages) == 0 {
		return nil, sampoerr.New(sampoerr.KindNoPackagesFound, "no packages remain after ignore filtering")
	}

	w.buildNameIndex()
	return w, nil
}

func (w *Workspace) applyIgnoreFilters(cfg config.Config) {
	w.ignored = make(map[PackageId]bool)
	if cfg.Packages.IgnoreUnpublished {
		for id, pkg := range w.packages {
			if !pkg.Publishable {
				w.ignored[id] = true
				delete(w.packages, id)
			}
		}
	}
	if len(cfg.Packages.Ignore) == 0 {
		return
	}
	for id, pkg := range w.packages {
		rel, err := filepath.Rel(w.Root, pkg.ManifestPath)
		if err != nil {
			rel = pkg.ManifestPath
		}
		if cfg.MatchesIgnore(string(id), id.Name(), rel) {
			w.ignored[id] = true
			delete(w.packages, id)
		}
	}
}

func (w *Workspace) buildIgnoredNameIndex() {
	w.ignoredByName = make(map[string][]PackageId, len(w.ignored))
	ids := make([]PackageId, 0, len(w.ignored))
	for id := range w.ignored {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		w.ignoredByName[id.Name()] = append(w.ignoredByName[id.Name()], id)
	}
}

func (w *Workspace) buildNameIndex() {
	w.byName = make(map[string][]PackageId)
	ids := make([]PackageId, 0, len(w.packages))
	for id := range w.packages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		w.byName[id.Name()] = append(w.byName[id.Name()], id)
	}
}

// Graph builds the internal dependency graph over the workspace's current
// package set.
func (w *Workspace) Graph() *depgraph.Graph {
	g := depgraph.New()
	for _, pkg := range w.Packages() {
		g.AddNode(string(pkg.ID))
		for _, dep := range pkg.Dependencies {
			g.AddEdge(string(pkg.ID), string(dep.Target))
		}
	}
	return g
}

// Resolution classifies how a PackageRef resolved against the workspace.
type Resolution int

const (
	ResolvedMatch Resolution = iota
	ResolvedNotFound
	ResolvedAmbiguous
	ResolvedIgnored // matched a package that packages.ignore*/ filtering dropped
)

// ResolveResult is the outcome of resolving a plain name or canonical id
// against the workspace (mirrors the original's SpecResolution).
type ResolveResult struct {
	Status  Resolution
	ID      PackageId   // valid when Status == ResolvedMatch
	Matches []PackageId // valid when Status == ResolvedAmbiguous, sorted
}

// Resolve interprets ref as a PackageRef: a canonical id ("cargo/foo") if
// it contains a '/', otherwise a plain name disambiguated against the
// workspace's by-plain-name index.
func (w *Workspace) Resolve(ref string) ResolveResult {
	ref = strings.TrimSpace(ref)
	ref = stripWrappingQuotes(ref)

	if strings.Contains(ref, "/") {
		id := PackageId(ref)
		if _, ok := w.packages[id]; ok {
			return ResolveResult{Status: ResolvedMatch, ID: id}
		}
		if w.ignored[id] {
			return ResolveResult{Status: ResolvedIgnored, ID: id}
		}
		return ResolveResult{Status: ResolvedNotFound}
	}

	matches := w.byName[ref]
	switch len(matches) {
	case 0:
		if ignored := w.ignoredByName[ref]; len(ignored) > 0 {
			return ResolveResult{Status: ResolvedIgnored, ID: ignored[0]}
		}
		return ResolveResult{Status: ResolvedNotFound}
	case 1:
		return ResolveResult{Status: ResolvedMatch, ID: matches[0]}
	default:
		out := make([]PackageId, len(matches))
		copy(out, matches)
		return ResolveResult{Status: ResolvedAmbiguous, Matches: out}
	}
}

// FormatAmbiguity renders the candidate ids for an *AmbiguousPackage error
// message, grounded on the original's format_ambiguity_options.
func FormatAmbiguity(ids []PackageId) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}

// ResolveOrError is a convenience wrapper returning a sampoerr-tagged
// error for NotFound/Ambiguous outcomes.
func (w *Workspace) ResolveOrError(ref string) (PackageId, error) {
	result := w.Resolve(ref)
	switch result.Status {
	case ResolvedMatch:
		return result.ID, nil
	case ResolvedAmbiguous:
		return "", sampoerr.New(sampoerr.KindAmbiguousPackage, fmt.Sprintf("%q is ambiguous: %s", ref, FormatAmbiguity(result.Matches)))
	default:
		return "", sampoerr.New(sampoerr.KindUnknownPackage, fmt.Sprintf("unknown package %q", ref))
	}
}

func stripWrappingQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	first, last := s[0], s[len(s)-1]
	if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}
