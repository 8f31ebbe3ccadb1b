package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bruits/sampo/internal/adapters"
	"github.com/bruits/sampo/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func twoPackageCargoWorkspace(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".sampo", "config.toml"), "")
	writeFile(t, filepath.Join(root, "Cargo.toml"), `[workspace]
members = ["packages/*"]
`)
	writeFile(t, filepath.Join(root, "packages", "core", "Cargo.toml"), `[package]
name = "core"
version = "1.0.0"
`)
	writeFile(t, filepath.Join(root, "packages", "cli", "Cargo.toml"), `[package]
name = "cli"
version = "1.0.0"

[dependencies]
core = { version = "1.0.0", path = "../core" }
`)
	return root
}

func TestFindRootWalksUpward(t *testing.T) {
	root := twoPackageCargoWorkspace(t)
	nested := filepath.Join(root, "packages", "cli")
	found, err := FindRoot(nested)
	if err != nil {
		t.Fatalf("FindRoot: %v", err)
	}
	if found != root {
		t.Fatalf("FindRoot = %q, want %q", found, root)
	}
}

func TestFindRootNotInitialized(t *testing.T) {
	root := t.TempDir()
	if _, err := FindRoot(root); err == nil {
		t.Fatalf("expected NotInitialized error")
	}
}

func TestDiscoverBuildsWorkspaceAndGraph(t *testing.T) {
	root := twoPackageCargoWorkspace(t)
	registry := adapters.NewRegistry(adapters.NewCargoAdapter())
	w, err := Discover(root, registry, config.Config{})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if w.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", w.Len())
	}
	cli, ok := w.Get(NewPackageId("cargo", "cli"))
	if !ok {
		t.Fatalf("expected cargo/cli in workspace")
	}
	if len(cli.Dependencies) != 1 || cli.Dependencies[0].Target != NewPackageId("cargo", "core") {
		t.Fatalf("cli dependencies = %+v, want one edge to cargo/core", cli.Dependencies)
	}

	graph := w.Graph()
	order := graph.ReverseDependencyOrder()
	coreIdx, cliIdx := -1, -1
	for i, id := range order {
		switch id {
		case "cargo/core":
			coreIdx = i
		case "cargo/cli":
			cliIdx = i
		}
	}
	if coreIdx == -1 || cliIdx == -1 || coreIdx > cliIdx {
		t.Fatalf("ReverseDependencyOrder() = %v, want core before cli", order)
	}
}

func TestDiscoverAppliesIgnoreUnpublished(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".sampo", "config.toml"), "")
	writeFile(t, filepath.Join(root, "package.json"), `{"name": "root", "private": true, "workspaces": ["packages/*"]}`)
	writeFile(t, filepath.Join(root, "packages", "a", "package.json"), `{"name": "a", "private": true, "version": "1.0.0"}`)
	writeFile(t, filepath.Join(root, "packages", "b", "package.json"), `{"name": "b", "version": "1.0.0"}`)

	registry := adapters.NewRegistry(adapters.NewNPMAdapter())
	cfg := config.Config{Packages: config.PackagesConfig{IgnoreUnpublished: true}}
	w, err := Discover(root, registry, cfg)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if w.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (only publishable b)", w.Len())
	}
	if _, ok := w.Get(NewPackageId("npm", "b")); !ok {
		t.Fatalf("expected npm/b to survive ignore_unpublished filtering")
	}
}

func TestDiscoverAppliesIgnoreGlobs(t *testing.T) {
	root := twoPackageCargoWorkspace(t)
	registry := adapters.NewRegistry(adapters.NewCargoAdapter())
	cfg := config.Config{Packages: config.PackagesConfig{Ignore: []string{"cargo/cli"}}}
	w, err := Discover(root, registry, cfg)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if w.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", w.Len())
	}
	if _, ok := w.Get(NewPackageId("cargo", "cli")); ok {
		t.Fatalf("expected cargo/cli to be filtered out")
	}
}

func TestDiscoverNoPackagesFound(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".sampo", "config.toml"), "")
	registry := adapters.NewRegistry(adapters.NewCargoAdapter())
	if _, err := Discover(root, registry, config.Config{}); err == nil {
		t.Fatalf("expected NoPackagesFound error")
	}
}

func TestDiscoverDuplicatePackageAcrossAdapters(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".sampo", "config.toml"), "")
	// Two different ecosystems never collide on PackageId since the
	// ecosystem tag is part of the id; simulate a same-ecosystem
	// collision instead via two registrations of the same adapter
	// pointed at manifests with the same name in different dirs is not
	// representative, so this test instead exercises the duplicate path
	// by invoking Discover twice against one root with overlapping
	// names under distinct directories for the same adapter.
	writeFile(t, filepath.Join(root, "a", "Cargo.toml"), `[package]
name = "dup"
version = "1.0.0"
`)
	writeFile(t, filepath.Join(root, "b", "Cargo.toml"), `[package]
name = "dup"
version = "2.0.0"
`)
	writeFile(t, filepath.Join(root, "Cargo.toml"), `[workspace]
members = ["a", "b"]
`)
	registry := adapters.NewRegistry(adapters.NewCargoAdapter())
	if _, err := Discover(root, registry, config.Config{}); err == nil {
		t.Fatalf("expected DuplicatePackage error for two manifests named dup")
	}
}

func TestResolvePlainNameAmbiguous(t *testing.T) {
	w := &Workspace{
		packages: map[PackageId]Package{
			NewPackageId("cargo", "foo"): {ID: NewPackageId("cargo", "foo")},
			NewPackageId("npm", "foo"):   {ID: NewPackageId("npm", "foo")},
		},
	}
	w.buildNameIndex()

	result := w.Resolve("foo")
	if result.Status != ResolvedAmbiguous {
		t.Fatalf("Resolve(foo) = %+v, want Ambiguous", result)
	}
	if len(result.Matches) != 2 {
		t.Fatalf("Matches = %v, want 2 entries", result.Matches)
	}
}

func TestResolveCanonicalIDBypassesAmbiguity(t *testing.T) {
	w := &Workspace{
		packages: map[PackageId]Package{
			NewPackageId("cargo", "foo"): {ID: NewPackageId("cargo", "foo")},
			NewPackageId("npm", "foo"):   {ID: NewPackageId("npm", "foo")},
		},
	}
	w.buildNameIndex()

	result := w.Resolve("cargo/foo")
	if result.Status != ResolvedMatch || result.ID != NewPackageId("cargo", "foo") {
		t.Fatalf("Resolve(cargo/foo) = %+v, want Match cargo/foo", result)
	}
}

func TestResolveOrErrorUnknown(t *testing.T) {
	w := &Workspace{packages: map[PackageId]Package{}}
	w.buildNameIndex()
	if _, err := w.ResolveOrError("missing"); err == nil {
		t.Fatalf("expected UnknownPackage error")
	}
}
