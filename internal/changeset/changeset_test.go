package changeset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bruits/sampo/internal/semver"
	"github.com/bruits/sampo/internal/workspace"
)

func TestParseFlatChangeset(t *testing.T) {
	cs, err := Parse("---\nfoo: minor\nbar: major (Breaking)\n---\n\nfeat: add widgets\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cs.Entries) != 2 {
		t.Fatalf("Entries = %v, want 2", cs.Entries)
	}
	if cs.Entries[0].Ref != "foo" || cs.Entries[0].Level != semver.Minor || cs.Entries[0].Tag != "" {
		t.Errorf("Entries[0] = %+v", cs.Entries[0])
	}
	if cs.Entries[1].Ref != "bar" || cs.Entries[1].Level != semver.Major || cs.Entries[1].Tag != "Breaking" {
		t.Errorf("Entries[1] = %+v", cs.Entries[1])
	}
	if cs.Body != "feat: add widgets\n" {
		t.Errorf("Body = %q", cs.Body)
	}
}

func TestParseLegacyChangeset(t *testing.T) {
	cs, err := Parse("---\npackages:\n  - foo\n  - bar\nrelease: patch\n---\n\nfix: bug\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cs.Entries) != 2 {
		t.Fatalf("Entries = %v, want 2", cs.Entries)
	}
	for _, e := range cs.Entries {
		if e.Level != semver.Patch {
			t.Errorf("Entries level = %v, want patch", e.Level)
		}
	}
}

func TestParseRejectsUnknownBumpValue(t *testing.T) {
	if _, err := Parse("---\nfoo: sideways\n---\n\nbody\n"); err == nil {
		t.Fatalf("expected InvalidChangeset error for unrecognized bump value")
	}
}

func TestParseRejectsEmptyFrontmatter(t *testing.T) {
	if _, err := Parse("---\n---\n\nbody\n"); err == nil {
		t.Fatalf("expected InvalidChangeset error for empty frontmatter")
	}
}

func TestParseRejectsMissingDelimiter(t *testing.T) {
	if _, err := Parse("packages:\n  - foo\nrelease: patch\n"); err == nil {
		t.Fatalf("expected InvalidChangeset error for missing --- delimiter")
	}
}

func TestRoundTrip(t *testing.T) {
	entries := []Entry{
		{Ref: "cargo/foo", Level: semver.Minor},
		{Ref: "bar", Level: semver.Major, Tag: "Breaking"},
	}
	rendered := Render(entries, "feat: something\n")
	cs, err := Parse(rendered)
	if err != nil {
		t.Fatalf("Parse(Render(...)): %v", err)
	}
	if len(cs.Entries) != 2 {
		t.Fatalf("Entries = %v, want 2", cs.Entries)
	}
	if cs.Entries[0] != entries[0] {
		t.Errorf("Entries[0] = %+v, want %+v", cs.Entries[0], entries[0])
	}
	if cs.Entries[1] != entries[1] {
		t.Errorf("Entries[1] = %+v, want %+v", cs.Entries[1], entries[1])
	}
	if cs.Body != "feat: something\n" {
		t.Errorf("Body = %q", cs.Body)
	}
}

func TestResolveAmbiguousFailsHard(t *testing.T) {
	w := workspace.NewTestWorkspace(map[workspace.PackageId]bool{
		workspace.NewPackageId("cargo", "foo"): true,
		workspace.NewPackageId("npm", "foo"):   true,
	})
	cs, err := Parse("---\nfoo: minor\n---\n\nbody\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Resolve(cs, w); err == nil {
		t.Fatalf("expected AmbiguousPackage error")
	}
}

func TestResolveFailsOnUnknownPackage(t *testing.T) {
	w := workspace.NewTestWorkspace(map[workspace.PackageId]bool{
		workspace.NewPackageId("cargo", "foo"): true,
	})
	cs, err := Parse("---\nfoo: minor\nghost: patch\n---\n\nbody\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Resolve(cs, w); err == nil {
		t.Fatalf("expected UnknownPackage error for ghost")
	}
}

func TestResolveSkipsIgnoredButKeepsActive(t *testing.T) {
	w := workspace.NewTestWorkspaceWithIgnored(
		map[workspace.PackageId]bool{
			workspace.NewPackageId("cargo", "foo"): true,
		},
		map[workspace.PackageId]bool{
			workspace.NewPackageId("cargo", "internal-tool"): true,
		},
	)
	cs, err := Parse("---\nfoo: minor\ninternal-tool: patch\n---\n\nbody\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	res, err := Resolve(cs, w)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Active) != 1 || res.Active[0].ID != workspace.NewPackageId("cargo", "foo") {
		t.Fatalf("Active = %v", res.Active)
	}
	if res.AllActive {
		t.Errorf("AllActive = true, want false (internal-tool was filtered by ignore rules)")
	}
}

func TestStoreConsumeStableModeDeletes(t *testing.T) {
	root := t.TempDir()
	store := NewStore(filepath.Join(root, ".sampo"))
	path, err := store.Emit([]Entry{{Ref: "foo", Level: semver.Patch}}, "fix: x\n")
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := store.Consume(path, false); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected changeset to be deleted in stable mode")
	}
}

func TestStoreConsumePrereleaseModeMovesAndRestores(t *testing.T) {
	root := t.TempDir()
	store := NewStore(filepath.Join(root, ".sampo"))
	path, err := store.Emit([]Entry{{Ref: "foo", Level: semver.Patch}}, "fix: x\n")
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := store.Consume(path, true); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected changeset to be moved out of changesets/")
	}
	preserved, err := store.LoadPreserved()
	if err != nil {
		t.Fatalf("LoadPreserved: %v", err)
	}
	if len(preserved) != 1 {
		t.Fatalf("LoadPreserved = %v, want 1", preserved)
	}

	if err := store.RestoreAll(); err != nil {
		t.Fatalf("RestoreAll: %v", err)
	}
	pending, err := store.LoadPending()
	if err != nil {
		t.Fatalf("LoadPending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("LoadPending after restore = %v, want 1", pending)
	}
	preserved, err = store.LoadPreserved()
	if err != nil {
		t.Fatalf("LoadPreserved: %v", err)
	}
	if len(preserved) != 0 {
		t.Fatalf("LoadPreserved after restore = %v, want 0", preserved)
	}
}

func TestLoadPendingMissingDirIsEmpty(t *testing.T) {
	root := t.TempDir()
	store := NewStore(filepath.Join(root, ".sampo"))
	pending, err := store.LoadPending()
	if err != nil {
		t.Fatalf("LoadPending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("LoadPending = %v, want empty", pending)
	}
}
