package planner

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bruits/sampo/internal/adapters"
	"github.com/bruits/sampo/internal/changeset"
	"github.com/bruits/sampo/internal/config"
	"github.com/bruits/sampo/internal/semver"
	"github.com/bruits/sampo/internal/workspace"
)

// testAdapter is a minimal adapters.Adapter stub: the planner only calls
// Ecosystem and ValidateConstraint, so discovery/parsing/writing are unused.
type testAdapter struct{ ecosystem string }

func (a testAdapter) Ecosystem() string                         { return a.ecosystem }
func (a testAdapter) Discover(string) ([]string, error)         { return nil, nil }
func (a testAdapter) Parse(string) (adapters.RawPackage, error) { return adapters.RawPackage{}, nil }
func (a testAdapter) WriteVersion(string, string) error         { return nil }
func (a testAdapter) WriteDependencyRequirement(string, string, string, string, bool) error {
	return nil
}
func (a testAdapter) RegenerateLockfile(string) error { return nil }
func (a testAdapter) ValidateConstraint(requirement, candidate string) adapters.ConstraintOutcome {
	return adapters.ValidateConstraint(requirement, candidate)
}

func registry() *adapters.Registry {
	return adapters.NewRegistry(testAdapter{ecosystem: "cargo"})
}

func pkgId(name string) workspace.PackageId { return workspace.NewPackageId("cargo", name) }

func entry(name string, level semver.Level) changeset.ActiveEntry {
	return changeset.ActiveEntry{ID: pkgId(name), Level: level}
}

func contribution(path string, entries ...changeset.ActiveEntry) Contribution {
	return Contribution{Path: path, Entries: entries}
}

func findEntry(t *testing.T, plan *ReleasePlan, id workspace.PackageId) PlanEntry {
	t.Helper()
	for _, e := range plan.Entries {
		if e.ID == id {
			return e
		}
	}
	t.Fatalf("no plan entry for %s (entries: %+v)", id, plan.Entries)
	return PlanEntry{}
}

func assertNoEntry(t *testing.T, plan *ReleasePlan, id workspace.PackageId) {
	t.Helper()
	for _, e := range plan.Entries {
		if e.ID == id {
			t.Fatalf("expected no plan entry for %s, got %+v", id, e)
		}
	}
}

// Scenario 1: A->B, B: major, no groups. B gets Direct major; A cascades
// patch; A's exact-pin requirement on B is rewritten to the new version.
func TestScenario1CascadeAndExactPinRewrite(t *testing.T) {
	w := workspace.NewTestWorkspaceFromPackages([]workspace.Package{
		{ID: pkgId("A"), Version: "1.0.0", Dependencies: []workspace.Dependency{
			{Target: pkgId("B"), Requirement: "1.0.0"},
		}},
		{ID: pkgId("B"), Version: "1.0.0"},
	})

	plan, err := Plan(w, registry(), config.Config{}, []Contribution{
		contribution("cs1.md", entry("B", semver.Major)),
	}, PrereleaseContext{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	b := findEntry(t, plan, pkgId("B"))
	if b.From != "1.0.0" || b.To != "2.0.0" || b.Reason != Direct {
		t.Errorf("B entry = %+v", b)
	}
	a := findEntry(t, plan, pkgId("A"))
	if a.From != "1.0.0" || a.To != "1.0.1" || a.Reason != Cascade {
		t.Errorf("A entry = %+v", a)
	}

	if len(plan.RequirementUpdates) != 1 {
		t.Fatalf("RequirementUpdates = %+v, want 1", plan.RequirementUpdates)
	}
	upd := plan.RequirementUpdates[0]
	if upd.PackageID != pkgId("A") || upd.DependencyName != "B" || upd.NewRequirement != "2.0.0" {
		t.Errorf("RequirementUpdates[0] = %+v", upd)
	}
}

// Scenario 2: same workspace, fixed=[[A,B]], B: major. Both land on 2.0.0,
// A labeled FixedGroup.
func TestScenario2FixedGroupEqualizes(t *testing.T) {
	w := workspace.NewTestWorkspaceFromPackages([]workspace.Package{
		{ID: pkgId("A"), Version: "1.0.0", Dependencies: []workspace.Dependency{
			{Target: pkgId("B"), Requirement: "1.0.0"},
		}},
		{ID: pkgId("B"), Version: "1.0.0"},
	})
	cfg := config.Config{Packages: config.PackagesConfig{Fixed: [][]string{{string(pkgId("A")), string(pkgId("B"))}}}}

	plan, err := Plan(w, registry(), cfg, []Contribution{
		contribution("cs1.md", entry("B", semver.Major)),
	}, PrereleaseContext{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	b := findEntry(t, plan, pkgId("B"))
	if b.To != "2.0.0" || b.Reason != Direct {
		t.Errorf("B entry = %+v", b)
	}
	a := findEntry(t, plan, pkgId("A"))
	if a.To != "2.0.0" || a.Reason != FixedGroup {
		t.Errorf("A entry = %+v", a)
	}
}

// Scenario 3a: linked=[[A,B]], A: minor alone. A bumps; B (unaffected, no
// direct request and no dependency edge onto a bumped group member) stays
// untouched.
func TestScenario3LinkedGroupUnaffectedMemberUntouched(t *testing.T) {
	w := workspace.NewTestWorkspaceFromPackages([]workspace.Package{
		{ID: pkgId("A"), Version: "1.0.0", Dependencies: []workspace.Dependency{
			{Target: pkgId("B"), Requirement: "^1.0"},
		}},
		{ID: pkgId("B"), Version: "1.0.0"},
	})
	cfg := config.Config{Packages: config.PackagesConfig{Linked: [][]string{{string(pkgId("A")), string(pkgId("B"))}}}}

	plan, err := Plan(w, registry(), cfg, []Contribution{
		contribution("cs1.md", entry("A", semver.Minor)),
	}, PrereleaseContext{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	a := findEntry(t, plan, pkgId("A"))
	if a.To != "1.1.0" || a.Reason != Direct {
		t.Errorf("A entry = %+v", a)
	}
	assertNoEntry(t, plan, pkgId("B"))
}

// Scenario 3b: same workspace, B: patch alone. A depends on B, B is a
// planned member of the linked group, so A is "affected" by the group even
// though A's own bump originates from cascade. Literal spec text: "B
// 1.0.0→1.0.1, A 1.0.0→1.0.1 (Cascade ⊔ LinkedGroup)".
func TestScenario3LinkedGroupCascadeCombination(t *testing.T) {
	w := workspace.NewTestWorkspaceFromPackages([]workspace.Package{
		{ID: pkgId("A"), Version: "1.0.0", Dependencies: []workspace.Dependency{
			{Target: pkgId("B"), Requirement: "^1.0"},
		}},
		{ID: pkgId("B"), Version: "1.0.0"},
	})
	cfg := config.Config{Packages: config.PackagesConfig{Linked: [][]string{{string(pkgId("A")), string(pkgId("B"))}}}}

	plan, err := Plan(w, registry(), cfg, []Contribution{
		contribution("cs1.md", entry("B", semver.Patch)),
	}, PrereleaseContext{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	b := findEntry(t, plan, pkgId("B"))
	if b.To != "1.0.1" || b.Reason != Direct {
		t.Errorf("B entry = %+v", b)
	}
	a := findEntry(t, plan, pkgId("A"))
	if a.To != "1.0.1" {
		t.Errorf("A entry = %+v, want To=1.0.1", a)
	}
}

// Scenario 4: prerelease mode label=alpha, X@1.2.3, changeset X: minor.
func TestScenario4PrereleaseTagging(t *testing.T) {
	w := workspace.NewTestWorkspaceFromPackages([]workspace.Package{
		{ID: pkgId("X"), Version: "1.2.3"},
	})

	plan, err := Plan(w, registry(), config.Config{}, []Contribution{
		contribution("cs1.md", entry("X", semver.Minor)),
	}, PrereleaseContext{Active: true, Label: "alpha"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	x := findEntry(t, plan, pkgId("X"))
	if x.From != "1.2.3" || x.To != "1.3.0-alpha" {
		t.Errorf("X entry = %+v", x)
	}
}

// Scenario 6: A depends on B = "^1.0"; B: major; A not in any group.
// Diagnostic warning, operator-preserving rewrite, cascade patch for A.
func TestScenario6CaretRewriteWithoutGroup(t *testing.T) {
	w := workspace.NewTestWorkspaceFromPackages([]workspace.Package{
		{ID: pkgId("A"), Version: "1.0.0", Dependencies: []workspace.Dependency{
			{Target: pkgId("B"), Requirement: "^1.0"},
		}},
		{ID: pkgId("B"), Version: "1.0.0"},
	})

	plan, err := Plan(w, registry(), config.Config{}, []Contribution{
		contribution("cs1.md", entry("B", semver.Major)),
	}, PrereleaseContext{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	a := findEntry(t, plan, pkgId("A"))
	if a.Reason != Cascade {
		t.Errorf("A.Reason = %v, want Cascade", a.Reason)
	}
	if len(plan.RequirementUpdates) != 1 || plan.RequirementUpdates[0].NewRequirement != "^2.0.0" {
		t.Fatalf("RequirementUpdates = %+v, want [{...NewRequirement: ^2.0.0}]", plan.RequirementUpdates)
	}

	hasWarning := false
	for _, d := range plan.Diagnostics {
		if d.Severity == Warning {
			hasWarning = true
		}
	}
	if !hasWarning {
		t.Errorf("expected a warning diagnostic, got %+v", plan.Diagnostics)
	}
}

// Unknown PackageIds and cross-group duplicates fail before any bump is
// computed.
func TestUnknownPackageInGroupFails(t *testing.T) {
	w := workspace.NewTestWorkspaceFromPackages([]workspace.Package{
		{ID: pkgId("A"), Version: "1.0.0"},
	})
	cfg := config.Config{Packages: config.PackagesConfig{Fixed: [][]string{{string(pkgId("A")), string(pkgId("ghost"))}}}}

	if _, err := Plan(w, registry(), cfg, nil, PrereleaseContext{}); err == nil {
		t.Fatalf("expected InvalidConfiguration error for unknown group member")
	}
}

func TestDuplicateGroupMembershipFails(t *testing.T) {
	w := workspace.NewTestWorkspaceFromPackages([]workspace.Package{
		{ID: pkgId("A"), Version: "1.0.0"},
		{ID: pkgId("B"), Version: "1.0.0"},
	})
	cfg := config.Config{Packages: config.PackagesConfig{
		Fixed:  [][]string{{string(pkgId("A")), string(pkgId("B"))}},
		Linked: [][]string{{string(pkgId("A"))}},
	}}

	if _, err := Plan(w, registry(), cfg, nil, PrereleaseContext{}); err == nil {
		t.Fatalf("expected InvalidConfiguration error for A claimed by both a fixed and a linked group")
	}
}

// Exercises the full entry set via cmp.Diff rather than field-by-field
// assertions, so a stray extra entry or a reordered slice shows up clearly.
func TestScenario1ExactEntrySet(t *testing.T) {
	w := workspace.NewTestWorkspaceFromPackages([]workspace.Package{
		{ID: pkgId("A"), Version: "1.0.0", Dependencies: []workspace.Dependency{
			{Target: pkgId("B"), Requirement: "1.0.0"},
		}},
		{ID: pkgId("B"), Version: "1.0.0"},
	})

	plan, err := Plan(w, registry(), config.Config{}, []Contribution{
		contribution("cs1.md", entry("B", semver.Major)),
	}, PrereleaseContext{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	want := []PlanEntry{
		{ID: pkgId("A"), From: "1.0.0", To: "1.0.1", Level: semver.Patch, Reason: Cascade, Sources: nil},
		{ID: pkgId("B"), From: "1.0.0", To: "2.0.0", Level: semver.Major, Reason: Direct, Sources: []string{"cs1.md"}},
	}
	if diff := cmp.Diff(want, plan.Entries); diff != "" {
		t.Errorf("plan.Entries mismatch (-want +got):\n%s", diff)
	}
}
