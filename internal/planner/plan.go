// Package planner computes the deterministic ReleasePlan that fuses
// pending changesets with fixed/linked group policy and cascade
// propagation over the internal dependency graph. The fixpoint
// iteration repeatedly widens each package's bump level until no
// propagation step changes anything, over the finite four-valued
// None < Patch < Minor < Major lattice, so it always terminates.
package planner

import (
	"fmt"
	"sort"

	"github.com/bruits/sampo/internal/adapters"
	"github.com/bruits/sampo/internal/changeset"
	"github.com/bruits/sampo/internal/config"
	"github.com/bruits/sampo/internal/sampoerr"
	"github.com/bruits/sampo/internal/semver"
	"github.com/bruits/sampo/internal/workspace"
)

// Reason explains why a package received its planned bump.
type Reason string

const (
	Direct                 Reason = "Direct"
	Cascade                Reason = "Cascade"
	FixedGroup             Reason = "FixedGroup"
	LinkedGroup            Reason = "LinkedGroup"
	PrereleaseContinuation Reason = "PrereleaseContinuation"
)

// PlanEntry is one package's planned version transition.
type PlanEntry struct {
	ID      workspace.PackageId
	From    string
	To      string
	Level   semver.Level
	Reason  Reason
	Sources []string // contributing changeset paths, sorted
}

// RequirementUpdate is a dependency requirement rewrite the plan requires
// to keep a downstream consumer's manifest consistent with a bumped
// dependency.
type RequirementUpdate struct {
	PackageID      workspace.PackageId
	DependencyName string
	Inherited      bool
	NewRequirement string
}

// Severity classifies a Diagnostic.
type Severity string

const (
	Warning     Severity = "warning"
	Information Severity = "info"
)

// Diagnostic is a non-fatal observation surfaced alongside the plan.
type Diagnostic struct {
	Severity Severity
	Message  string
}

// ReleasePlan is the full output of a planning pass: version transitions,
// manifest dependency rewrites, and non-fatal diagnostics.
type ReleasePlan struct {
	Entries            []PlanEntry
	RequirementUpdates []RequirementUpdate
	Diagnostics        []Diagnostic
}

// Contribution pairs a changeset's resolved active entries with the
// source path used for Sources attribution and later consumption.
type Contribution struct {
	Path    string
	Entries []changeset.ActiveEntry
}

// PrereleaseContext carries the minimal state the planner needs from the
// pre-release controller.
type PrereleaseContext struct {
	Active bool
	Label  string
}

// Plan computes a ReleasePlan over ws given cfg's group policies and the
// resolved changeset contributions. No file is
// mutated; on any error the caller must not apply anything.
func Plan(ws *workspace.Workspace, registry *adapters.Registry, cfg config.Config, contributions []Contribution, prerelease PrereleaseContext) (*ReleasePlan, error) {
	if err := validateGroups(ws, cfg); err != nil {
		return nil, err
	}

	states := computeBumps(ws, cfg, contributions)

	plan := &ReleasePlan{}

	groupOf := map[workspace.PackageId]map[workspace.PackageId]bool{}
	registerGroups(cfg.Packages.Fixed, groupOf)
	registerGroups(cfg.Packages.Linked, groupOf)

	toVersions := map[workspace.PackageId]semver.Version{}

	packages := ws.Packages()
	for _, pkg := range packages {
		st := states[pkg.ID]
		if st.level == semver.None {
			continue
		}
		current, err := semver.Parse(pkg.Version)
		if err != nil {
			return nil, sampoerr.Wrap(sampoerr.KindInvalidVersion, "parsing current version of "+string(pkg.ID), err).WithPackage(string(pkg.ID))
		}

		next := semver.Bump(current, st.level)
		reason := st.reason
		if prerelease.Active {
			if current.Pre == nil || current.Pre.Label != prerelease.Label {
				next = semver.AttachPrerelease(next, prerelease.Label)
			} else if next.Major == current.Major && next.Minor == current.Minor && next.Patch == current.Patch {
				// Bump only continued the active label's numeric suffix
				// (semver.Bump's pre-release branch); reflect that in the
				// reason rather than the triggering contribution.
				reason = PrereleaseContinuation
			}
		}
		if semver.Compare(next, current) == 0 {
			continue
		}
		toVersions[pkg.ID] = next

		var sources []string
		for s := range st.sources {
			sources = append(sources, s)
		}
		sort.Strings(sources)

		plan.Entries = append(plan.Entries, PlanEntry{
			ID:      pkg.ID,
			From:    current.String(),
			To:      next.String(),
			Level:   st.level,
			Reason:  reason,
			Sources: sources,
		})
	}
	sort.Slice(plan.Entries, func(i, j int) bool { return plan.Entries[i].ID < plan.Entries[j].ID })

	for _, pkg := range packages {
		for _, dep := range pkg.Dependencies {
			newVersion, bumped := toVersions[dep.Target]
			if !bumped || dep.PathOnly {
				continue
			}
			adapter, err := registry.Get(pkg.Ecosystem)
			if err != nil {
				return nil, sampoerr.Wrap(sampoerr.KindIO, "resolving adapter for "+pkg.Ecosystem, err)
			}

			outcome := adapter.ValidateConstraint(dep.Requirement, newVersion.String())
			switch outcome {
			case adapters.Satisfies:
				continue

			case adapters.Violates:
				plan.Diagnostics = append(plan.Diagnostics, Diagnostic{
					Severity: Warning,
					Message:  fmt.Sprintf("%s's requirement on %s (%q) is violated by %s", pkg.ID, dep.Target, dep.Requirement, newVersion),
				})
				newReq, ok := adapters.RewriteRequirement(dep.Requirement, newVersion.String())
				if !ok {
					// The requirement dialect (a union range, for instance)
					// cannot be mechanically rewritten while preserving its
					// operator style. When consistency with B is
					// structurally required — A and B share a fixed/linked
					// group, or A's own bump exists only because it
					// cascaded — that is unsafe to leave unresolved.
					if sameGroup(groupOf, pkg.ID, dep.Target) || states[pkg.ID].reason == Cascade {
						return nil, sampoerr.New(sampoerr.KindConstraintViolated,
							fmt.Sprintf("%s's requirement on %s (%q) cannot be safely rewritten for %s", pkg.ID, dep.Target, dep.Requirement, newVersion)).
							WithPackage(string(pkg.ID))
					}
					plan.Diagnostics = append(plan.Diagnostics, Diagnostic{
						Severity: Information,
						Message:  fmt.Sprintf("%s's requirement on %s could not be rewritten; left untouched", pkg.ID, dep.Target),
					})
					continue
				}
				plan.RequirementUpdates = append(plan.RequirementUpdates, RequirementUpdate{
					PackageID: pkg.ID, DependencyName: dep.Target.Name(), Inherited: dep.Inherited, NewRequirement: newReq,
				})

			case adapters.Unknown:
				plan.Diagnostics = append(plan.Diagnostics, Diagnostic{
					Severity: Information,
					Message:  fmt.Sprintf("%s's requirement on %s could not be classified; inspect manually", pkg.ID, dep.Target),
				})
				if parsed, ok := adapters.ParseSimpleRequirement(dep.Requirement); ok && parsed.IsExactPin() {
					plan.RequirementUpdates = append(plan.RequirementUpdates, RequirementUpdate{
						PackageID: pkg.ID, DependencyName: dep.Target.Name(), Inherited: dep.Inherited, NewRequirement: newVersion.String(),
					})
				}
			}
		}
	}

	sort.Slice(plan.RequirementUpdates, func(i, j int) bool {
		if plan.RequirementUpdates[i].PackageID != plan.RequirementUpdates[j].PackageID {
			return plan.RequirementUpdates[i].PackageID < plan.RequirementUpdates[j].PackageID
		}
		return plan.RequirementUpdates[i].DependencyName < plan.RequirementUpdates[j].DependencyName
	})

	return plan, nil
}

// validateGroups enforces : unknown PackageIds in any
// group, or a package claimed by more than one group, fail before any
// bump is computed.
func validateGroups(ws *workspace.Workspace, cfg config.Config) error {
	seen := map[workspace.PackageId]string{}
	check := func(groups [][]string, kind string) error {
		for _, group := range groups {
			for _, raw := range group {
				id := workspace.PackageId(raw)
				if _, ok := ws.Get(id); !ok {
					return sampoerr.New(sampoerr.KindInvalidConfig, fmt.Sprintf("group references unknown package %q", raw))
				}
				if owner, dup := seen[id]; dup {
					return sampoerr.New(sampoerr.KindInvalidConfig, fmt.Sprintf("package %q appears in more than one group (already in %s)", raw, owner))
				}
				seen[id] = kind
			}
		}
		return nil
	}
	if err := check(cfg.Packages.Fixed, "a fixed group"); err != nil {
		return err
	}
	return check(cfg.Packages.Linked, "a linked group")
}

func registerGroups(groups [][]string, out map[workspace.PackageId]map[workspace.PackageId]bool) {
	for _, group := range groups {
		ids := toIDs(group)
		for _, id := range ids {
			if out[id] == nil {
				out[id] = map[workspace.PackageId]bool{}
			}
			for _, other := range ids {
				out[id][other] = true
			}
		}
	}
}

func sameGroup(groupOf map[workspace.PackageId]map[workspace.PackageId]bool, a, b workspace.PackageId) bool {
	set := groupOf[a]
	return set != nil && set[b]
}

func toIDs(raw []string) []workspace.PackageId {
	out := make([]workspace.PackageId, len(raw))
	for i, r := range raw {
		out[i] = workspace.PackageId(r)
	}
	return out
}
