package planner

import (
	"github.com/bruits/sampo/internal/config"
	"github.com/bruits/sampo/internal/semver"
	"github.com/bruits/sampo/internal/workspace"
)

// packageState accumulates a package's planned level, the reason it was
// last assigned, and the changeset paths that contributed to it.
type packageState struct {
	level    semver.Level
	reason   Reason
	explicit bool // has at least one direct changeset entry
	sources  map[string]bool
}

// computeBumps applies direct bumps from contributions, then repeatedly
// propagates cascade/linked/fixed effects until no state changes.
func computeBumps(ws *workspace.Workspace, cfg config.Config, contributions []Contribution) map[workspace.PackageId]*packageState {
	states := make(map[workspace.PackageId]*packageState, ws.Len())
	for _, pkg := range ws.Packages() {
		states[pkg.ID] = &packageState{}
	}

	for _, c := range contributions {
		for _, e := range c.Entries {
			st, ok := states[e.ID]
			if !ok {
				continue
			}
			st.level = semver.Join(st.level, e.Level)
			st.explicit = true
			if st.reason == "" {
				st.reason = Direct
			}
			if st.sources == nil {
				st.sources = map[string]bool{}
			}
			st.sources[c.Path] = true
		}
	}

	order := ws.Graph().ReverseDependencyOrder()

	maxIterations := 4*len(states) + 1
	for i := 0; i < maxIterations; i++ {
		changed := cascadePass(ws, order, states)
		changed = linkedPass(ws, cfg.Packages.Linked, states) || changed
		changed = fixedPass(cfg.Packages.Fixed, states) || changed
		if !changed {
			break
		}
	}

	return states
}

// cascadePass bumps every untouched package with a patch, reason Cascade,
// once any of its internal dependencies has a planned bump. Cascade never downgrades: a package that already has a level
// from a direct entry or an earlier pass is left alone.
func cascadePass(ws *workspace.Workspace, order []string, states map[workspace.PackageId]*packageState) bool {
	changed := false
	for _, idStr := range order {
		id := workspace.PackageId(idStr)
		pkg, ok := ws.Get(id)
		if !ok {
			continue
		}
		st := states[id]
		if st.level != semver.None {
			continue
		}
		for _, dep := range pkg.Dependencies {
			if depSt := states[dep.Target]; depSt != nil && depSt.level != semver.None {
				st.level = semver.Patch
				st.reason = Cascade
				changed = true
				break
			}
		}
	}
	return changed
}

// linkedPass raises every "affected" member of a linked group to the
// group's current join-level. A member is affected when
// it carries a direct changeset entry or depends internally on another
// bumped member of the same group; members outside that set are left
// untouched even if other members of the group move.
func linkedPass(ws *workspace.Workspace, groups [][]string, states map[workspace.PackageId]*packageState) bool {
	changed := false
	for _, group := range groups {
		ids := toIDs(group)
		members := toSet(ids)

		var floor semver.Level
		var affected []workspace.PackageId
		for _, id := range ids {
			st := states[id]
			if st == nil {
				continue
			}
			if isAffectedByGroup(ws, id, members, states) {
				affected = append(affected, id)
				floor = semver.Join(floor, st.level)
			}
		}
		if floor == semver.None {
			continue
		}
		for _, id := range affected {
			st := states[id]
			if st.level < floor {
				st.level = floor
				st.reason = LinkedGroup
				changed = true
			}
		}
	}
	return changed
}

func isAffectedByGroup(ws *workspace.Workspace, id workspace.PackageId, group map[workspace.PackageId]bool, states map[workspace.PackageId]*packageState) bool {
	st := states[id]
	if st.explicit {
		return true
	}
	if st.level == semver.None {
		return false
	}
	pkg, ok := ws.Get(id)
	if !ok {
		return false
	}
	for _, dep := range pkg.Dependencies {
		if !group[dep.Target] {
			continue
		}
		if depSt := states[dep.Target]; depSt != nil && depSt.level != semver.None {
			return true
		}
	}
	return false
}

// fixedPass equalizes every member of a fixed group to the group's current
// join-level, regardless of whether a member is individually affected
//. A raised member without a direct changeset entry of
// its own (untouched before this pass, or bumped only by cascade) is
// labeled FixedGroup; a member with a direct entry keeps its reason even as
// its level rises to match the group.
func fixedPass(groups [][]string, states map[workspace.PackageId]*packageState) bool {
	changed := false
	for _, group := range groups {
		ids := toIDs(group)

		var floor semver.Level
		any := false
		for _, id := range ids {
			if st := states[id]; st != nil && st.level != semver.None {
				any = true
				floor = semver.Join(floor, st.level)
			}
		}
		if !any {
			continue
		}
		for _, id := range ids {
			st := states[id]
			if st == nil || st.level >= floor {
				continue
			}
			wasUntouched := st.level == semver.None
			st.level = floor
			if wasUntouched || !st.explicit {
				st.reason = FixedGroup
			}
			changed = true
		}
	}
	return changed
}

func toSet(ids []workspace.PackageId) map[workspace.PackageId]bool {
	out := make(map[workspace.PackageId]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
