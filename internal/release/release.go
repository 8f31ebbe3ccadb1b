// Package release is the top-level facade wiring every other component
// into two operations: Plan (read-only) and Release (plan + apply). Each
// calls straight into its own internal entry point rather than
// re-implementing orchestration in cmd/.
package release

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/bruits/sampo/internal/adapters"
	"github.com/bruits/sampo/internal/changelog"
	"github.com/bruits/sampo/internal/changeset"
	"github.com/bruits/sampo/internal/config"
	"github.com/bruits/sampo/internal/manifestio"
	"github.com/bruits/sampo/internal/planner"
	"github.com/bruits/sampo/internal/prerelease"
	"github.com/bruits/sampo/internal/sampoerr"
	"github.com/bruits/sampo/internal/vcs"
	"github.com/bruits/sampo/internal/workspace"
)

// Context bundles the loaded workspace state a Plan or Release call
// operates over, so callers (tests, the CLI) can inspect it after the
// fact without re-discovering anything.
type Context struct {
	Root      string
	Config    config.Config
	Registry  *adapters.Registry
	Workspace *workspace.Workspace
	Store     *changeset.Store
	Prelease  *prerelease.Controller

	loaded []changeset.Loaded
}

// Load discovers the workspace rooted at root and loads its configuration
// and pending changesets; their PackageRefs are resolved later, by Plan and
// Release. It is the shared first step of both.
func Load(root string) (*Context, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	registry := adapters.Default()
	ws, err := workspace.Discover(root, registry, cfg)
	if err != nil {
		return nil, err
	}
	sampoDir := filepath.Join(root, ".sampo")
	store := changeset.NewStore(sampoDir)
	loaded, err := store.LoadPending()
	if err != nil {
		return nil, err
	}
	return &Context{
		Root:      root,
		Config:    cfg,
		Registry:  registry,
		Workspace: ws,
		Store:     store,
		Prelease:  prerelease.New(sampoDir),
		loaded:    loaded,
	}, nil
}

func (c *Context) contributions() ([]planner.Contribution, map[string][]changeset.ActiveEntry, error) {
	contributions := make([]planner.Contribution, 0, len(c.loaded))
	activeByPath := make(map[string][]changeset.ActiveEntry, len(c.loaded))
	for _, l := range c.loaded {
		res, err := changeset.Resolve(l.Changeset, c.Workspace)
		if err != nil {
			return nil, nil, err
		}
		contributions = append(contributions, planner.Contribution{Path: l.Path, Entries: res.Active})
		activeByPath[l.Path] = res.Active
	}
	return contributions, activeByPath, nil
}

// Plan computes the release plan without mutating anything.
func Plan(root string) (*Context, *planner.ReleasePlan, error) {
	ctx, err := Load(root)
	if err != nil {
		return nil, nil, err
	}
	contributions, _, err := ctx.contributions()
	if err != nil {
		return nil, nil, err
	}
	prState, err := ctx.Prelease.Load()
	if err != nil {
		return nil, nil, err
	}
	plan, err := planner.Plan(ctx.Workspace, ctx.Registry, ctx.Config, contributions, planner.PrereleaseContext{
		Active: prState.Active,
		Label:  prState.Label,
	})
	if err != nil {
		return nil, nil, err
	}
	return ctx, plan, nil
}

// Options controls a Release call's branch enforcement.
type Options struct {
	BranchOverride string // SAMPO_RELEASE_BRANCH, empty if unset
	SkipBranchCheck bool
}

// Release computes the plan and applies it: manifests and changelogs are
// rewritten, each touched ecosystem's RegenerateLockfile is called (a
// no-op in every adapter, so lockfiles are not rewritten), and consumed
// changesets are deleted (stable mode) or preserved (prerelease mode). A
// changeset that names a package dropped by ignore rules stays on disk
//.
func Release(ctx context.Context, root string, opts Options) (*planner.ReleasePlan, error) {
	rc, plan, err := Plan(root)
	if err != nil {
		return nil, err
	}

	if !opts.SkipBranchCheck {
		if err := checkBranch(ctx, root, rc.Config, opts.BranchOverride); err != nil {
			return nil, err
		}
	}

	if len(plan.Entries) == 0 {
		return plan, nil
	}

	_, activeByPath, err := rc.contributions()
	if err != nil {
		return nil, err
	}

	prState, err := rc.Prelease.Load()
	if err != nil {
		return nil, err
	}

	repoSlug := rc.Config.GitHub.Repository
	if repoSlug == "" {
		if slug, ok := vcs.RepoSlug(ctx, root); ok {
			repoSlug = slug
		}
	}

	toVersion := map[workspace.PackageId]string{}
	fromVersion := map[workspace.PackageId]string{}
	for _, e := range plan.Entries {
		toVersion[e.ID] = e.To
		fromVersion[e.ID] = e.From
	}

	touchedEcosystems := map[string]bool{}

	for _, entry := range plan.Entries {
		pkg, ok := rc.Workspace.Get(entry.ID)
		if !ok {
			continue
		}
		adapter, err := rc.Registry.Get(pkg.Ecosystem)
		if err != nil {
			return nil, sampoerr.Wrap(sampoerr.KindIO, "resolving adapter for "+string(entry.ID), err).WithPackage(string(entry.ID))
		}
		if err := adapter.WriteVersion(pkg.ManifestPath, entry.To); err != nil {
			return nil, sampoerr.Wrap(sampoerr.KindIO, "writing version for "+string(entry.ID), err).WithFile(pkg.ManifestPath)
		}
		touchedEcosystems[pkg.Ecosystem] = true

		entries, err := rc.buildChangelogEntries(ctx, root, pkg, entry, activeByPath, toVersion, repoSlug)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			if err := rc.writeChangelog(pkg, fromVersion[entry.ID], entry.To, entries); err != nil {
				return nil, err
			}
		}
	}

	for _, upd := range plan.RequirementUpdates {
		pkg, ok := rc.Workspace.Get(upd.PackageID)
		if !ok {
			continue
		}
		adapter, err := rc.Registry.Get(pkg.Ecosystem)
		if err != nil {
			return nil, sampoerr.Wrap(sampoerr.KindIO, "resolving adapter for "+string(upd.PackageID), err).WithPackage(string(upd.PackageID))
		}
		depVersion := toVersion[workspace.NewPackageId(pkg.Ecosystem, upd.DependencyName)]
		if err := adapter.WriteDependencyRequirement(rc.Root, pkg.ManifestPath, upd.DependencyName, depVersion, upd.Inherited); err != nil {
			return nil, sampoerr.Wrap(sampoerr.KindIO, "rewriting dependency requirement in "+string(upd.PackageID), err).WithFile(pkg.ManifestPath)
		}
		touchedEcosystems[pkg.Ecosystem] = true
	}

	ecosystems := make([]string, 0, len(touchedEcosystems))
	for eco := range touchedEcosystems {
		ecosystems = append(ecosystems, eco)
	}
	sort.Strings(ecosystems)
	for _, eco := range ecosystems {
		adapter, err := rc.Registry.Get(eco)
		if err != nil {
			continue
		}
		if err := adapter.RegenerateLockfile(root); err != nil {
			return nil, sampoerr.Wrap(sampoerr.KindIO, "regenerating "+eco+" lockfile", err)
		}
	}

	for _, l := range rc.loaded {
		res, err := changeset.Resolve(l.Changeset, rc.Workspace)
		if err != nil {
			return nil, err
		}
		if !res.AllActive {
			continue
		}
		if err := rc.Store.Consume(l.Path, prState.Active); err != nil {
			return nil, err
		}
	}

	return plan, nil
}

func checkBranch(ctx context.Context, root string, cfg config.Config, override string) error {
	if !vcs.Available(ctx, root) {
		return nil
	}
	branch, err := vcs.CurrentBranch(ctx, root)
	if err != nil {
		return nil
	}
	if !cfg.AllowsBranch(branch, override) {
		return sampoerr.New(sampoerr.KindBranchNotAllowed, fmt.Sprintf("branch %q is not allowed to release", branch))
	}
	return nil
}

// buildChangelogEntries assembles one package's changelog bullets: one per
// direct changeset contribution (enriched with commit attribution), plus
// dependency-cascade and fixed-group trailing lines (kept as plain,
// un-enriched Entries since they name policy outcomes, not authored
// content).
func (rc *Context) buildChangelogEntries(ctx context.Context, root string, pkg workspace.Package, entry planner.PlanEntry, activeByPath map[string][]changeset.ActiveEntry, toVersion map[workspace.PackageId]string, repoSlug string) ([]changelog.Entry, error) {
	var out []changelog.Entry

	sources := make([]string, 0, len(entry.Sources))
	sources = append(sources, entry.Sources...)
	sort.Strings(sources)
	for _, path := range sources {
		for _, active := range activeByPath[path] {
			if active.ID != entry.ID {
				continue
			}
			body := ""
			for _, l := range rc.loaded {
				if l.Path == path {
					body = l.Changeset.Body
					break
				}
			}
			info, haveInfo := vcs.LastCommitForPath(ctx, root, path)
			message := changelog.BuildMessage(body, info, haveInfo, repoSlug,
				rc.Config.Changelog.ShowCommitHash, rc.Config.Changelog.ShowAcknowledgments)
			out = append(out, changelog.Entry{Message: message, Level: active.Level, Tag: active.Tag})
		}
	}

	for _, dep := range pkg.Dependencies {
		if dep.PathOnly {
			continue
		}
		newVersion, bumped := toVersion[dep.Target]
		if !bumped {
			continue
		}
		out = append(out, changelog.Entry{
			Message: changelog.DependencyCascadeLine(string(dep.Target), newVersion),
			Level:   entry.Level,
		})
	}

	if entry.Reason == planner.FixedGroup && len(sources) == 0 {
		out = append(out, changelog.Entry{Message: changelog.FixedGroupLine, Level: entry.Level})
	}

	return out, nil
}

func (rc *Context) writeChangelog(pkg workspace.Package, oldVersion, newVersion string, entries []changelog.Entry) error {
	path := filepath.Join(pkg.Dir, "CHANGELOG.md")
	existing, _ := readOptional(path)
	date := ""
	if rc.Config.Changelog.ShowReleaseDate {
		date = releaseDate(rc.Config.Changelog.ReleaseDateFormat, rc.Config.Changelog.ReleaseDateTimezone)
	}
	rendered := changelog.Render(existing, pkg.ID.Name(), oldVersion, newVersion, date, entries, rc.Config.Changesets.Tags)
	if err := manifestio.AtomicWriteFile(path, []byte(rendered)); err != nil {
		return sampoerr.Wrap(sampoerr.KindIO, "writing "+path, err).WithFile(path)
	}
	return nil
}

func readOptional(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// releaseDate renders "now" using the changelog.release_date_format
// strftime pattern, in the configured
// timezone (the local zone if release_date_timezone is unset).
func releaseDate(format, timezone string) string {
	loc := time.Local
	if timezone != "" {
		if tz, err := time.LoadLocation(timezone); err == nil {
			loc = tz
		}
	}
	return strftime.Format(format, time.Now().In(loc))
}
