// Package prerelease persists and mutates the workspace's pre-release
// mode: entering a label moves every subsequent planned bump onto a
// "<version>-<label>" line, exiting restores the changesets that releases
// made in pre-release mode preserved and strips the label back off. State is a small JSON
// document under .sampo/prerelease.json, marshaled with
// json.MarshalIndent and written through manifestio's atomic write.
package prerelease

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/bruits/sampo/internal/changeset"
	"github.com/bruits/sampo/internal/manifestio"
	"github.com/bruits/sampo/internal/sampoerr"
	"github.com/bruits/sampo/internal/semver"
	"github.com/bruits/sampo/internal/workspace"
)

// State is the persisted contents of .sampo/prerelease.json.
type State struct {
	Active   bool     `json:"active"`
	Label    string   `json:"label"`
	Packages []string `json:"packages"`
}

// Controller manages the pre-release sidecar state and the changeset
// preserve/restore dance backing Enter/Exit/Switch.
type Controller struct {
	SampoDir string
	Store    *changeset.Store
}

// New returns a Controller rooted at sampoDir (the workspace's .sampo
// directory).
func New(sampoDir string) *Controller {
	return &Controller{SampoDir: sampoDir, Store: changeset.NewStore(sampoDir)}
}

func (c *Controller) statePath() string { return filepath.Join(c.SampoDir, "prerelease.json") }

// Load reads the current pre-release state, returning the zero State
// (Active: false) if no sidecar file exists yet.
func (c *Controller) Load() (State, error) {
	data, err := os.ReadFile(c.statePath())
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, sampoerr.Wrap(sampoerr.KindIO, "reading prerelease state", err).WithFile(c.statePath())
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, sampoerr.Wrap(sampoerr.KindInvalidConfig, "parsing prerelease state", err).WithFile(c.statePath())
	}
	return st, nil
}

func (c *Controller) save(st State) error {
	if err := os.MkdirAll(c.SampoDir, 0o755); err != nil {
		return sampoerr.Wrap(sampoerr.KindIO, "creating "+c.SampoDir, err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return sampoerr.Wrap(sampoerr.KindIO, "encoding prerelease state", err)
	}
	data = append(data, '\n')
	if err := manifestio.AtomicWriteFile(c.statePath(), data); err != nil {
		return sampoerr.Wrap(sampoerr.KindIO, "writing prerelease state", err).WithFile(c.statePath())
	}
	return nil
}

func (c *Controller) clear() error {
	if err := os.Remove(c.statePath()); err != nil && !os.IsNotExist(err) {
		return sampoerr.Wrap(sampoerr.KindIO, "removing prerelease state", err).WithFile(c.statePath())
	}
	return nil
}

// PackageTransition is one package's version move under Enter/Exit/Switch,
// for the caller to apply via the matching ecosystem adapter's WriteVersion.
type PackageTransition struct {
	ID   workspace.PackageId
	From string
	To   string
}

// Enter activates pre-release mode with the given label over the named
// packages (all workspace packages if ids is empty), computing each
// package's entry point onto the prerelease line: bump(current, patch)
// then attach the label. Entering while already
// active is rejected; use Switch to change label.
func (c *Controller) Enter(ws *workspace.Workspace, label string, ids []workspace.PackageId) ([]PackageTransition, error) {
	if err := semver.ValidLabel(label); err != nil {
		return nil, sampoerr.Wrap(sampoerr.KindInvalidConfig, "invalid pre-release label", err)
	}

	current, err := c.Load()
	if err != nil {
		return nil, err
	}
	if current.Active {
		return nil, sampoerr.New(sampoerr.KindInvalidConfig, "pre-release mode is already active; use Switch to change label")
	}

	targets, err := resolveTargets(ws, ids)
	if err != nil {
		return nil, err
	}

	transitions := make([]PackageTransition, 0, len(targets))
	for _, id := range targets {
		pkg, _ := ws.Get(id)
		cur, err := semver.Parse(pkg.Version)
		if err != nil {
			return nil, sampoerr.Wrap(sampoerr.KindInvalidVersion, "parsing current version of "+string(id), err).WithPackage(string(id))
		}
		next := semver.AttachPrerelease(semver.Bump(cur, semver.Patch), label)
		transitions = append(transitions, PackageTransition{ID: id, From: pkg.Version, To: next.String()})
	}

	if err := c.save(State{Active: true, Label: label, Packages: idStrings(targets)}); err != nil {
		return nil, err
	}
	return transitions, nil
}

// Exit deactivates pre-release mode: every tracked package's pre-release
// tag is stripped back to its stable core, and changesets preserved by
// releases made in pre-release mode are restored to .sampo/changesets.
func (c *Controller) Exit(ws *workspace.Workspace) ([]PackageTransition, error) {
	current, err := c.Load()
	if err != nil {
		return nil, err
	}
	if !current.Active {
		return nil, sampoerr.New(sampoerr.KindInvalidConfig, "pre-release mode is not active")
	}

	transitions := make([]PackageTransition, 0, len(current.Packages))
	for _, raw := range current.Packages {
		id := workspace.PackageId(raw)
		pkg, ok := ws.Get(id)
		if !ok {
			continue
		}
		cur, err := semver.Parse(pkg.Version)
		if err != nil {
			return nil, sampoerr.Wrap(sampoerr.KindInvalidVersion, "parsing current version of "+raw, err).WithPackage(raw)
		}
		next := semver.StripPrerelease(cur)
		transitions = append(transitions, PackageTransition{ID: id, From: pkg.Version, To: next.String()})
	}

	if err := c.Store.RestoreAll(); err != nil {
		return nil, err
	}
	if err := c.clear(); err != nil {
		return nil, err
	}
	return transitions, nil
}

// Switch exits the active label and immediately enters newLabel over the
// same tracked package set, restoring
// preserved changesets in between so the new label's plans see them again.
func (c *Controller) Switch(ws *workspace.Workspace, newLabel string) ([]PackageTransition, error) {
	current, err := c.Load()
	if err != nil {
		return nil, err
	}
	if !current.Active {
		return nil, sampoerr.New(sampoerr.KindInvalidConfig, "pre-release mode is not active; use Enter")
	}
	ids := make([]workspace.PackageId, 0, len(current.Packages))
	for _, raw := range current.Packages {
		ids = append(ids, workspace.PackageId(raw))
	}

	if _, err := c.Exit(ws); err != nil {
		return nil, err
	}
	return c.Enter(ws, newLabel, ids)
}

func resolveTargets(ws *workspace.Workspace, ids []workspace.PackageId) ([]workspace.PackageId, error) {
	if len(ids) == 0 {
		out := make([]workspace.PackageId, 0, ws.Len())
		for _, pkg := range ws.Packages() {
			out = append(out, pkg.ID)
		}
		return out, nil
	}
	out := make([]workspace.PackageId, 0, len(ids))
	for _, id := range ids {
		if _, ok := ws.Get(id); !ok {
			return nil, sampoerr.New(sampoerr.KindUnknownPackage, "unknown package "+string(id)).WithPackage(string(id))
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func idStrings(ids []workspace.PackageId) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
