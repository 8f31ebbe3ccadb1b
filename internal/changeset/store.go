package changeset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bruits/sampo/internal/manifestio"
	"github.com/bruits/sampo/internal/sampoerr"
)

// Store reads and mutates the changeset files under a workspace's .sampo
// directory. Its changesets subdirectory holds changesets awaiting release;
// its prerelease subdirectory holds changesets consumed during prerelease
// mode, pending
// restoration when the workspace exits or switches prerelease label.
type Store struct {
	SampoDir string
}

// NewStore returns a Store rooted at the given .sampo directory.
func NewStore(sampoDir string) *Store {
	return &Store{SampoDir: sampoDir}
}

func (s *Store) pendingDir() string   { return filepath.Join(s.SampoDir, "changesets") }
func (s *Store) preservedDir() string { return filepath.Join(s.SampoDir, "prerelease") }

// Loaded pairs a parsed Changeset with the absolute path it was read from.
type Loaded struct {
	Changeset *Changeset
	Path      string
}

// LoadPending scans .sampo/changesets/*.md.
func (s *Store) LoadPending() ([]Loaded, error) {
	return loadDir(s.pendingDir())
}

// LoadPreserved scans .sampo/prerelease/*.md.
func (s *Store) LoadPreserved() ([]Loaded, error) {
	return loadDir(s.preservedDir())
}

func loadDir(dir string) ([]Loaded, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, sampoerr.Wrap(sampoerr.KindIO, "reading "+dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var out []Loaded
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, sampoerr.Wrap(sampoerr.KindIO, "reading "+path, err).WithFile(path)
		}
		cs, err := Parse(string(data))
		if err != nil {
			if e, ok := err.(*sampoerr.Error); ok {
				return nil, e.WithFile(path)
			}
			return nil, err
		}
		cs.Path = path
		out = append(out, Loaded{Changeset: cs, Path: path})
	}
	return out, nil
}

// Emit writes a new changeset file under .sampo/changesets with an opaque
// generated name and returns its absolute path.
func (s *Store) Emit(entries []Entry, body string) (string, error) {
	dir := s.pendingDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", sampoerr.Wrap(sampoerr.KindIO, "creating "+dir, err)
	}
	path := filepath.Join(dir, NewFileName())
	if err := manifestio.AtomicWriteFile(path, []byte(Render(entries, body))); err != nil {
		return "", sampoerr.Wrap(sampoerr.KindIO, "writing "+path, err).WithFile(path)
	}
	return path, nil
}

// Consume disposes of a changeset file after it has been applied: deleted
// outright in stable mode, or moved into .sampo/prerelease for later
// restoration when prerelease is true.
func (s *Store) Consume(path string, prerelease bool) error {
	if !prerelease {
		if err := os.Remove(path); err != nil {
			return sampoerr.Wrap(sampoerr.KindIO, "removing "+path, err).WithFile(path)
		}
		return nil
	}

	dir := s.preservedDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return sampoerr.Wrap(sampoerr.KindIO, "creating "+dir, err)
	}
	dest := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return sampoerr.Wrap(sampoerr.KindIO, fmt.Sprintf("moving %s to %s", path, dest), err).WithFile(path)
	}
	return nil
}

// RestoreAll moves every file in .sampo/prerelease back to
// .sampo/changesets, used when the prerelease controller exits or
// switches label.
func (s *Store) RestoreAll() error {
	preserved, err := os.ReadDir(s.preservedDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return sampoerr.Wrap(sampoerr.KindIO, "reading "+s.preservedDir(), err)
	}

	dir := s.pendingDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return sampoerr.Wrap(sampoerr.KindIO, "creating "+dir, err)
	}

	for _, e := range preserved {
		if e.IsDir() {
			continue
		}
		src := filepath.Join(s.preservedDir(), e.Name())
		dest := filepath.Join(dir, e.Name())
		if err := os.Rename(src, dest); err != nil {
			return sampoerr.Wrap(sampoerr.KindIO, fmt.Sprintf("restoring %s to %s", src, dest), err).WithFile(src)
		}
	}
	return nil
}
