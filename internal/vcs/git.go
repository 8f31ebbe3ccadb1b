// Package vcs shells out to the git CLI for the small set of repository
// facts the release engine needs: the current branch, per-file commit
// attribution for changelog enrichment, and the GitHub remote slug used to
// build commit links. Every call runs via exec.CommandContext with "-C"
// pointing at the repo root. Available probes for git with LookPath first;
// the other calls capture stderr into the returned error.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Available reports whether git is on PATH and dir is inside a repository.
func Available(ctx context.Context, dir string) bool {
	if _, err := exec.LookPath("git"); err != nil {
		return false
	}
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "--git-dir")
	return cmd.Run() == nil
}

func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// CurrentBranch returns the checked-out branch name, used against
// config.AllowsBranch's release-branch allow-list.
func CurrentBranch(ctx context.Context, dir string) (string, error) {
	return run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
}

// CommitInfo is the attribution the changelog renderer attaches to an
// entry when changelog.show_commit_hash / show_acknowledgments are set.
type CommitInfo struct {
	ShortHash string
	Author    string
}

// LastCommitForPath returns the most recent commit touching path (relative
// to dir), or ok=false if the file has no history (e.g. it was never
// committed — a freshly emitted changeset).
func LastCommitForPath(ctx context.Context, dir, path string) (CommitInfo, bool) {
	out, err := run(ctx, dir, "log", "-1", "--format=%h%x1f%an", "--", path)
	if err != nil || out == "" {
		return CommitInfo{}, false
	}
	parts := strings.SplitN(out, "\x1f", 2)
	if len(parts) != 2 {
		return CommitInfo{}, false
	}
	return CommitInfo{ShortHash: parts[0], Author: parts[1]}, true
}

var githubRemote = regexp.MustCompile(`github\.com[:/]+([^/]+/[^/.\s]+)`)

// RepoSlug detects the "owner/repo" slug from the origin remote URL, used
// to build commit links when no explicit github.repository is configured.
func RepoSlug(ctx context.Context, dir string) (string, bool) {
	out, err := run(ctx, dir, "remote", "get-url", "origin")
	if err != nil {
		return "", false
	}
	m := githubRemote.FindStringSubmatch(out)
	if m == nil {
		return "", false
	}
	return strings.TrimSuffix(m[1], ".git"), true
}
