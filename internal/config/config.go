// Package config provides a typed view of .sampo/config.toml, with
// pattern-based ignore matching for workspace packages.
// Loading uses viper's layering (file, then environment override) over
// a nested [git]/[github]/[changelog]/[packages]/[changesets] schema.
package config

import (
	"fmt"
	"path"
	"strings"

	"github.com/spf13/viper"
)

// GitConfig controls branch-allow-list checks.
type GitConfig struct {
	DefaultBranch    string   `mapstructure:"default_branch"`
	ReleaseBranches  []string `mapstructure:"release_branches"`
}

// GitHubConfig names the repository changelog entries link against.
type GitHubConfig struct {
	Repository string `mapstructure:"repository"`
}

// ChangelogConfig controls section rendering.
type ChangelogConfig struct {
	ShowCommitHash       bool   `mapstructure:"show_commit_hash"`
	ShowAcknowledgments  bool   `mapstructure:"show_acknowledgments"`
	ShowReleaseDate      bool   `mapstructure:"show_release_date"`
	ReleaseDateFormat    string `mapstructure:"release_date_format"`
	ReleaseDateTimezone  string `mapstructure:"release_date_timezone"`
}

// PackagesConfig controls workspace discovery's ignore filtering and the
// fixed/linked group policies the planner enforces.
type PackagesConfig struct {
	IgnoreUnpublished bool       `mapstructure:"ignore_unpublished"`
	Ignore            []string   `mapstructure:"ignore"`
	Fixed             [][]string `mapstructure:"fixed"`
	Linked            [][]string `mapstructure:"linked"`
}

// ChangesetsConfig lists the tag names changesets may attach to a bump.
type ChangesetsConfig struct {
	Tags []string `mapstructure:"tags"`
}

// Config is the typed view of .sampo/config.toml. Every field is optional
// with the defaults set in Load.
type Config struct {
	Git        GitConfig        `mapstructure:"git"`
	GitHub     GitHubConfig     `mapstructure:"github"`
	Changelog  ChangelogConfig  `mapstructure:"changelog"`
	Packages   PackagesConfig   `mapstructure:"packages"`
	Changesets ChangesetsConfig `mapstructure:"changesets"`
}

// Load reads .sampo/config.toml under root, applying built-in defaults for
// any value the file or environment does not set. SAMPO_RELEASE_BRANCH
// overrides the release-branch allow-list check at plan/release time (see
// AllowsBranch), not at load time, so it is read by the caller rather than
// folded into Config here.
func Load(root string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(root + "/.sampo")

	v.SetDefault("git.default_branch", "main")
	v.SetDefault("git.release_branches", []string{})
	v.SetDefault("github.repository", "")
	v.SetDefault("changelog.show_commit_hash", true)
	v.SetDefault("changelog.show_acknowledgments", true)
	v.SetDefault("changelog.show_release_date", true)
	v.SetDefault("changelog.release_date_format", "%Y-%m-%d")
	v.SetDefault("changelog.release_date_timezone", "")
	v.SetDefault("packages.ignore_unpublished", false)
	v.SetDefault("packages.ignore", []string{})
	v.SetDefault("packages.fixed", [][]string{})
	v.SetDefault("packages.linked", [][]string{})
	v.SetDefault("changesets.tags", []string{})

	v.SetEnvPrefix("SAMPO")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config: reading .sampo/config.toml: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing .sampo/config.toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces that a package appears in at most one of fixed/linked
//, returning *InvalidConfiguration-shaped errors via the
// caller's error taxonomy (callers wrap with sampoerr; kept dependency-free
// here to avoid an import cycle with the package that will eventually
// depend on config for branch-allow-list checks).
func (c Config) Validate() error {
	seen := make(map[string]string)
	for _, group := range c.Packages.Fixed {
		for _, id := range group {
			if owner, ok := seen[id]; ok {
				return fmt.Errorf("config: package %q appears in both %s and fixed group", id, owner)
			}
			seen[id] = "a fixed"
		}
	}
	for _, group := range c.Packages.Linked {
		for _, id := range group {
			if owner, ok := seen[id]; ok {
				return fmt.Errorf("config: package %q appears in both %s and linked group", id, owner)
			}
			seen[id] = "a linked"
		}
	}
	return nil
}

// AllowsBranch reports whether branch is permitted to release, per
// : release_branches is augmented with default_branch, and
// branchOverride (the caller's resolved SAMPO_RELEASE_BRANCH value, empty
// if unset) takes precedence over the detected branch when checking
// membership.
func (c Config) AllowsBranch(branch, branchOverride string) bool {
	allowed := append([]string{c.Git.DefaultBranch}, c.Git.ReleaseBranches...)
	candidate := branch
	if branchOverride != "" {
		candidate = branchOverride
	}
	for _, b := range allowed {
		if b == candidate {
			return true
		}
	}
	return false
}

// MatchesIgnore reports whether any of id, plainName, relManifestPath, or
// the directory holding relManifestPath matches one of the packages.ignore
// glob patterns.
func (c Config) MatchesIgnore(id, plainName, relManifestPath string) bool {
	for _, pattern := range c.Packages.Ignore {
		for _, candidate := range []string{id, plainName, relManifestPath, path.Dir(relManifestPath)} {
			if ok, err := path.Match(pattern, candidate); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// GroupFor returns the fixed or linked group containing id, and which kind
// it is ("fixed" or "linked"), or ok=false if id is in neither.
func (c Config) GroupFor(id string) (members []string, kind string, ok bool) {
	for _, group := range c.Packages.Fixed {
		if containsID(group, id) {
			return group, "fixed", true
		}
	}
	for _, group := range c.Packages.Linked {
		if containsID(group, id) {
			return group, "linked", true
		}
	}
	return nil, "", false
}

func containsID(group []string, id string) bool {
	for _, g := range group {
		if g == id {
			return true
		}
	}
	return false
}

// ValidTag reports whether tag is declared in changesets.tags, or is empty
// (tags are optional on a changeset entry). When changesets.tags is empty,
// every tag is accepted.
func (c Config) ValidTag(tag string) bool {
	if tag == "" {
		return true
	}
	for _, t := range c.Changesets.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return len(c.Changesets.Tags) == 0
}
