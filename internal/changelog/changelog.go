// Package changelog renders the per-package CHANGELOG.md section for a
// release. The intro/top-section split, the "is the current
// top section already published" heuristic, and the bullet-merge-then-
// replace idempotence trick are grounded on update_changelog in
// _examples/original_source's sampo-core/src/release.rs; the list-item
// indentation rule is grounded on that crate's src/markdown.rs.
package changelog

import (
	"fmt"
	"strings"

	"github.com/bruits/sampo/internal/semver"
	"github.com/bruits/sampo/internal/vcs"
)

// Entry is one changelog bullet: a rendered message tagged with the bump
// level and optional custom tag that decide which heading it lands under.
type Entry struct {
	Message string
	Level   semver.Level
	Tag     string
}

const sectionMarker = "## "

// Render computes the updated CHANGELOG.md contents for one package's
// release. existing is the current file contents ("" if none yet).
// dateDisplay is the already formatted/timezone-resolved release date, or
// "" to omit it (changelog.show_release_date = false).
func Render(existing, packageName, oldVersion, newVersion, dateDisplay string, entries []Entry, tags []string) string {
	cleaned := strings.TrimPrefix(existing, "\uFEFF")
	intro, versionsBody := splitIntroAndVersions(cleaned)
	if strings.TrimSpace(intro) == "" {
		intro = fmt.Sprintf("# %s\n\n", packageName)
	}

	order := headingOrder(tags)
	buckets := map[string][]string{}
	for _, e := range entries {
		addUnique(buckets, resolveHeading(e.Tag, e.Level, tags), e.Message)
	}

	versionsBody = mergeUnpublishedTopSection(versionsBody, oldVersion, order, buckets)

	section := buildSection(newVersion, dateDisplay, order, buckets)

	var combined strings.Builder
	combined.WriteString(intro)
	writeBlankSeparator(&combined)
	combined.WriteString(section)
	if strings.TrimSpace(versionsBody) != "" {
		writeBlankSeparator(&combined)
		combined.WriteString(versionsBody)
	}
	return combined.String()
}

// splitIntroAndVersions splits body at the first line starting with "## ",
// preserving any custom top matter (an "# <package>" title, a description)
// ahead of the version history.
func splitIntroAndVersions(body string) (string, string) {
	offset := 0
	for offset < len(body) {
		if strings.HasPrefix(body[offset:], sectionMarker) {
			return body[:offset], body[offset:]
		}
		idx := strings.IndexByte(body[offset:], '\n')
		if idx < 0 {
			break
		}
		offset += idx + 1
	}
	return body, ""
}

// mergeUnpublishedTopSection inspects versionsBody's first "## " section.
// If its header names oldVersion, that section was already published by an
// earlier real release and is left untouched. Otherwise it is an
// in-progress section from a prior dry run (or a stale manual edit): its
// bullets are merged into buckets (so a second Render call is idempotent)
// and the section itself is stripped, since buildSection will re-emit it.
func mergeUnpublishedTopSection(versionsBody, oldVersion string, order []string, buckets map[string][]string) string {
	trimmed := strings.TrimLeft(versionsBody, "\n")
	if !strings.HasPrefix(trimmed, sectionMarker) {
		return versionsBody
	}

	headerEnd := strings.IndexByte(trimmed, '\n')
	var headerLine string
	if headerEnd < 0 {
		headerLine = trimmed
		headerEnd = len(trimmed)
	} else {
		headerLine = trimmed[:headerEnd]
	}
	headerText := strings.TrimSpace(strings.TrimPrefix(headerLine, sectionMarker))
	if headerMatchesVersion(headerText, oldVersion) {
		return trimmed
	}

	rest := trimmed[headerEnd:]
	sectionEnd := len(rest)
	if idx := strings.Index(rest, "\n"+sectionMarker); idx >= 0 {
		sectionEnd = idx + 1
	}
	mergeExistingBullets(rest[:sectionEnd], order, buckets)
	return rest[sectionEnd:]
}

func headerMatchesVersion(headerText, version string) bool {
	if headerText == version {
		return true
	}
	if !strings.HasPrefix(headerText, version) {
		return false
	}
	rest := strings.TrimSpace(headerText[len(version):])
	return rest == "" || strings.HasPrefix(rest, "—") || strings.HasPrefix(rest, "-")
}

func mergeExistingBullets(sectionText string, order []string, buckets map[string][]string) {
	var current string
	for _, line := range strings.Split(sectionText, "\n") {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "### ") {
			name := strings.TrimSpace(strings.TrimPrefix(t, "### "))
			current = ""
			for _, h := range order {
				if strings.EqualFold(h, name) {
					current = h
					break
				}
			}
			continue
		}
		if current == "" || !strings.HasPrefix(t, "- ") {
			continue
		}
		addUnique(buckets, current, strings.TrimSpace(strings.TrimPrefix(t, "- ")))
	}
}

func addUnique(buckets map[string][]string, heading, message string) {
	for _, existing := range buckets[heading] {
		if existing == message {
			return
		}
	}
	buckets[heading] = append(buckets[heading], message)
}

func buildSection(newVersion, dateDisplay string, order []string, buckets map[string][]string) string {
	var b strings.Builder
	if dateDisplay != "" {
		fmt.Fprintf(&b, "## %s — %s\n\n", newVersion, dateDisplay)
	} else {
		fmt.Fprintf(&b, "## %s\n\n", newVersion)
	}
	for _, heading := range order {
		msgs := buckets[heading]
		if len(msgs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s\n\n", heading)
		for _, msg := range msgs {
			b.WriteString(formatMarkdownListItem(msg))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func writeBlankSeparator(b *strings.Builder) {
	s := b.String()
	switch {
	case s == "" || strings.HasSuffix(s, "\n\n"):
	case strings.HasSuffix(s, "\n"):
		b.WriteByte('\n')
	default:
		b.WriteString("\n\n")
	}
}

// formatMarkdownListItem renders message as a top-level "-" bullet,
// indenting continuation lines by two spaces so nested lists in the
// changeset body stay nested under the bullet instead of breaking out of
// it (grounded on format_markdown_list_item).
func formatMarkdownListItem(message string) string {
	lines := strings.Split(message, "\n")
	var b strings.Builder
	b.WriteString("- ")
	b.WriteString(lines[0])
	b.WriteByte('\n')
	for _, line := range lines[1:] {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func headingName(level semver.Level) string {
	switch level {
	case semver.Major:
		return "Major changes"
	case semver.Minor:
		return "Minor changes"
	default:
		return "Patch changes"
	}
}

// resolveHeading picks the section an entry lands under: its declared tag
// if one matches a configured tag name, otherwise the bump-level heading
//.
func resolveHeading(tag string, level semver.Level, tags []string) string {
	if tag != "" {
		for _, t := range tags {
			if strings.EqualFold(t, tag) {
				return t
			}
		}
	}
	return headingName(level)
}

// headingOrder returns every heading that can appear, in display order:
// configured tags first (declared order), then the three bump-level
// headings for any untagged entries.
func headingOrder(tags []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(tags)+3)
	add := func(h string) {
		key := strings.ToLower(h)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, h)
	}
	for _, t := range tags {
		add(t)
	}
	add("Major changes")
	add("Minor changes")
	add("Patch changes")
	return out
}

// DependencyCascadeLine renders the trailing bullet a dependency cascade
// leaves in the dependent's own section.
func DependencyCascadeLine(dependencyID, toVersion string) string {
	return fmt.Sprintf("Updated dependencies: %s@%s", dependencyID, toVersion)
}

// FixedGroupLine renders the trailing bullet a fixed-group imputation
// leaves for a member with no direct changeset contribution.
const FixedGroupLine = "Bumped due to fixed dependency group policy"

// BuildMessage composes a changeset body into a changelog entry message,
// optionally prefixing a commit link and suffixing an acknowledgment
//. If body ends with a closing code fence, the
// acknowledgment is placed on its own paragraph so it is not absorbed into
// the fenced block by Markdown renderers.
func BuildMessage(body string, info vcs.CommitInfo, haveInfo bool, repoSlug string, showCommitHash, showAcknowledgments bool) string {
	msg := strings.TrimSpace(body)
	if showCommitHash && haveInfo && info.ShortHash != "" {
		msg = commitLink(info.ShortHash, repoSlug) + " " + msg
	}
	if showAcknowledgments && haveInfo && info.Author != "" {
		ack := fmt.Sprintf("— Thanks %s!", info.Author)
		if endsWithClosedFence(msg) {
			msg = msg + "\n\n" + ack
		} else {
			msg = msg + " " + ack
		}
	}
	return msg
}

func commitLink(shortHash, repoSlug string) string {
	if repoSlug == "" {
		return "`" + shortHash + "`"
	}
	return fmt.Sprintf("[%s](https://github.com/%s/commit/%s)", shortHash, repoSlug, shortHash)
}

func endsWithClosedFence(s string) bool {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) == 0 {
		return false
	}
	return strings.TrimSpace(lines[len(lines)-1]) == "```"
}
