package trust

import (
	"regexp"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

func mustAttr(names string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + names + `\s*=\s*"([^"]+)"`)
}

// UpdatedPackage is the version movement of one package across a diff.
type UpdatedPackage struct {
	From string
	To   string
}

var (
	identityAttribute = mustAttr(`(?:Include|Update)`)
	versionAttribute  = mustAttr(`(?:Version|VersionOverride)`)
)

// TryParseUpdatedPackages scans a unified diff for changed
// dependency-declaration fragments (package-reference-like elements
// carrying an identity attribute and a version attribute) and reports, per
// package, the minimum removed version and the maximum added version.
// Packages whose added version is not strictly greater than the removed one
// are excluded.
func TryParseUpdatedPackages(diff string) (map[string]UpdatedPackage, bool) {
	type movement struct {
		removed *goversion.Version
		added   *goversion.Version
	}
	movements := make(map[string]*movement)

	inHunk := false
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			inHunk = true
			continue
		case strings.HasPrefix(line, "diff "):
			inHunk = false
			continue
		}
		if !inHunk || len(line) == 0 {
			continue
		}
		if strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---") {
			continue
		}

		added := false
		switch line[0] {
		case '+':
			added = true
		case '-':
		default:
			continue
		}

		name, raw, ok := parseDependencyFragment(line[1:])
		if !ok {
			continue
		}
		parsed, err := goversion.NewVersion(raw)
		if err != nil {
			continue
		}

		entry := movements[name]
		if entry == nil {
			entry = &movement{}
			movements[name] = entry
		}
		if added {
			if entry.added == nil || parsed.GreaterThan(entry.added) {
				entry.added = parsed
			}
		} else {
			if entry.removed == nil || parsed.LessThan(entry.removed) {
				entry.removed = parsed
			}
		}
	}

	updates := make(map[string]UpdatedPackage)
	for name, entry := range movements {
		if entry.removed == nil || entry.added == nil {
			continue
		}
		if !entry.added.GreaterThan(entry.removed) {
			continue
		}
		updates[name] = UpdatedPackage{
			From: entry.removed.Original(),
			To:   entry.added.Original(),
		}
	}

	return updates, len(updates) > 0
}

func parseDependencyFragment(line string) (name, version string, ok bool) {
	if !strings.Contains(line, "<") {
		return "", "", false
	}
	nameMatch := identityAttribute.FindStringSubmatch(line)
	if nameMatch == nil {
		return "", "", false
	}
	versionMatch := versionAttribute.FindStringSubmatch(line)
	if versionMatch == nil {
		return "", "", false
	}
	return nameMatch[1], versionMatch[1], true
}
