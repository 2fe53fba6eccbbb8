package trust

import (
	"fmt"
	"regexp"
	"strings"
)

// versionPatterns are the dependency bot's "Bumps/Updates X from A to B"
// conventions: plain, backtick-quoted, markdown-linked, and the two
// hash-based submodule variants. %s is the regexp-escaped dependency name.
var versionPatterns = []string{
	"(?im)^(?:bumps?|updates?) %s from [^`\\s]+ to ([^`\\s]+)",
	"(?im)^(?:bumps?|updates?) `%s` from `?\\S+`? to `?([^`\\s]+)`?",
	`(?im)^(?:bumps?|updates?) \[%s\]\([^)]*\) from \S+ to (\S+)`,
	"(?im)^(?:bumps?|updates?) %s from `([0-9a-f]+)` to `([0-9a-f]+)`",
	`(?im)^(?:bumps?|updates?) %s from ([0-9a-f]{7,40}) to ([0-9a-f]{7,40})`,
}

// TryParseVersionNumber extracts the target version of a dependency update
// from a commit message, trying each of the bot's phrasing conventions in
// order. The returned version is trimmed of trailing punctuation.
func TryParseVersionNumber(message, dependencyName string) (string, bool) {
	escaped := regexp.QuoteMeta(dependencyName)
	for _, pattern := range versionPatterns {
		expr, err := regexp.Compile(fmt.Sprintf(pattern, escaped))
		if err != nil {
			continue
		}
		match := expr.FindStringSubmatch(message)
		if match == nil {
			continue
		}
		// The target version is the last capture group.
		version := strings.TrimRight(match[len(match)-1], ".,;:!")
		if version != "" {
			return version, true
		}
	}
	return "", false
}

var dependencyNameLine = regexp.MustCompile(`^-\s*dependency-name:\s*(.+)$`)

// ParseDependencies extracts the dependency names listed in the YAML-like
// trailer block the dependency bot appends to its commit messages. Only
// lines between the "---" and "..." document markers are considered;
// dependency-name lines quoted elsewhere in the message are ignored.
func ParseDependencies(message string) []string {
	var names []string
	seen := make(map[string]struct{})

	inTrailer := false
	for _, line := range strings.Split(message, "\n") {
		trimmed := strings.TrimSpace(line)
		switch trimmed {
		case "---":
			inTrailer = true
			continue
		case "...":
			inTrailer = false
			continue
		}
		if !inTrailer {
			continue
		}

		match := dependencyNameLine.FindStringSubmatch(trimmed)
		if match == nil {
			continue
		}
		name := strings.Trim(strings.TrimSpace(match[1]), `"'`)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	return names
}
