package iteration

import (
	"regexp"
	"strings"
)

// tagPattern matches `<promise>TYPE</promise>` case-insensitively,
// capturing everything up to the next blank line as trailing context.
var tagPattern = regexp.MustCompile(`(?is)<promise>\s*([a-z_]+)\s*</promise>(.*?)(?:\n\s*\n|\z)`)

// DetectPromiseByTag looks for `<promise>TAG</promise>` (case-insensitive)
// in output and returns the tag plus any trailing context up to the
// next blank line. found is false if no matching tag is present.
func DetectPromiseByTag(output, tag string) (detected string, found bool) {
	matches := tagPattern.FindAllStringSubmatch(output, -1)
	for _, m := range matches {
		if !strings.EqualFold(m[1], tag) {
			continue
		}
		return strings.TrimSpace("<promise>" + m[1] + "</promise>" + m[2]), true
	}
	return "", false
}

// CompletionPromisesDetected is the legacy substring-match fallback:
// which of the configured completion promises literally appear
// anywhere in output.
func CompletionPromisesDetected(output string, promises []string) []string {
	var found []string
	for _, p := range promises {
		if strings.Contains(output, p) {
			found = append(found, p)
		}
	}
	return found
}
