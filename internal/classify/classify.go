// Package classify derives PRD type, scope-lock defaults, and
// activation mode from free-text titles and descriptions so callers
// don't have to tag every entity by hand.
package classify

import (
	"regexp"
	"strings"

	"github.com/taskflow-dev/taskflowmcp/internal/store"
)

func hasAnyWord(text string, words []string) bool {
	lower := strings.ToLower(text)
	for _, w := range words {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`)
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

var (
	defectWords    = []string{"fix", "bug", "error", "broken", "issue", "crash", "fail"}
	questionWords  = []string{"how", "what", "why", "explain", "investigate", "research", "explore"}
	experienceWords = []string{"ui", "ux", "design", "interface", "modal", "form", "screen", "page", "layout", "component", "visual", "interaction"}
	featureWords   = []string{"add", "implement", "create", "build", "develop", "introduce", "enable"}
)

// PRDType inspects title and description and returns the best-matching
// PRD type by checking, in priority order, for defect, question,
// experience, and feature keywords, falling back to technical when
// none match.
func PRDType(title, description string) store.PRDType {
	text := title + " " + description
	switch {
	case hasAnyWord(text, defectWords):
		return store.PRDTypeDefect
	case hasAnyWord(text, questionWords):
		return store.PRDTypeQuestion
	case hasAnyWord(text, experienceWords):
		return store.PRDTypeExperience
	case hasAnyWord(text, featureWords):
		return store.PRDTypeFeature
	default:
		return store.PRDTypeTechnical
	}
}

// DefaultScopeLocked returns the scope-lock default for a PRD type:
// feature and experience work starts scope-locked, everything else
// starts open.
func DefaultScopeLocked(t store.PRDType) bool {
	switch t {
	case store.PRDTypeFeature, store.PRDTypeExperience:
		return true
	default:
		return false
	}
}

var activationPattern = regexp.MustCompile(`(?i)\b(ultrawork|analyze|analysis|analyse|quick|fast|rapid|thorough|comprehensive|detailed|in-depth)\b`)

var activationWord = map[string]store.ActivationMode{
	"ultrawork":    store.ActivationUltrawork,
	"analyze":      store.ActivationAnalyze,
	"analysis":     store.ActivationAnalyze,
	"analyse":      store.ActivationAnalyze,
	"quick":        store.ActivationQuick,
	"fast":         store.ActivationQuick,
	"rapid":        store.ActivationQuick,
	"thorough":     store.ActivationThorough,
	"comprehensive": store.ActivationThorough,
	"detailed":     store.ActivationThorough,
	"in-depth":     store.ActivationThorough,
}

// ActivationMode scans text for activation-mode keywords and returns
// the mode carried by the last match (later keywords override earlier
// ones in the same string), plus ok=false when nothing matched.
func ActivationMode(text string) (mode store.ActivationMode, ok bool) {
	matches := activationPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return "", false
	}
	last := strings.ToLower(matches[len(matches)-1])
	mode, found := activationWord[last]
	return mode, found
}

// ResolveActivationMode applies title+description keyword detection,
// then lets an explicit caller override win: override == nil means no
// override was supplied (fall through to detection); a pointer to an
// empty string means the caller explicitly disabled activation mode
// for this entity.
func ResolveActivationMode(title, description string, override *string) (store.ActivationMode, bool) {
	if override != nil {
		if *override == "" {
			return "", false
		}
		return store.ActivationMode(*override), true
	}
	return ActivationMode(title + " " + description)
}
