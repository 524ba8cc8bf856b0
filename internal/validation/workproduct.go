package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/taskflow-dev/taskflowmcp/internal/store"
)

// Outcome is the verdict a work-product rule returns.
type Outcome string

const (
	// OutcomePass means the rule found nothing worth reporting.
	OutcomePass Outcome = "pass"
	// OutcomeWarn is advisory: attached to the response and persisted
	// under metadata.validation, but the content is stored as-is.
	OutcomeWarn Outcome = "warn"
	// OutcomeReject fails the work_product_store call outright.
	OutcomeReject Outcome = "reject"
)

// RuleResult is one rule's verdict on a work product.
type RuleResult struct {
	Rule    string  `json:"rule"`
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message,omitempty"`
}

// WorkProductRule is the tagged-variant unit the registry dispatches
// over. New rule kinds register themselves at startup via Register;
// never by inheritance.
type WorkProductRule interface {
	Name() string
	Evaluate(wp *store.WorkProduct) RuleResult
}

// WorkProductRegistry runs every registered rule against a candidate
// work product.
type WorkProductRegistry struct {
	rules []WorkProductRule
}

// NewWorkProductRegistry builds the registry with the built-in rules.
func NewWorkProductRegistry() *WorkProductRegistry {
	r := &WorkProductRegistry{}
	r.Register(minContentLengthRule{min: 10})
	r.Register(placeholderContentRule{})
	r.Register(titleMatchesTypeRule{})
	return r
}

// Register adds a rule to the end of the evaluation order. Results are
// returned in registration order.
func (r *WorkProductRegistry) Register(rule WorkProductRule) {
	r.rules = append(r.rules, rule)
}

// Evaluate runs every rule and separates reject-level failures from
// advisory warnings. The stored content is never modified by
// validation; reject is the only outcome that blocks the store call.
func (r *WorkProductRegistry) Evaluate(wp *store.WorkProduct) (results []RuleResult, rejected []RuleResult, warnings []RuleResult) {
	for _, rule := range r.rules {
		res := rule.Evaluate(wp)
		results = append(results, res)
		switch res.Outcome {
		case OutcomeReject:
			rejected = append(rejected, res)
		case OutcomeWarn:
			warnings = append(warnings, res)
		}
	}
	return results, rejected, warnings
}

// RejectionFeedback aggregates reject-level messages into the
// actionable text work_product_store returns on failure.
func RejectionFeedback(rejected []RuleResult) string {
	msgs := make([]string, 0, len(rejected))
	for _, r := range rejected {
		msgs = append(msgs, fmt.Sprintf("%s: %s", r.Rule, r.Message))
	}
	return strings.Join(msgs, "; ")
}

// minContentLengthRule rejects near-empty deliverables.
type minContentLengthRule struct{ min int }

func (r minContentLengthRule) Name() string { return "min_content_length" }

func (r minContentLengthRule) Evaluate(wp *store.WorkProduct) RuleResult {
	trimmed := strings.TrimSpace(wp.Content)
	if len(trimmed) < r.min {
		return RuleResult{Rule: r.Name(), Outcome: OutcomeReject,
			Message: fmt.Sprintf("content is %d characters, minimum is %d", len(trimmed), r.min)}
	}
	return RuleResult{Rule: r.Name(), Outcome: OutcomePass}
}

var placeholderPattern = regexp.MustCompile(`(?i)\b(TODO|TBD|lorem ipsum|FIXME|XXX|placeholder)\b`)

// placeholderContentRule flags (not rejects) unfinished-looking content.
type placeholderContentRule struct{}

func (r placeholderContentRule) Name() string { return "placeholder_content" }

func (r placeholderContentRule) Evaluate(wp *store.WorkProduct) RuleResult {
	if m := placeholderPattern.FindString(wp.Content); m != "" {
		return RuleResult{Rule: r.Name(), Outcome: OutcomeWarn,
			Message: fmt.Sprintf("content contains placeholder marker %q", m)}
	}
	return RuleResult{Rule: r.Name(), Outcome: OutcomePass}
}

// titleMatchesTypeRule warns when a title looks mismatched with its
// declared work-product type (e.g. a "test_plan" titled "Design doc").
type titleMatchesTypeRule struct{}

func (r titleMatchesTypeRule) Name() string { return "title_matches_type" }

var typeHintWords = map[string][]string{
	store.WorkProductTechnicalDesign: {"design", "architecture", "spec"},
	store.WorkProductTestPlan:        {"test", "plan", "coverage"},
	store.WorkProductDocumentation:   {"doc", "guide", "readme"},
}

func (r titleMatchesTypeRule) Evaluate(wp *store.WorkProduct) RuleResult {
	hints, ok := typeHintWords[wp.Type]
	if !ok {
		return RuleResult{Rule: r.Name(), Outcome: OutcomePass}
	}
	lower := strings.ToLower(wp.Title)
	for _, h := range hints {
		if strings.Contains(lower, h) {
			return RuleResult{Rule: r.Name(), Outcome: OutcomePass}
		}
	}
	return RuleResult{Rule: r.Name(), Outcome: OutcomeWarn,
		Message: fmt.Sprintf("title %q does not obviously match declared type %q", wp.Title, wp.Type)}
}

// Summarize returns a 300-character summary and a whitespace-split word
// count for the stored payload.
func Summarize(content string) (summary string, wordCount int) {
	trimmed := strings.TrimSpace(content)
	wordCount = 0
	if trimmed != "" {
		wordCount = len(strings.Fields(trimmed))
	}
	runes := []rune(trimmed)
	if len(runes) > 300 {
		return string(runes[:300]), wordCount
	}
	return trimmed, wordCount
}
