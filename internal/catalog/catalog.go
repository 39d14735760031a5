// Package catalog defines the artifact templates the planner selects from.
// Each template carries base scoring factors, prerequisite signals, and the
// gap statements that boost it.
package catalog

import (
	"strings"

	"apivault/internal/index"
)

// Family groups related artifacts for filtering and output layout.
type Family string

const (
	FamilyDocs          Family = "docs"
	FamilySecurity      Family = "security"
	FamilyTests         Family = "tests"
	FamilyAPI           Family = "api"
	FamilyObservability Family = "observability"
	FamilyProduct       Family = "product"
)

// AllFamilies lists every family in catalog order.
func AllFamilies() []Family {
	return []Family{
		FamilyDocs, FamilySecurity, FamilyTests,
		FamilyAPI, FamilyObservability, FamilyProduct,
	}
}

// ParseFamily validates a family name from user input.
func ParseFamily(s string) (Family, bool) {
	f := Family(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllFamilies() {
		if f == known {
			return f, true
		}
	}
	return "", false
}

// Template describes one generatable artifact.
type Template struct {
	Name             string
	Family           Family
	OutputFilename   string
	PromptTemplateID string
	Description      string

	BaseReusability float64
	BaseTimeSaved   float64
	BaseLeverage    float64
	BaseContextCost float64
	MaxOutputTokens int

	// RequiredSignals are characteristic names that must all be true for the
	// template to be a candidate at all.
	RequiredSignals []string
	// BoostedByGaps are gap statements that raise the template's gap weight
	// via substring match.
	BoostedByGaps []string
}

// MeetsPrerequisites reports whether every required signal holds.
func (t Template) MeetsPrerequisites(signals *index.RepoSignals) bool {
	for _, name := range t.RequiredSignals {
		if !signals.Has(name) {
			return false
		}
	}
	return true
}

// GapWeight scores how much the repo needs this artifact, from the number of
// identified gaps the template addresses. Templates with no gap affinity sit
// at the neutral midpoint.
func (t Template) GapWeight(gaps []string) float64 {
	if len(t.BoostedByGaps) == 0 {
		return 5.0
	}
	matched := 0
	for _, gap := range gaps {
		lower := strings.ToLower(gap)
		for _, boost := range t.BoostedByGaps {
			if strings.Contains(lower, strings.ToLower(boost)) {
				matched++
				break
			}
		}
	}
	switch {
	case matched >= 3:
		return 10.0
	case matched == 2:
		return 8.0
	case matched == 1:
		return 7.0
	default:
		return 5.0
	}
}

// MatchedGaps returns the gap statements this template addresses, in input
// order, for selection rationale.
func (t Template) MatchedGaps(gaps []string) []string {
	var matched []string
	for _, gap := range gaps {
		lower := strings.ToLower(gap)
		for _, boost := range t.BoostedByGaps {
			if strings.Contains(lower, strings.ToLower(boost)) {
				matched = append(matched, gap)
				break
			}
		}
	}
	return matched
}

// Builtin returns the full template catalog in definition order.
func Builtin() []Template {
	return builtin
}

// Lookup finds a template by artifact name.
func Lookup(name string) (Template, bool) {
	for _, t := range builtin {
		if t.Name == name {
			return t, true
		}
	}
	return Template{}, false
}

var builtin = []Template{
	{
		Name:             "RUNBOOK.md",
		Family:           FamilyDocs,
		OutputFilename:   "RUNBOOK.md",
		PromptTemplateID: "runbook",
		Description:      "Step-by-step guide for running, building, and testing the project",
		BaseReusability:  8.0,
		BaseTimeSaved:    7.0,
		BaseLeverage:     7.0,
		BaseContextCost:  4.0,
		MaxOutputTokens:  4096,
		BoostedByGaps: []string{
			"README is minimal and could be expanded",
			"No architecture documentation",
		},
	},
	{
		Name:             "TROUBLESHOOTING.md",
		Family:           FamilyDocs,
		OutputFilename:   "TROUBLESHOOTING.md",
		PromptTemplateID: "troubleshooting",
		Description:      "Common issues, error messages, and their solutions",
		BaseReusability:  7.0,
		BaseTimeSaved:    8.0,
		BaseLeverage:     6.0,
		BaseContextCost:  5.0,
		MaxOutputTokens:  4096,
		BoostedByGaps:    []string{"No CONTRIBUTING guide for new contributors"},
	},
	{
		Name:             "ARCHITECTURE_OVERVIEW.md",
		Family:           FamilyDocs,
		OutputFilename:   "ARCHITECTURE_OVERVIEW.md",
		PromptTemplateID: "architecture",
		Description:      "High-level system architecture and component relationships",
		BaseReusability:  9.0,
		BaseTimeSaved:    6.0,
		BaseLeverage:     8.0,
		BaseContextCost:  6.0,
		MaxOutputTokens:  8192,
		BoostedByGaps:    []string{"No architecture documentation"},
	},
	{
		Name:             "THREAT_MODEL.md",
		Family:           FamilySecurity,
		OutputFilename:   "THREAT_MODEL.md",
		PromptTemplateID: "threat_model",
		Description:      "Security threat analysis using STRIDE methodology",
		BaseReusability:  7.0,
		BaseTimeSaved:    9.0,
		BaseLeverage:     8.0,
		BaseContextCost:  6.0,
		MaxOutputTokens:  8192,
		BoostedByGaps: []string{
			"No SECURITY policy or vulnerability reporting process",
			"Authentication present but security documentation may be lacking",
		},
	},
	{
		Name:             "SECURITY_CHECKLIST.md",
		Family:           FamilySecurity,
		OutputFilename:   "SECURITY_CHECKLIST.md",
		PromptTemplateID: "security_checklist",
		Description:      "Security audit checklist tailored to the project stack",
		BaseReusability:  8.0,
		BaseTimeSaved:    7.0,
		BaseLeverage:     7.0,
		BaseContextCost:  4.0,
		MaxOutputTokens:  4096,
		BoostedByGaps:    []string{"No SECURITY policy or vulnerability reporting process"},
	},
	{
		Name:             "AUTHZ_AUTHN_NOTES.md",
		Family:           FamilySecurity,
		OutputFilename:   "AUTHZ_AUTHN_NOTES.md",
		PromptTemplateID: "auth_notes",
		Description:      "Documentation of authentication and authorization flows",
		BaseReusability:  7.0,
		BaseTimeSaved:    8.0,
		BaseLeverage:     7.0,
		BaseContextCost:  5.0,
		MaxOutputTokens:  4096,
		RequiredSignals:  []string{"has_auth"},
		BoostedByGaps: []string{
			"Authentication present but security documentation may be lacking",
		},
	},
	{
		Name:             "GOLDEN_PATH_TEST_PLAN.md",
		Family:           FamilyTests,
		OutputFilename:   "GOLDEN_PATH_TEST_PLAN.md",
		PromptTemplateID: "golden_path_tests",
		Description:      "Test plan covering critical user journeys and happy paths",
		BaseReusability:  7.0,
		BaseTimeSaved:    8.0,
		BaseLeverage:     8.0,
		BaseContextCost:  6.0,
		MaxOutputTokens:  8192,
		BoostedByGaps:    []string{"Limited test coverage", "No test directory found"},
	},
	{
		Name:             "MINIMUM_TESTS_SUGGESTION.md",
		Family:           FamilyTests,
		OutputFilename:   "MINIMUM_TESTS_SUGGESTION.md",
		PromptTemplateID: "minimum_tests",
		Description:      "Suggestions for minimum viable test coverage",
		BaseReusability:  6.0,
		BaseTimeSaved:    7.0,
		BaseLeverage:     7.0,
		BaseContextCost:  5.0,
		MaxOutputTokens:  4096,
		BoostedByGaps:    []string{"Limited test coverage", "No test framework configured"},
	},
	{
		Name:             "ENDPOINT_INVENTORY.md",
		Family:           FamilyAPI,
		OutputFilename:   "ENDPOINT_INVENTORY.md",
		PromptTemplateID: "endpoint_inventory",
		Description:      "Comprehensive inventory of API endpoints with request/response details",
		BaseReusability:  8.0,
		BaseTimeSaved:    7.0,
		BaseLeverage:     7.0,
		BaseContextCost:  5.0,
		MaxOutputTokens:  4096,
		RequiredSignals:  []string{"has_api"},
		BoostedByGaps:    []string{"API exists but lacks documentation"},
	},
	{
		Name:             "openapi_draft.json",
		Family:           FamilyAPI,
		OutputFilename:   "openapi_draft.json",
		PromptTemplateID: "openapi_draft",
		Description:      "Draft OpenAPI 3.0 specification based on detected endpoints",
		BaseReusability:  9.0,
		BaseTimeSaved:    8.0,
		BaseLeverage:     8.0,
		BaseContextCost:  7.0,
		MaxOutputTokens:  16384,
		RequiredSignals:  []string{"has_api"},
		BoostedByGaps:    []string{"API exists but lacks documentation"},
	},
	{
		Name:             "LOGGING_CONVENTIONS.md",
		Family:           FamilyObservability,
		OutputFilename:   "LOGGING_CONVENTIONS.md",
		PromptTemplateID: "logging_conventions",
		Description:      "Standardized logging conventions and structured logging guide",
		BaseReusability:  7.0,
		BaseTimeSaved:    6.0,
		BaseLeverage:     6.0,
		BaseContextCost:  4.0,
		MaxOutputTokens:  4096,
	},
	{
		Name:             "METRICS_PLAN.md",
		Family:           FamilyObservability,
		OutputFilename:   "METRICS_PLAN.md",
		PromptTemplateID: "metrics_plan",
		Description:      "Metrics and monitoring strategy with recommended instruments",
		BaseReusability:  7.0,
		BaseTimeSaved:    7.0,
		BaseLeverage:     7.0,
		BaseContextCost:  5.0,
		MaxOutputTokens:  4096,
	},
	{
		Name:             "UX_COPY_BANK.md",
		Family:           FamilyProduct,
		OutputFilename:   "UX_COPY_BANK.md",
		PromptTemplateID: "ux_copy_bank",
		Description:      "Collection of UI copy, error messages, and microcopy guidelines",
		BaseReusability:  6.0,
		BaseTimeSaved:    5.0,
		BaseLeverage:     5.0,
		BaseContextCost:  4.0,
		MaxOutputTokens:  4096,
		RequiredSignals:  []string{"has_web_ui"},
	},
}
