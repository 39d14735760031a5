// Package templates holds the prompt templates for every artifact type. The
// user prompt bodies live as embedded markdown files; system prompts are
// assembled here.
package templates

import (
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed prompts/*.md
var promptFS embed.FS

// baseSystemPrompt is shared by every template.
const baseSystemPrompt = `You are a senior software engineer creating documentation artifacts for a software project.

CRITICAL RULES:
1. Only describe what you can verify from the provided context
2. When information is missing, explicitly state "UNKNOWN - verify by..." or "NOT FOUND IN CONTEXT"
3. Never hallucinate file paths, function names, or implementation details
4. Use concrete examples from the provided code when available
5. Be specific and actionable, not generic

Your output should be professional, accurate, and immediately useful to developers working on this project.`

const strideAddendum = `

For security analysis, use the STRIDE methodology:
- Spoofing: Can attackers impersonate users/systems?
- Tampering: Can data be modified in transit/storage?
- Repudiation: Can actions be denied without proof?
- Information Disclosure: Can sensitive data leak?
- Denial of Service: Can availability be affected?
- Elevation of Privilege: Can users gain unauthorized access?`

const jsonOnlyAddendum = `

Output ONLY valid JSON. No markdown, no explanation, just the OpenAPI JSON document.`

// Template pairs a system prompt with a user prompt body.
type Template struct {
	ID     string
	Name   string
	System string
	User   string // contains the {context} placeholder
}

// systemAddenda extends the base system prompt for specific templates.
var systemAddenda = map[string]string{
	"threat_model":  strideAddendum,
	"openapi_draft": jsonOnlyAddendum,
}

var templateNames = map[string]string{
	"runbook":             "RUNBOOK.md",
	"troubleshooting":     "TROUBLESHOOTING.md",
	"architecture":        "ARCHITECTURE_OVERVIEW.md",
	"threat_model":        "THREAT_MODEL.md",
	"security_checklist":  "SECURITY_CHECKLIST.md",
	"auth_notes":          "AUTHZ_AUTHN_NOTES.md",
	"golden_path_tests":   "GOLDEN_PATH_TEST_PLAN.md",
	"minimum_tests":       "MINIMUM_TESTS_SUGGESTION.md",
	"endpoint_inventory":  "ENDPOINT_INVENTORY.md",
	"openapi_draft":       "openapi_draft.json",
	"logging_conventions": "LOGGING_CONVENTIONS.md",
	"metrics_plan":        "METRICS_PLAN.md",
	"ux_copy_bank":        "UX_COPY_BANK.md",
}

// Get returns the template for an id.
func Get(id string) (Template, error) {
	name, ok := templateNames[id]
	if !ok {
		return Template{}, fmt.Errorf("unknown prompt template %q", id)
	}
	body, err := promptFS.ReadFile("prompts/" + id + ".md")
	if err != nil {
		return Template{}, fmt.Errorf("prompt body for %q: %w", id, err)
	}
	return Template{
		ID:     id,
		Name:   name,
		System: baseSystemPrompt + systemAddenda[id],
		User:   strings.TrimRight(string(body), "\n"),
	}, nil
}

// IDs lists every template id in sorted order.
func IDs() []string {
	ids := make([]string, 0, len(templateNames))
	for id := range templateNames {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Render substitutes the packaged context into a template's user prompt.
func Render(id, context string) (system, user string, err error) {
	tmpl, err := Get(id)
	if err != nil {
		return "", "", err
	}
	if !strings.Contains(tmpl.User, "{context}") {
		return "", "", fmt.Errorf("prompt template %q has no context placeholder", id)
	}
	return tmpl.System, strings.Replace(tmpl.User, "{context}", context, 1), nil
}
