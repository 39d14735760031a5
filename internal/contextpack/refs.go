// Package contextpack selects and assembles the repository excerpts sent
// alongside each generation prompt. Every byte that leaves the package has
// passed through the secret guard.
package contextpack

import (
	"regexp"
	"sort"
	"strings"

	"apivault/internal/guard"
	"apivault/internal/index"
)

// Ref points at one file excerpt to include as context.
type Ref struct {
	FilePath    string `json:"file_path"`
	ExcerptType string `json:"excerpt_type"` // full or head
	MaxBytes    int    `json:"max_bytes"`
	Reason      string `json:"reason,omitempty"`
}

// MaxRefsPerArtifact caps how many excerpts one artifact may request.
const MaxRefsPerArtifact = 10

const refExcerptBytes = 4096

// keyFiles are always relevant regardless of artifact.
var keyFiles = []struct{ name, reason string }{
	{"README.md", "Primary documentation"},
	{"readme.md", "Primary documentation"},
	{"package.json", "Project configuration and dependencies"},
	{"pyproject.toml", "Project configuration and dependencies"},
	{"Cargo.toml", "Project configuration and dependencies"},
	{"go.mod", "Project configuration and dependencies"},
	{"Makefile", "Build and run commands"},
	{"Dockerfile", "Container configuration"},
	{"docker-compose.yml", "Service orchestration"},
}

var familyPatterns = map[string][]struct{ pattern, reason string }{
	"docs": {
		{"*.md", "Documentation files"},
		{"docs/*", "Documentation folder"},
		{"README*", "Readme files"},
		{"src/index.*", "Main entrypoint"},
		{"src/main.*", "Main entrypoint"},
		{"main.*", "Main entrypoint"},
		{"app.*", "Application entrypoint"},
	},
	"security": {
		{"SECURITY.md", "Security policy"},
		{"auth/*", "Authentication code"},
		{"**/auth*", "Authentication code"},
		{"**/middleware*", "Middleware code"},
		{".env.example", "Environment configuration"},
		{"config/*", "Configuration files"},
	},
	"tests": {
		{"tests/*", "Test files"},
		{"test/*", "Test files"},
		{"__tests__/*", "Test files"},
		{"*_test.*", "Test files"},
		{"test_*", "Test files"},
		{"*.spec.*", "Test files"},
		{"conftest.py", "Test configuration"},
		{"jest.config.*", "Test configuration"},
		{"pytest.ini", "Test configuration"},
	},
	"api": {
		{"openapi.*", "API specification"},
		{"swagger.*", "API specification"},
		{"routes/*", "API routes"},
		{"**/routes*", "API routes"},
		{"**/api/*", "API code"},
		{"**/controllers/*", "API controllers"},
		{"**/handlers/*", "API handlers"},
	},
	"observability": {
		{"**/logging*", "Logging configuration"},
		{"**/logger*", "Logger implementation"},
		{"**/metrics*", "Metrics code"},
		{"**/telemetry*", "Telemetry code"},
		{"prometheus*", "Prometheus config"},
	},
	"product": {
		{"src/components/*", "UI components"},
		{"src/pages/*", "Page components"},
		{"app/*", "Application code"},
		{"public/*", "Public assets"},
		{"styles/*", "Styling"},
	},
}

var artifactPatterns = map[string][]struct{ pattern, reason string }{
	"RUNBOOK.md": {
		{"Makefile", "Build commands"},
		{"package.json", "NPM scripts"},
		{"README.md", "Existing documentation"},
		{".github/workflows/*", "CI workflows"},
	},
	"TROUBLESHOOTING.md": {
		{"*.log", "Log files"},
		{".github/workflows/*", "CI configuration"},
		{"Dockerfile", "Container setup"},
		{"docker-compose.yml", "Service setup"},
	},
	"ARCHITECTURE_OVERVIEW.md": {
		{"src/**/__init__.py", "Package structure"},
		{"src/**/index.*", "Module entrypoints"},
		{"README.md", "Project description"},
	},
	"THREAT_MODEL.md": {
		{"**/auth*", "Authentication"},
		{"**/middleware*", "Middleware"},
		{"**/api/*", "API endpoints"},
		{"**/database*", "Database access"},
	},
	"SECURITY_CHECKLIST.md": {
		{".env.example", "Environment vars"},
		{"**/auth*", "Auth code"},
		{"SECURITY.md", "Existing policy"},
	},
	"AUTHZ_AUTHN_NOTES.md": {
		{"**/auth*", "Auth implementation"},
		{"**/middleware*", "Auth middleware"},
		{"**/user*", "User handling"},
		{"**/session*", "Session handling"},
	},
	"GOLDEN_PATH_TEST_PLAN.md": {
		{"tests/*", "Existing tests"},
		{"src/**/*.py", "Source code"},
		{"README.md", "Usage examples"},
	},
	"MINIMUM_TESTS_SUGGESTION.md": {
		{"tests/*", "Existing tests"},
		{"src/**/*", "Source code"},
	},
	"ENDPOINT_INVENTORY.md": {
		{"**/routes*", "Route definitions"},
		{"**/api/*", "API code"},
		{"**/controllers*", "Controllers"},
		{"openapi.*", "Existing spec"},
	},
	"LOGGING_CONVENTIONS.md": {
		{"**/log*", "Logging code"},
		{"**/utils*", "Utility code"},
		{"**/config*", "Configuration"},
	},
	"METRICS_PLAN.md": {
		{"**/metrics*", "Existing metrics"},
		{"**/telemetry*", "Telemetry"},
		{"**/health*", "Health checks"},
	},
	"UX_COPY_BANK.md": {
		{"src/components/*", "UI components"},
		{"**/pages/*", "Pages"},
		{"public/locales/*", "Translations"},
	},
}

// SelectRefs picks the excerpt references for one artifact: universally
// relevant key files first, then family patterns, then artifact-specific
// patterns, deduplicated and capped at MaxRefsPerArtifact.
func SelectRefs(artifactName, family string, idx *index.RepoIndex) []Ref {
	var refs []Ref
	chosen := make(map[string]bool)

	add := func(path, reason string) {
		if chosen[path] || guard.IsSensitivePath(path) {
			return
		}
		chosen[path] = true
		refs = append(refs, Ref{
			FilePath:    path,
			ExcerptType: "head",
			MaxBytes:    refExcerptBytes,
			Reason:      reason,
		})
	}

	for _, kf := range keyFiles {
		if _, ok := idx.Lookup(kf.name); ok {
			add(kf.name, kf.reason)
		}
	}

	for _, fp := range familyPatterns[family] {
		for _, match := range matchFiles(idx.Files, fp.pattern, 3) {
			add(match.Path, fp.reason)
		}
	}

	for _, ap := range artifactPatterns[artifactName] {
		for _, match := range matchFiles(idx.Files, ap.pattern, 2) {
			add(match.Path, ap.reason)
		}
	}

	if len(refs) > MaxRefsPerArtifact {
		refs = refs[:MaxRefsPerArtifact]
	}
	return refs
}

// matchFiles returns up to limit non-binary files matching a glob pattern,
// smallest first so more excerpts fit in the context window.
func matchFiles(files []index.FileEntry, pattern string, limit int) []index.FileEntry {
	re := globToRegexp(pattern)
	var matches []index.FileEntry
	for _, f := range files {
		if f.IsBinary {
			continue
		}
		if re.MatchString(f.Path) {
			matches = append(matches, f)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].SizeBytes != matches[j].SizeBytes {
			return matches[i].SizeBytes < matches[j].SizeBytes
		}
		return matches[i].Path < matches[j].Path
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// globToRegexp compiles glob syntax with ** support. * never crosses a path
// separator; **/ optionally matches any directory prefix.
func globToRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?i)^")
	rest := pattern
	for len(rest) > 0 {
		switch {
		case strings.HasPrefix(rest, "**/"):
			b.WriteString(`(?:.*/)?`)
			rest = rest[3:]
		case strings.HasPrefix(rest, "**"):
			b.WriteString(`.*`)
			rest = rest[2:]
		case rest[0] == '*':
			b.WriteString(`[^/]*`)
			rest = rest[1:]
		case rest[0] == '?':
			b.WriteString(`[^/]`)
			rest = rest[1:]
		default:
			b.WriteString(regexp.QuoteMeta(rest[:1]))
			rest = rest[1:]
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

// EstimateTokens approximates the token cost of a ref set before any file is
// read, for planning.
func EstimateTokens(refs []Ref) int {
	total := 0
	for _, ref := range refs {
		capped := ref.MaxBytes
		if capped > refExcerptBytes {
			capped = refExcerptBytes
		}
		total += capped / 4
	}
	return total
}
