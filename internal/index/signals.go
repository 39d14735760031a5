package index

import (
	"sort"
	"strings"

	"apivault/internal/logging"
)

var languageByExtension = map[string]string{
	"go":    "Go",
	"py":    "Python",
	"js":    "JavaScript",
	"jsx":   "JavaScript",
	"ts":    "TypeScript",
	"tsx":   "TypeScript",
	"rb":    "Ruby",
	"java":  "Java",
	"kt":    "Kotlin",
	"rs":    "Rust",
	"c":     "C",
	"h":     "C",
	"cc":    "C++",
	"cpp":   "C++",
	"hpp":   "C++",
	"cs":    "C#",
	"php":   "PHP",
	"swift": "Swift",
	"scala": "Scala",
	"sh":    "Shell",
	"sql":   "SQL",
}

// frameworkMarker detects a framework from a manifest line or a file path.
type frameworkMarker struct {
	name     string
	category string
	// manifest is the file whose content is searched for needle; empty means
	// path-only detection.
	manifest string
	needle   string
	// pathFragment matches against indexed paths when manifest is empty.
	pathFragment string
	webUI        bool
	api          bool
	database     bool
}

var frameworkMarkers = []frameworkMarker{
	{name: "Django", category: "framework", manifest: "requirements.txt", needle: "django", api: true, webUI: true},
	{name: "Flask", category: "framework", manifest: "requirements.txt", needle: "flask", api: true},
	{name: "FastAPI", category: "framework", manifest: "requirements.txt", needle: "fastapi", api: true},
	{name: "Express", category: "framework", manifest: "package.json", needle: `"express"`, api: true},
	{name: "React", category: "framework", manifest: "package.json", needle: `"react"`, webUI: true},
	{name: "Vue", category: "framework", manifest: "package.json", needle: `"vue"`, webUI: true},
	{name: "Next.js", category: "framework", manifest: "package.json", needle: `"next"`, webUI: true, api: true},
	{name: "Rails", category: "framework", manifest: "Gemfile", needle: "rails", api: true, webUI: true},
	{name: "Gin", category: "framework", manifest: "go.mod", needle: "gin-gonic/gin", api: true},
	{name: "Echo", category: "framework", manifest: "go.mod", needle: "labstack/echo", api: true},
	{name: "gRPC", category: "framework", manifest: "go.mod", needle: "google.golang.org/grpc", api: true},
	{name: "SQLAlchemy", category: "library", manifest: "requirements.txt", needle: "sqlalchemy", database: true},
	{name: "Prisma", category: "library", manifest: "package.json", needle: `"prisma"`, database: true},
	{name: "Docker", category: "tool", pathFragment: "dockerfile"},
	{name: "Kubernetes", category: "tool", pathFragment: "k8s/"},
	{name: "Terraform", category: "tool", pathFragment: ".tf"},
}

var testFrameworkMarkers = []struct {
	name     string
	manifest string
	needle   string
}{
	{"pytest", "requirements.txt", "pytest"},
	{"pytest", "pyproject.toml", "pytest"},
	{"jest", "package.json", `"jest"`},
	{"vitest", "package.json", `"vitest"`},
	{"mocha", "package.json", `"mocha"`},
	{"go test", "go.mod", "module "},
	{"rspec", "Gemfile", "rspec"},
}

// ContentReader supplies file contents during signal extraction so callers
// can route reads through their own caps and filters.
type ContentReader func(entry FileEntry, maxBytes int) (string, error)

// Extractor derives RepoSignals from an index.
type Extractor struct {
	read ContentReader
	log  logging.Logger
}

// NewExtractor builds an Extractor. read may be nil when only structural
// signals (paths, sizes) are wanted.
func NewExtractor(read ContentReader, log logging.Logger) *Extractor {
	return &Extractor{read: read, log: logging.OrNop(log)}
}

// Extract computes the full signal set for one index.
func (e *Extractor) Extract(idx *RepoIndex) (*RepoSignals, error) {
	if err := idx.Validate(); err != nil {
		return nil, err
	}

	s := &RepoSignals{
		RepoPath:  idx.RepoPath,
		RepoName:  idx.RepoName,
		ScannedAt: idx.ScannedAt,
	}

	e.detectLanguages(idx, s)
	e.detectFrameworks(idx, s)
	e.assessDocs(idx, s)
	e.assessTesting(idx, s)
	e.assessCI(idx, s)
	e.assessSecurity(idx, s)
	e.detectCharacteristics(idx, s)
	s.Gaps = identifyGaps(s)

	e.log.Info("extracted signals for %s: lang=%s frameworks=%d gaps=%d",
		s.RepoName, s.PrimaryLanguage, len(s.Frameworks), len(s.Gaps))
	return s, nil
}

func (e *Extractor) detectLanguages(idx *RepoIndex, s *RepoSignals) {
	type agg struct {
		files int
		bytes int64
	}
	byLang := make(map[string]*agg)
	var totalBytes int64
	for _, f := range idx.Files {
		lang, ok := languageByExtension[f.Extension]
		if !ok {
			continue
		}
		a := byLang[lang]
		if a == nil {
			a = &agg{}
			byLang[lang] = a
		}
		a.files++
		a.bytes += f.SizeBytes
		totalBytes += f.SizeBytes
	}

	for lang, a := range byLang {
		pct := 0.0
		if totalBytes > 0 {
			pct = float64(a.bytes) / float64(totalBytes) * 100
		}
		s.Languages = append(s.Languages, LanguageStats{
			Language: lang, FileCount: a.files, TotalBytes: a.bytes, Percentage: pct,
		})
	}
	sort.Slice(s.Languages, func(i, j int) bool {
		if s.Languages[i].TotalBytes != s.Languages[j].TotalBytes {
			return s.Languages[i].TotalBytes > s.Languages[j].TotalBytes
		}
		return s.Languages[i].Language < s.Languages[j].Language
	})
	if len(s.Languages) > 0 {
		s.PrimaryLanguage = s.Languages[0].Language
	}
}

func (e *Extractor) manifestContent(idx *RepoIndex, name string) string {
	if e.read == nil {
		return ""
	}
	for _, f := range idx.Files {
		if f.Path == name || strings.HasSuffix(f.Path, "/"+name) {
			content, err := e.read(f, 64*1024)
			if err != nil {
				e.log.Debug("manifest %s unreadable: %v", f.Path, err)
				continue
			}
			return strings.ToLower(content)
		}
	}
	return ""
}

func (e *Extractor) detectFrameworks(idx *RepoIndex, s *RepoSignals) {
	manifests := make(map[string]string)
	seen := make(map[string]bool)
	for _, m := range frameworkMarkers {
		if seen[m.name] {
			continue
		}
		var hit bool
		var evidence string
		if m.manifest != "" {
			content, ok := manifests[m.manifest]
			if !ok {
				content = e.manifestContent(idx, m.manifest)
				manifests[m.manifest] = content
			}
			if content != "" && strings.Contains(content, strings.ToLower(m.needle)) {
				hit, evidence = true, m.manifest
			}
		} else {
			for _, f := range idx.Files {
				if strings.Contains(strings.ToLower(f.Path), m.pathFragment) {
					hit, evidence = true, f.Path
					break
				}
			}
		}
		if !hit {
			continue
		}
		seen[m.name] = true
		s.Frameworks = append(s.Frameworks, Framework{
			Name: m.name, Category: m.category, Confidence: 0.9, Evidence: []string{evidence},
		})
		s.HasAPI = s.HasAPI || m.api
		s.HasWebUI = s.HasWebUI || m.webUI
		s.HasDatabase = s.HasDatabase || m.database
	}
}

func (e *Extractor) assessDocs(idx *RepoIndex, s *RepoSignals) {
	d := &s.Docs
	for _, f := range idx.Files {
		base := strings.ToLower(f.Path)
		switch {
		case base == "readme.md" || base == "readme.rst" || base == "readme":
			d.HasReadme = true
			d.ReadmeSizeBytes = f.SizeBytes
		case strings.HasPrefix(base, "contributing"):
			d.HasContributing = true
		case strings.HasPrefix(base, "changelog"):
			d.HasChangelog = true
		case strings.HasPrefix(base, "license") || strings.HasPrefix(base, "copying"):
			d.HasLicense = true
		}
		if strings.HasPrefix(base, "docs/") || strings.HasPrefix(base, "doc/") {
			d.DocFileCount++
			if strings.Contains(base, "architecture") || strings.Contains(base, "design") {
				d.HasArchitectureDocs = true
			}
			if strings.Contains(base, "api") {
				d.HasAPIDocs = true
			}
		}
		if strings.Contains(base, "architecture.md") {
			d.HasArchitectureDocs = true
		}
		if strings.Contains(base, "openapi") || strings.Contains(base, "swagger") {
			d.HasAPIDocs = true
		}
	}

	score := 0.0
	if d.HasReadme {
		score += 0.3
		if d.ReadmeSizeBytes > 2048 {
			score += 0.1
		}
	}
	if d.HasContributing {
		score += 0.15
	}
	if d.HasChangelog {
		score += 0.1
	}
	if d.HasLicense {
		score += 0.1
	}
	if d.HasArchitectureDocs {
		score += 0.15
	}
	if d.HasAPIDocs {
		score += 0.1
	}
	d.Score = score
}

func (e *Extractor) assessTesting(idx *RepoIndex, s *RepoSignals) {
	t := &s.Testing
	for _, f := range idx.Files {
		lower := strings.ToLower(f.Path)
		if strings.HasPrefix(lower, "test/") || strings.HasPrefix(lower, "tests/") ||
			strings.Contains(lower, "/test/") || strings.Contains(lower, "/tests/") ||
			strings.Contains(lower, "/__tests__/") {
			t.HasTestFolder = true
		}
		base := lower[strings.LastIndex(lower, "/")+1:]
		if strings.HasSuffix(base, "_test.go") || strings.HasPrefix(base, "test_") ||
			strings.HasSuffix(base, ".test.js") || strings.HasSuffix(base, ".test.ts") ||
			strings.HasSuffix(base, ".spec.js") || strings.HasSuffix(base, ".spec.ts") ||
			strings.HasSuffix(base, "_spec.rb") {
			t.TestFileCount++
		}
	}
	seen := make(map[string]bool)
	for _, m := range testFrameworkMarkers {
		if seen[m.name] {
			continue
		}
		if content := e.manifestContent(idx, m.manifest); content != "" && strings.Contains(content, strings.ToLower(m.needle)) {
			if m.name == "go test" {
				// go test exists wherever a go.mod does, but only counts as a
				// configured framework when test files are present.
				if t.TestFileCount == 0 {
					continue
				}
			}
			seen[m.name] = true
			t.Frameworks = append(t.Frameworks, m.name)
		}
	}
	sort.Strings(t.Frameworks)

	score := 0.0
	if t.HasTestFolder {
		score += 0.3
	}
	if t.TestFileCount > 0 {
		score += 0.2
	}
	if t.TestFileCount >= 10 {
		score += 0.2
	}
	if len(t.Frameworks) > 0 {
		score += 0.3
	}
	t.Score = score
}

func (e *Extractor) assessCI(idx *RepoIndex, s *RepoSignals) {
	c := &s.CI
	seen := make(map[string]bool)
	addPlatform := func(name string) {
		if !seen[name] {
			seen[name] = true
			c.Platforms = append(c.Platforms, name)
		}
	}
	for _, f := range idx.Files {
		lower := strings.ToLower(f.Path)
		switch {
		case strings.HasPrefix(lower, ".github/workflows/"):
			c.HasCIConfig = true
			addPlatform("github-actions")
		case lower == ".gitlab-ci.yml":
			c.HasCIConfig = true
			addPlatform("gitlab-ci")
		case lower == ".circleci/config.yml":
			c.HasCIConfig = true
			addPlatform("circleci")
		case lower == "jenkinsfile":
			c.HasCIConfig = true
			addPlatform("jenkins")
		}
		base := lower[strings.LastIndex(lower, "/")+1:]
		if base == "dockerfile" || base == "docker-compose.yml" || base == "docker-compose.yaml" {
			c.HasDocker = true
		}
	}
	sort.Strings(c.Platforms)

	score := 0.0
	if c.HasCIConfig {
		score += 0.6
	}
	if c.HasDocker {
		score += 0.4
	}
	c.Score = score
}

func (e *Extractor) assessSecurity(idx *RepoIndex, s *RepoSignals) {
	sec := &s.Security
	for _, f := range idx.Files {
		lower := strings.ToLower(f.Path)
		switch {
		case lower == "security.md" || lower == ".github/security.md":
			sec.HasSecurityPolicy = true
		case lower == ".github/dependabot.yml" || lower == ".github/dependabot.yaml":
			sec.HasDependabot = true
		case strings.HasSuffix(lower, ".env.example") || strings.HasSuffix(lower, ".env.sample"):
			sec.HasEnvExample = true
		}
	}

	score := 0.0
	if sec.HasSecurityPolicy {
		score += 0.4
	}
	if sec.HasDependabot {
		score += 0.3
	}
	if sec.HasEnvExample {
		score += 0.3
	}
	sec.Score = score
}

func (e *Extractor) detectCharacteristics(idx *RepoIndex, s *RepoSignals) {
	monorepoIndicators := map[string]bool{
		"lerna.json": true, "pnpm-workspace.yaml": true, "turbo.json": true, "nx.json": true,
	}
	packageDirs := make(map[string]bool)

	for _, f := range idx.Files {
		lower := strings.ToLower(f.Path)
		base := lower[strings.LastIndex(lower, "/")+1:]

		if monorepoIndicators[lower] {
			s.IsMonorepo = true
		}
		if strings.HasPrefix(lower, "packages/") {
			parts := strings.SplitN(lower, "/", 3)
			if len(parts) >= 2 {
				packageDirs[parts[1]] = true
			}
		}

		if !s.HasAPI && (strings.Contains(lower, "/api/") || strings.HasPrefix(lower, "api/") ||
			strings.Contains(base, "routes") || strings.Contains(base, "endpoints")) {
			s.HasAPI = true
		}
		if !s.HasCLI && (base == "cli.py" || base == "main.go" || base == "__main__.py" ||
			strings.HasPrefix(lower, "bin/") || strings.HasPrefix(lower, "cmd/")) {
			s.HasCLI = true
		}
		if !s.HasDatabase && (strings.Contains(lower, "migrations/") ||
			strings.Contains(lower, "/models/") || strings.HasPrefix(lower, "models/") ||
			base == "schema.sql" || base == "schema.prisma") {
			s.HasDatabase = true
		}
		if !s.HasAuth && (strings.Contains(lower, "auth") || strings.Contains(lower, "login") ||
			strings.Contains(lower, "jwt") || strings.Contains(lower, "oauth")) {
			s.HasAuth = true
		}
	}
	if len(packageDirs) >= 2 {
		s.IsMonorepo = true
	}
}

// identifyGaps converts signals into the gap statements planning boosts key
// off. The strings are stable identifiers as much as prose.
func identifyGaps(s *RepoSignals) []string {
	var gaps []string

	if !s.Docs.HasReadme {
		gaps = append(gaps, "No README found")
	} else if s.Docs.ReadmeSizeBytes < 500 {
		gaps = append(gaps, "README is minimal and could be expanded")
	}
	if !s.Docs.HasArchitectureDocs {
		gaps = append(gaps, "No architecture documentation")
	}
	if !s.Docs.HasContributing {
		gaps = append(gaps, "No CONTRIBUTING guide for new contributors")
	}

	if !s.Testing.HasTestFolder {
		gaps = append(gaps, "No test directory found")
	}
	if len(s.Testing.Frameworks) == 0 {
		gaps = append(gaps, "No test framework configured")
	}
	if s.Testing.HasTestFolder && s.Testing.TestFileCount < 5 {
		gaps = append(gaps, "Limited test coverage")
	}

	if !s.CI.HasCIConfig {
		gaps = append(gaps, "No CI/CD configuration detected")
	}

	if !s.Security.HasSecurityPolicy {
		gaps = append(gaps, "No SECURITY policy or vulnerability reporting process")
	}
	if !s.Security.HasEnvExample {
		gaps = append(gaps, "No .env.example for environment configuration")
	}
	if s.HasAuth && !s.Security.HasSecurityPolicy {
		gaps = append(gaps, "Authentication present but security documentation may be lacking")
	}
	if s.HasAPI && !s.Docs.HasAPIDocs {
		gaps = append(gaps, "API exists but lacks documentation")
	}

	return gaps
}
