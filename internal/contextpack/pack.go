package contextpack

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"apivault/internal/guard"
	"apivault/internal/index"
	"apivault/internal/logging"
	"apivault/internal/token"
)

// Limits caps how much file content one packaged context may carry.
type Limits struct {
	MaxExcerptBytes      int
	MaxTotalContextBytes int
}

// DefaultLimits returns the documented packaging caps.
func DefaultLimits() Limits {
	return Limits{
		MaxExcerptBytes:      8192,
		MaxTotalContextBytes: 65536,
	}
}

// Result is one packaged, fully sanitized context.
type Result struct {
	Context    string
	FilesUsed  []string
	TotalBytes int
	// TokenCount is the tokenizer count of Context, as opposed to the byte
	// heuristic EstimateTokens uses before any file is read.
	TokenCount int
	// Redactions counts secret spans replaced across all excerpts.
	Redactions int
	Reports    []guard.Report
}

// Packager reads, sanitizes, and concatenates context excerpts.
type Packager struct {
	guard  *guard.Guard
	limits Limits
	log    logging.Logger
}

// NewPackager builds a Packager; a nil guard gets the default configuration.
func NewPackager(g *guard.Guard, limits Limits, log logging.Logger) *Packager {
	if g == nil {
		g = guard.New(guard.DefaultConfig())
	}
	def := DefaultLimits()
	if limits.MaxExcerptBytes <= 0 {
		limits.MaxExcerptBytes = def.MaxExcerptBytes
	}
	if limits.MaxTotalContextBytes <= 0 {
		limits.MaxTotalContextBytes = def.MaxTotalContextBytes
	}
	return &Packager{guard: g, limits: limits, log: logging.OrNop(log)}
}

// Package assembles the excerpts for one ref set. Sensitive and binary files
// are dropped, every excerpt is sanitized, and the total is truncated to the
// context byte cap.
func (p *Packager) Package(repoRoot string, idx *index.RepoIndex, refs []Ref) (*Result, error) {
	res := &Result{}

	for _, ref := range refs {
		if res.TotalBytes >= p.limits.MaxTotalContextBytes {
			break
		}
		entry, ok := idx.Lookup(ref.FilePath)
		if !ok || entry.IsBinary {
			continue
		}
		if guard.IsSensitivePath(ref.FilePath) {
			continue
		}

		maxBytes := ref.MaxBytes
		if maxBytes <= 0 || maxBytes > p.limits.MaxExcerptBytes {
			maxBytes = p.limits.MaxExcerptBytes
		}
		content, err := index.ReadContent(repoRoot, entry, maxBytes)
		if err != nil {
			p.log.Warn("context read failed for %s: %v", ref.FilePath, err)
			continue
		}
		if content == "" {
			continue
		}

		safe, report := p.guard.Sanitize(content, ref.FilePath)
		res.Redactions += report.Total
		res.Reports = append(res.Reports, report)

		if res.TotalBytes+len(safe) > p.limits.MaxTotalContextBytes {
			remaining := p.limits.MaxTotalContextBytes - res.TotalBytes
			if remaining < 500 {
				continue
			}
			safe = truncateExcerpt(safe, remaining)
		}

		header := "### File: " + ref.FilePath
		if ref.Reason != "" {
			header += " (" + ref.Reason + ")"
		}
		res.Context += header + "\n```\n" + safe + "\n```\n\n"
		res.FilesUsed = append(res.FilesUsed, ref.FilePath)
		res.TotalBytes += len(safe)
	}

	res.TokenCount = token.Count(res.Context)
	return res, nil
}

const redactionMarker = "[REDACTED:"

// truncateExcerpt cuts a sanitized excerpt to at most n bytes, backing up so
// the cut never splits a multi-byte rune or a redaction placeholder.
func truncateExcerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r == utf8.RuneError && size <= 1 {
			s = s[:len(s)-1]
			continue
		}
		break
	}
	if i := strings.LastIndexByte(s, '['); i >= 0 {
		tail := s[i:]
		if !strings.Contains(tail, "]") && looksLikeMarkerPrefix(tail) {
			s = s[:i]
		}
	}
	return s
}

func looksLikeMarkerPrefix(tail string) bool {
	if len(tail) < len(redactionMarker) {
		return strings.HasPrefix(redactionMarker, tail)
	}
	return strings.HasPrefix(tail, redactionMarker)
}

// FileTree renders a compact directory listing for context.
func FileTree(idx *index.RepoIndex, maxFiles int) string {
	if maxFiles <= 0 {
		maxFiles = 100
	}
	lines := []string{"## Repository Structure", "```"}

	dirs := make(map[string][]string)
	limit := len(idx.Files)
	if limit > maxFiles {
		limit = maxFiles
	}
	for _, f := range idx.Files[:limit] {
		dir, name := ".", f.Path
		if i := strings.LastIndex(f.Path, "/"); i >= 0 {
			dir, name = f.Path[:i], f.Path[i+1:]
		}
		dirs[dir] = append(dirs[dir], name)
	}

	sortedDirs := make([]string, 0, len(dirs))
	for dir := range dirs {
		sortedDirs = append(sortedDirs, dir)
	}
	sort.Strings(sortedDirs)

	for _, dir := range sortedDirs {
		names := dirs[dir]
		sort.Strings(names)
		if dir == "." {
			lines = append(lines, names...)
			continue
		}
		lines = append(lines, dir+"/")
		perDir := names
		if len(perDir) > 20 {
			perDir = perDir[:20]
		}
		for _, name := range perDir {
			lines = append(lines, "  "+name)
		}
		if len(names) > 20 {
			lines = append(lines, fmt.Sprintf("  ... (%d more)", len(names)-20))
		}
	}
	if len(idx.Files) > maxFiles {
		lines = append(lines, fmt.Sprintf("... (%d more files)", len(idx.Files)-maxFiles))
	}
	lines = append(lines, "```")
	return strings.Join(lines, "\n")
}

// SignalsSection renders the extracted signals for context.
func SignalsSection(s *index.RepoSignals) string {
	lines := []string{"## Repository Analysis"}

	if s.PrimaryLanguage != "" {
		lines = append(lines, "**Primary Language:** "+s.PrimaryLanguage)
	}
	if len(s.Languages) > 0 {
		langs := make([]string, 0, 5)
		for _, l := range s.Languages {
			langs = append(langs, fmt.Sprintf("%s (%.1f%%)", l.Language, l.Percentage))
			if len(langs) == 5 {
				break
			}
		}
		lines = append(lines, "**Languages:** "+strings.Join(langs, ", "))
	}
	if len(s.Frameworks) > 0 {
		fws := make([]string, 0, 5)
		for _, f := range s.Frameworks {
			fws = append(fws, fmt.Sprintf("%s (%.0f%%)", f.Name, f.Confidence*100))
			if len(fws) == 5 {
				break
			}
		}
		lines = append(lines, "**Frameworks/Tools:** "+strings.Join(fws, ", "))
	}

	var traits []string
	for _, trait := range []struct {
		set  bool
		name string
	}{
		{s.HasAPI, "API"},
		{s.HasWebUI, "Web UI"},
		{s.HasCLI, "CLI"},
		{s.HasDatabase, "Database"},
		{s.HasAuth, "Authentication"},
		{s.IsMonorepo, "Monorepo"},
	} {
		if trait.set {
			traits = append(traits, trait.name)
		}
	}
	if len(traits) > 0 {
		lines = append(lines, "**Characteristics:** "+strings.Join(traits, ", "))
	}

	lines = append(lines, fmt.Sprintf("**Docs maturity:** %.2f | **Testing:** %.2f | **CI:** %.2f | **Security:** %.2f",
		s.Docs.Score, s.Testing.Score, s.CI.Score, s.Security.Score))

	if len(s.Gaps) > 0 {
		lines = append(lines, "", "**Identified gaps:**")
		for _, gap := range s.Gaps {
			lines = append(lines, "- "+gap)
		}
	}
	return strings.Join(lines, "\n")
}
