// Package guard detects and redacts secret-looking content before any text is
// packaged into an external request. Detection combines a fixed pattern
// catalog with a Shannon-entropy heuristic; redaction replaces matched spans
// with non-recoverable placeholders. Reports record spans and classification
// only, never the matched bytes.
package guard

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// UnscannableMarker replaces content that cannot be safely classified.
const UnscannableMarker = "[UNSCANNABLE:content_excluded]"

// BlockedFileMarker replaces the content of files the pre-filter forbids.
const BlockedFileMarker = "[SENSITIVE_FILE:content_blocked]"

// Entry records one detection candidate. Spans reference byte offsets in the
// original text; the matched bytes themselves are never stored.
type Entry struct {
	Pattern    string   `json:"pattern"`
	Severity   Severity `json:"severity"`
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Length     int      `json:"length"`
	Confidence float64  `json:"confidence"`
	Redacted   bool     `json:"redacted"`
}

// Report is the immutable audit trail attached to one sanitized text.
type Report struct {
	Source      string  `json:"source"`
	Total       int     `json:"total_redactions"`
	Entries     []Entry `json:"entries"`
	Unscannable bool    `json:"unscannable,omitempty"`
}

// Config tunes detection. Zero values are replaced by defaults.
type Config struct {
	// MinConfidence is the threshold below which candidates are not redacted.
	MinConfidence float64
	// EntropyThreshold is the bits-per-character floor for the entropy
	// heuristic.
	EntropyThreshold float64
	// EntropyConfidence is assigned to entropy-only candidates.
	EntropyConfidence float64
	// ExtraPatterns extends the builtin catalog.
	ExtraPatterns []Pattern
}

// DefaultConfig returns the documented detection defaults.
func DefaultConfig() Config {
	return Config{
		MinConfidence:     0.5,
		EntropyThreshold:  4.5,
		EntropyConfidence: 0.4,
	}
}

// Guard holds a compiled catalog plus thresholds. It is immutable after New
// and safe for concurrent use.
type Guard struct {
	patterns []Pattern
	cfg      Config
}

// New builds a Guard from config, filling zero fields from DefaultConfig.
func New(cfg Config) *Guard {
	def := DefaultConfig()
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	if cfg.EntropyThreshold <= 0 {
		cfg.EntropyThreshold = def.EntropyThreshold
	}
	if cfg.EntropyConfidence <= 0 {
		cfg.EntropyConfidence = def.EntropyConfidence
	}
	patterns := make([]Pattern, 0, len(builtinPatterns)+len(cfg.ExtraPatterns))
	patterns = append(patterns, builtinPatterns...)
	patterns = append(patterns, cfg.ExtraPatterns...)
	return &Guard{patterns: patterns, cfg: cfg}
}

// entropyCandidate matches quoted high-entropy-looking runs; actual entropy is
// verified before a candidate is kept.
var entropyCandidate = regexp.MustCompile(`['"]([a-zA-Z0-9+/=_\-]{32,})['"]`)

// Sanitize scans text and returns a copy with every confident secret span
// replaced by a placeholder, plus the audit report. Input that cannot be
// scanned (invalid UTF-8 or NUL bytes) is excluded wholesale rather than
// transmitted raw.
func (g *Guard) Sanitize(text, source string) (string, Report) {
	if !utf8.ValidString(text) || strings.ContainsRune(text, 0) {
		return UnscannableMarker, Report{
			Source:      source,
			Total:       1,
			Unscannable: true,
			Entries: []Entry{{
				Pattern:    "unscannable",
				Severity:   SeverityCritical,
				Length:     len(text),
				Confidence: 1.0,
				Redacted:   true,
			}},
		}
	}

	candidates := g.scan(text)

	var kept []Entry
	var spans []Entry
	for _, entry := range candidates {
		switch {
		case entry.Confidence >= g.cfg.MinConfidence:
			entry.Redacted = true
			kept = append(kept, entry)
			spans = append(spans, entry)
		case entry.Severity == SeverityInfo:
			// Observed but not redacted. Anything stronger below threshold is
			// dropped silently so the report does not leak detection noise.
			kept = append(kept, entry)
		}
	}

	redacted := replaceSpans(text, spans)

	total := 0
	for _, entry := range kept {
		if entry.Redacted {
			total++
		}
	}
	return redacted, Report{Source: source, Total: total, Entries: kept}
}

// scan collects pattern and entropy candidates ordered by span position.
func (g *Guard) scan(text string) []Entry {
	var entries []Entry

	for _, pattern := range g.patterns {
		for _, idx := range pattern.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := idx[0], idx[1]
			if len(idx) >= 4 && idx[2] >= 0 {
				start, end = idx[2], idx[3]
			}
			entries = append(entries, Entry{
				Pattern:    pattern.Name,
				Severity:   pattern.Severity,
				Start:      start,
				End:        end,
				Length:     end - start,
				Confidence: pattern.Confidence,
			})
		}
	}

	for _, idx := range entropyCandidate.FindAllStringSubmatchIndex(text, -1) {
		start, end := idx[2], idx[3]
		if shannonEntropy(text[start:end]) < g.cfg.EntropyThreshold {
			continue
		}
		entries = append(entries, Entry{
			Pattern:    "high_entropy_string",
			Severity:   SeverityMedium,
			Start:      start,
			End:        end,
			Length:     end - start,
			Confidence: g.cfg.EntropyConfidence,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Start != entries[j].Start {
			return entries[i].Start < entries[j].Start
		}
		if entries[i].End != entries[j].End {
			return entries[i].End > entries[j].End
		}
		return entries[i].Pattern < entries[j].Pattern
	})
	return entries
}

// replaceSpans rebuilds the text front-to-back, copying the gaps between
// spans and substituting placeholders. Overlapping spans collapse into the
// first (widest) one.
func replaceSpans(text string, spans []Entry) string {
	if len(spans) == 0 {
		return text
	}

	merged := spans[:0:0]
	lastEnd := -1
	for _, span := range spans {
		if span.Start < lastEnd {
			continue
		}
		merged = append(merged, span)
		lastEnd = span.End
	}

	var b strings.Builder
	cursor := 0
	for _, span := range merged {
		b.WriteString(text[cursor:span.Start])
		b.WriteString(placeholder(span.Pattern))
		cursor = span.End
	}
	b.WriteString(text[cursor:])
	return b.String()
}

func placeholder(pattern string) string {
	return fmt.Sprintf("[REDACTED:%s]", pattern)
}

// shannonEntropy returns bits per character of s.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]int)
	for _, r := range s {
		counts[r]++
	}
	length := float64(len([]rune(s)))
	entropy := 0.0
	for _, count := range counts {
		freq := float64(count) / length
		entropy -= freq * math.Log2(freq)
	}
	return entropy
}
