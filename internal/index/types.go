// Package index builds and describes the repository snapshot the planner and
// runner consume: a file index with sizes and content hashes, plus detected
// signals (languages, frameworks, maturity, gaps).
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileEntry is one file in the repository index.
type FileEntry struct {
	Path      string `json:"path"` // relative to the repo root, slash-separated
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
	IsBinary  bool   `json:"is_binary"`
	Extension string `json:"extension"` // without dot, lowercase
}

// RepoIndex is the complete file index of one repository snapshot.
type RepoIndex struct {
	RepoPath       string      `json:"repo_path"`
	RepoName       string      `json:"repo_name"`
	ScannedAt      time.Time   `json:"scanned_at"`
	TotalFiles     int         `json:"total_files"`
	TotalSizeBytes int64       `json:"total_size_bytes"`
	Files          []FileEntry `json:"files"`
}

// LanguageStats describes one detected programming language.
type LanguageStats struct {
	Language   string  `json:"language"`
	FileCount  int     `json:"file_count"`
	TotalBytes int64   `json:"total_bytes"`
	Percentage float64 `json:"percentage"`
}

// Framework is one detected framework or tool.
type Framework struct {
	Name       string   `json:"name"`
	Category   string   `json:"category"` // framework, library, tool, service
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence,omitempty"`
}

// DocsMaturity assesses documentation coverage.
type DocsMaturity struct {
	HasReadme           bool    `json:"has_readme"`
	HasContributing     bool    `json:"has_contributing"`
	HasChangelog        bool    `json:"has_changelog"`
	HasLicense          bool    `json:"has_license"`
	HasArchitectureDocs bool    `json:"has_architecture_docs"`
	HasAPIDocs          bool    `json:"has_api_docs"`
	ReadmeSizeBytes     int64   `json:"readme_size_bytes"`
	DocFileCount        int     `json:"doc_file_count"`
	Score               float64 `json:"score"`
}

// TestingMaturity assesses test coverage signals.
type TestingMaturity struct {
	HasTestFolder bool     `json:"has_test_folder"`
	TestFileCount int      `json:"test_file_count"`
	Frameworks    []string `json:"frameworks,omitempty"`
	Score         float64  `json:"score"`
}

// CIMaturity assesses delivery automation.
type CIMaturity struct {
	HasCIConfig bool     `json:"has_ci_config"`
	Platforms   []string `json:"platforms,omitempty"`
	HasDocker   bool     `json:"has_docker"`
	Score       float64  `json:"score"`
}

// SecurityMaturity assesses security hygiene signals.
type SecurityMaturity struct {
	HasSecurityPolicy bool    `json:"has_security_policy"`
	HasDependabot     bool    `json:"has_dependabot"`
	HasEnvExample     bool    `json:"has_env_example"`
	Score             float64 `json:"score"`
}

// RepoSignals are the read-only facts the planner scores against.
type RepoSignals struct {
	RepoPath        string           `json:"repo_path"`
	RepoName        string           `json:"repo_name"`
	ScannedAt       time.Time        `json:"scanned_at"`
	PrimaryLanguage string           `json:"primary_language,omitempty"`
	Languages       []LanguageStats  `json:"languages,omitempty"`
	Frameworks      []Framework      `json:"frameworks,omitempty"`
	Docs            DocsMaturity     `json:"docs"`
	Testing         TestingMaturity  `json:"testing"`
	CI              CIMaturity       `json:"ci"`
	Security        SecurityMaturity `json:"security"`
	IsMonorepo      bool             `json:"is_monorepo"`
	HasAPI          bool             `json:"has_api"`
	HasWebUI        bool             `json:"has_web_ui"`
	HasCLI          bool             `json:"has_cli"`
	HasDatabase     bool             `json:"has_database"`
	HasAuth         bool             `json:"has_auth"`
	Gaps            []string         `json:"gaps,omitempty"`
}

// Has reports a named boolean characteristic; planner applicability
// predicates are expressed in these names.
func (s *RepoSignals) Has(name string) bool {
	switch name {
	case "has_api":
		return s.HasAPI
	case "has_web_ui":
		return s.HasWebUI
	case "has_cli":
		return s.HasCLI
	case "has_database":
		return s.HasDatabase
	case "has_auth":
		return s.HasAuth
	case "is_monorepo":
		return s.IsMonorepo
	default:
		return false
	}
}

// Validate rejects indexes that cannot support planning.
func (idx *RepoIndex) Validate() error {
	if idx == nil {
		return fmt.Errorf("repo index is nil")
	}
	if idx.RepoPath == "" {
		return fmt.Errorf("repo index missing repo path")
	}
	if len(idx.Files) == 0 {
		return fmt.Errorf("repo index for %s contains no files", idx.RepoPath)
	}
	return nil
}

// Validate rejects signal sets that cannot support planning.
func (s *RepoSignals) Validate() error {
	if s == nil {
		return fmt.Errorf("repo signals are nil")
	}
	if s.RepoPath == "" {
		return fmt.Errorf("repo signals missing repo path")
	}
	return nil
}

// Lookup returns the entry for a relative path, if indexed.
func (idx *RepoIndex) Lookup(path string) (FileEntry, bool) {
	for _, entry := range idx.Files {
		if entry.Path == path {
			return entry, true
		}
	}
	return FileEntry{}, false
}

func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// SaveIndex persists the index as JSON.
func SaveIndex(idx *RepoIndex, path string) error { return saveJSON(path, idx) }

// LoadIndex loads and validates a persisted index.
func LoadIndex(path string) (*RepoIndex, error) {
	var idx RepoIndex
	if err := loadJSON(path, &idx); err != nil {
		return nil, err
	}
	if err := idx.Validate(); err != nil {
		return nil, err
	}
	return &idx, nil
}

// SaveSignals persists signals as JSON.
func SaveSignals(s *RepoSignals, path string) error { return saveJSON(path, s) }

// LoadSignals loads and validates persisted signals.
func LoadSignals(path string) (*RepoSignals, error) {
	var s RepoSignals
	if err := loadJSON(path, &s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
