package index

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"apivault/internal/guard"
	"apivault/internal/logging"
)

// ScanConfig controls the filesystem walk.
type ScanConfig struct {
	// ExcludedDirs are directory names skipped wholesale at any depth.
	ExcludedDirs []string
	// ExcludedExtensions are file extensions (with dot) skipped entirely.
	ExcludedExtensions []string
	// MaxFileSizeBytes drops files above the limit from the index.
	MaxFileSizeBytes int64
	// MaxFiles caps the index size; the walk stops once reached.
	MaxFiles int
}

// DefaultScanConfig mirrors the documented scan defaults.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		ExcludedDirs: []string{
			".git", "node_modules", "vendor", "__pycache__", ".venv", "venv",
			"dist", "build", "target", ".idea", ".vscode", ".pytest_cache",
			".mypy_cache", ".tox", "coverage", ".next", ".nuxt",
		},
		ExcludedExtensions: []string{
			".pyc", ".pyo", ".so", ".dylib", ".dll", ".exe", ".o", ".a",
			".class", ".jar", ".war", ".zip", ".tar", ".gz", ".bz2", ".xz",
			".7z", ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico", ".svg",
			".webp", ".mp3", ".mp4", ".avi", ".mov", ".woff", ".woff2",
			".ttf", ".eot", ".min.js", ".min.css", ".lock", ".sqlite", ".db",
		},
		MaxFileSizeBytes: 1 << 20, // 1 MiB
		MaxFiles:         10000,
	}
}

// Scanner walks a repository tree and produces a RepoIndex.
type Scanner struct {
	cfg ScanConfig
	log logging.Logger
}

// NewScanner builds a Scanner, filling zero config fields from defaults.
func NewScanner(cfg ScanConfig, log logging.Logger) *Scanner {
	def := DefaultScanConfig()
	if len(cfg.ExcludedDirs) == 0 {
		cfg.ExcludedDirs = def.ExcludedDirs
	}
	if len(cfg.ExcludedExtensions) == 0 {
		cfg.ExcludedExtensions = def.ExcludedExtensions
	}
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = def.MaxFileSizeBytes
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = def.MaxFiles
	}
	return &Scanner{cfg: cfg, log: logging.OrNop(log)}
}

// Scan walks repoPath and returns a deterministic, path-sorted index.
func (s *Scanner) Scan(repoPath string) (*RepoIndex, error) {
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("repo path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repo path %s is not a directory", abs)
	}

	excludedDirs := make(map[string]struct{}, len(s.cfg.ExcludedDirs))
	for _, d := range s.cfg.ExcludedDirs {
		excludedDirs[d] = struct{}{}
	}

	idx := &RepoIndex{
		RepoPath:  abs,
		RepoName:  filepath.Base(abs),
		ScannedAt: time.Now().UTC(),
	}

	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.log.Warn("skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if _, skip := excludedDirs[d.Name()]; skip && path != abs {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if len(idx.Files) >= s.cfg.MaxFiles {
			return fs.SkipAll
		}

		rel, relErr := filepath.Rel(abs, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if s.excludedByExtension(rel) {
			return nil
		}

		fi, statErr := d.Info()
		if statErr != nil {
			s.log.Warn("skipping %s: %v", rel, statErr)
			return nil
		}
		if fi.Size() > s.cfg.MaxFileSizeBytes {
			s.log.Debug("skipping oversized file %s (%d bytes)", rel, fi.Size())
			return nil
		}

		entry, hashErr := s.indexFile(path, rel, fi.Size())
		if hashErr != nil {
			s.log.Warn("skipping %s: %v", rel, hashErr)
			return nil
		}
		idx.Files = append(idx.Files, entry)
		idx.TotalSizeBytes += entry.SizeBytes
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(idx.Files, func(i, j int) bool { return idx.Files[i].Path < idx.Files[j].Path })
	idx.TotalFiles = len(idx.Files)
	s.log.Info("indexed %d files (%d bytes) under %s", idx.TotalFiles, idx.TotalSizeBytes, abs)
	return idx, nil
}

func (s *Scanner) excludedByExtension(rel string) bool {
	lower := strings.ToLower(rel)
	for _, ext := range s.cfg.ExcludedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func (s *Scanner) indexFile(path, rel string, size int64) (FileEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileEntry{}, err
	}
	defer f.Close()

	h := sha256.New()
	head := make([]byte, 8192)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return FileEntry{}, err
	}
	head = head[:n]
	h.Write(head)
	if _, err := io.Copy(h, f); err != nil {
		return FileEntry{}, err
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(rel)), ".")
	return FileEntry{
		Path:      rel,
		SizeBytes: size,
		SHA256:    hex.EncodeToString(h.Sum(nil)),
		IsBinary:  looksBinary(head),
		Extension: ext,
	}, nil
}

// looksBinary sniffs the leading bytes for NUL, the same heuristic git uses.
func looksBinary(head []byte) bool {
	return bytes.IndexByte(head, 0) >= 0
}

// ReadContent returns file bytes for an indexed entry, respecting the
// sensitive-path pre-filter and a byte cap. Blocked and binary files return a
// marker instead of content.
func ReadContent(repoRoot string, entry FileEntry, maxBytes int) (string, error) {
	if guard.IsSensitivePath(entry.Path) {
		return guard.BlockedFileMarker, nil
	}
	if entry.IsBinary {
		return guard.UnscannableMarker, nil
	}
	if maxBytes <= 0 {
		maxBytes = 64 * 1024
	}

	f, err := os.Open(filepath.Join(repoRoot, filepath.FromSlash(entry.Path)))
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, maxBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}
	return string(buf[:n]), nil
}
