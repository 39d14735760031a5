// Package cache provides content-addressed storage for generation responses.
// A fingerprint is a SHA-256 over the canonical JSON encoding of the request
// parameters, computed after redaction so no raw secret ever influences a
// cache key. Entries are write-once: one file per fingerprint, created
// atomically, never overwritten.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"apivault/internal/logging"
)

// Request carries every parameter that distinguishes one generation request
// from another. Prompts must already be sanitized when the fingerprint is
// taken.
type Request struct {
	Model       string  `json:"model"`
	System      string  `json:"system"`
	User        string  `json:"user"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// Fingerprint returns the content address of a request. Identical requests
// always produce identical fingerprints across processes and platforms.
func Fingerprint(req Request) string {
	// encoding/json emits struct fields in declaration order with no
	// insignificant whitespace, which is canonical enough for a fixed type.
	data, err := json.Marshal(req)
	if err != nil {
		// Request holds only strings and numbers; Marshal cannot fail.
		panic(fmt.Sprintf("fingerprint request: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Entry is one cached response.
type Entry struct {
	Fingerprint      string    `json:"fingerprint"`
	CreatedAt        time.Time `json:"created_at"`
	Model            string    `json:"model"`
	InputTokens      int       `json:"input_tokens"`
	OutputTokens     int       `json:"output_tokens"`
	ResponseText     string    `json:"response_text"`
	PromptTemplateID string    `json:"prompt_template_id,omitempty"`
	ContextHash      string    `json:"context_hash,omitempty"`
}

// Store is the disk cache: one JSON file per fingerprint under a single
// directory, fronted by an in-memory LRU for repeated reads. Safe for
// concurrent use.
type Store struct {
	dir string
	mem *lru.Cache[string, *Entry]
	log logging.Logger
}

// DefaultMemoryEntries bounds the read-through LRU.
const DefaultMemoryEntries = 256

// NewStore opens (creating if needed) a cache directory.
func NewStore(dir string, log logging.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	mem, err := lru.New[string, *Entry](DefaultMemoryEntries)
	if err != nil {
		return nil, err
	}
	return &Store{dir: dir, mem: mem, log: logging.OrNop(log)}, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(fingerprint string) string {
	return filepath.Join(s.dir, fingerprint+".json")
}

// Has reports whether a fingerprint is cached, without reading the entry.
func (s *Store) Has(fingerprint string) bool {
	if s.mem.Contains(fingerprint) {
		return true
	}
	_, err := os.Stat(s.path(fingerprint))
	return err == nil
}

// Get loads a cached entry. A missing entry returns (nil, nil); a corrupted
// one returns an error.
func (s *Store) Get(fingerprint string) (*Entry, error) {
	if entry, ok := s.mem.Get(fingerprint); ok {
		return entry, nil
	}

	data, err := os.ReadFile(s.path(fingerprint))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("corrupted cache entry %s: %w", fingerprint, err)
	}
	if entry.Fingerprint != fingerprint {
		return nil, fmt.Errorf("cache entry %s carries mismatched fingerprint %s", fingerprint, entry.Fingerprint)
	}

	s.mem.Add(fingerprint, &entry)
	return &entry, nil
}

// Put stores an entry. If the fingerprint already exists the call is a no-op:
// first write wins and replays see identical bytes.
func (s *Store) Put(entry *Entry) error {
	if entry.Fingerprint == "" {
		return fmt.Errorf("cache entry missing fingerprint")
	}
	final := s.path(entry.Fingerprint)
	if _, err := os.Stat(final); err == nil {
		s.log.Debug("cache entry %s already present, keeping first write", entry.Fingerprint)
		return nil
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	// Link instead of rename: it fails if the entry appeared since the stat
	// above, so a concurrent first write is never replaced.
	if err := os.Link(tmpName, final); err != nil {
		os.Remove(tmpName)
		if os.IsExist(err) {
			s.log.Debug("cache entry %s written concurrently, keeping first write", entry.Fingerprint)
			return nil
		}
		return err
	}
	os.Remove(tmpName)

	s.mem.Add(entry.Fingerprint, entry)
	return nil
}

// Len counts entries on disk.
func (s *Store) Len() (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}
