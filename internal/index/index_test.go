package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, root, rel string, content []byte) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func fixtureRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFixture(t, root, "README.md", []byte("# demo\n\nA small fixture service used in tests. It exposes an HTTP API and ships a CLI.\n"))
	writeFixture(t, root, "main.go", []byte("package main\n\nfunc main() {}\n"))
	writeFixture(t, root, "api/routes.go", []byte("package api\n"))
	writeFixture(t, root, "api/routes_test.go", []byte("package api\n"))
	writeFixture(t, root, "go.mod", []byte("module demo\n\ngo 1.24\n\nrequire github.com/gin-gonic/gin v1.10.0\n"))
	writeFixture(t, root, "internal/auth/jwt.go", []byte("package auth\n"))
	writeFixture(t, root, "migrations/001_init.sql", []byte("CREATE TABLE users (id int);\n"))
	writeFixture(t, root, ".github/workflows/ci.yml", []byte("on: push\n"))
	writeFixture(t, root, "Dockerfile", []byte("FROM scratch\n"))
	writeFixture(t, root, "node_modules/pkg/index.js", []byte("ignored\n"))
	writeFixture(t, root, ".git/HEAD", []byte("ref: refs/heads/main\n"))
	writeFixture(t, root, "assets/blob.bin", []byte{0x00, 0x01, 0x02, 0x03})
	writeFixture(t, root, "cache.pyc", []byte("ignored"))
	return root
}

func TestScanIndexesAndExcludes(t *testing.T) {
	root := fixtureRepo(t)
	s := NewScanner(ScanConfig{}, nil)

	idx, err := s.Scan(root)
	require.NoError(t, err)
	require.NoError(t, idx.Validate())
	require.Equal(t, filepath.Base(root), idx.RepoName)

	paths := make(map[string]FileEntry, len(idx.Files))
	for _, f := range idx.Files {
		paths[f.Path] = f
	}
	require.Contains(t, paths, "README.md")
	require.Contains(t, paths, "api/routes.go")
	require.NotContains(t, paths, "node_modules/pkg/index.js")
	require.NotContains(t, paths, ".git/HEAD")
	require.NotContains(t, paths, "cache.pyc")

	blob := paths["assets/blob.bin"]
	require.True(t, blob.IsBinary)
	require.Equal(t, "bin", blob.Extension)

	readme := paths["README.md"]
	require.False(t, readme.IsBinary)
	require.Len(t, readme.SHA256, 64)
	require.Equal(t, readme.SizeBytes, int64(len("# demo\n\nA small fixture service used in tests. It exposes an HTTP API and ships a CLI.\n")))

	// Deterministic ordering.
	for i := 1; i < len(idx.Files); i++ {
		require.Less(t, idx.Files[i-1].Path, idx.Files[i].Path)
	}
}

func TestScanRespectsMaxFileSize(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "small.txt", []byte("ok"))
	writeFixture(t, root, "big.txt", make([]byte, 2048))

	s := NewScanner(ScanConfig{MaxFileSizeBytes: 1024}, nil)
	idx, err := s.Scan(root)
	require.NoError(t, err)

	require.Len(t, idx.Files, 1)
	require.Equal(t, "small.txt", idx.Files[0].Path)
}

func TestExtractSignals(t *testing.T) {
	root := fixtureRepo(t)
	s := NewScanner(ScanConfig{}, nil)
	idx, err := s.Scan(root)
	require.NoError(t, err)

	read := func(entry FileEntry, maxBytes int) (string, error) {
		return ReadContent(root, entry, maxBytes)
	}
	sig, err := NewExtractor(read, nil).Extract(idx)
	require.NoError(t, err)

	require.Equal(t, "Go", sig.PrimaryLanguage)
	require.True(t, sig.HasAPI)
	require.True(t, sig.HasCLI)
	require.True(t, sig.HasAuth)
	require.True(t, sig.HasDatabase)
	require.False(t, sig.IsMonorepo)

	require.True(t, sig.Docs.HasReadme)
	require.True(t, sig.CI.HasCIConfig)
	require.True(t, sig.CI.HasDocker)
	require.Contains(t, sig.CI.Platforms, "github-actions")

	names := make([]string, 0, len(sig.Frameworks))
	for _, fw := range sig.Frameworks {
		names = append(names, fw.Name)
	}
	require.Contains(t, names, "Gin")
	require.Contains(t, names, "Docker")

	require.Contains(t, sig.Gaps, "No architecture documentation")
	require.Contains(t, sig.Gaps, "No SECURITY policy or vulnerability reporting process")
	require.Contains(t, sig.Gaps, "API exists but lacks documentation")
	require.Contains(t, sig.Gaps, "Authentication present but security documentation may be lacking")
	require.NotContains(t, sig.Gaps, "No README found")
}

func TestIdentifyGapsMinimalRepo(t *testing.T) {
	s := &RepoSignals{RepoPath: "/tmp/x", RepoName: "x"}
	gaps := identifyGaps(s)

	require.Contains(t, gaps, "No README found")
	require.Contains(t, gaps, "No test directory found")
	require.Contains(t, gaps, "No test framework configured")
	require.Contains(t, gaps, "No CONTRIBUTING guide for new contributors")
	require.Contains(t, gaps, "No .env.example for environment configuration")
	require.Contains(t, gaps, "No CI/CD configuration detected")
	require.NotContains(t, gaps, "README is minimal and could be expanded")
}

func TestIdentifyGapsLimitedCoverage(t *testing.T) {
	s := &RepoSignals{
		Docs:    DocsMaturity{HasReadme: true, ReadmeSizeBytes: 100},
		Testing: TestingMaturity{HasTestFolder: true, TestFileCount: 2, Frameworks: []string{"pytest"}},
	}
	gaps := identifyGaps(s)

	require.Contains(t, gaps, "README is minimal and could be expanded")
	require.Contains(t, gaps, "Limited test coverage")
	require.NotContains(t, gaps, "No test directory found")
	require.NotContains(t, gaps, "No test framework configured")
}

func TestIndexPersistenceRoundTrip(t *testing.T) {
	root := fixtureRepo(t)
	s := NewScanner(ScanConfig{}, nil)
	idx, err := s.Scan(root)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "index.json")
	require.NoError(t, SaveIndex(idx, path))

	loaded, err := LoadIndex(path)
	require.NoError(t, err)
	require.Equal(t, idx.TotalFiles, loaded.TotalFiles)
	require.Equal(t, idx.Files, loaded.Files)
}

func TestLoadIndexRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"repo_path":"/tmp/x","files":[]}`), 0o644))

	_, err := LoadIndex(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no files")
}

func TestReadContentBlocksSensitivePaths(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, ".env", []byte("SECRET_KEY=abc"))

	content, err := ReadContent(root, FileEntry{Path: ".env"}, 1024)
	require.NoError(t, err)
	require.Equal(t, "[SENSITIVE_FILE:content_blocked]", content)
}

func TestReadContentCapsBytes(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "big.txt", make([]byte, 100))

	content, err := ReadContent(root, FileEntry{Path: "big.txt"}, 10)
	require.NoError(t, err)
	require.Len(t, content, 10)
}
