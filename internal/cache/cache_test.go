package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testRequest() Request {
	return Request{
		Model:       "claude-sonnet-4-5",
		System:      "You are a documentation generator.",
		User:        "Write a runbook.",
		MaxTokens:   4096,
		Temperature: 0.2,
	}
}

func TestFingerprintIsDeterministic(t *testing.T) {
	req := testRequest()
	fp1 := Fingerprint(req)
	fp2 := Fingerprint(req)

	require.Equal(t, fp1, fp2)
	require.Len(t, fp1, 64)
}

func TestFingerprintChangesWithAnyField(t *testing.T) {
	base := Fingerprint(testRequest())

	variants := []func(*Request){
		func(r *Request) { r.Model = "other-model" },
		func(r *Request) { r.System = "different system" },
		func(r *Request) { r.User = "different user" },
		func(r *Request) { r.MaxTokens = 8192 },
		func(r *Request) { r.Temperature = 0.7 },
	}
	for i, mutate := range variants {
		req := testRequest()
		mutate(&req)
		require.NotEqual(t, base, Fingerprint(req), "variant %d did not change fingerprint", i)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "cache"), nil)
	require.NoError(t, err)
	return s
}

func TestStorePutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	fp := Fingerprint(testRequest())
	entry := &Entry{
		Fingerprint:  fp,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
		Model:        "claude-sonnet-4-5",
		InputTokens:  120,
		OutputTokens: 800,
		ResponseText: "# Runbook\n",
	}

	require.False(t, s.Has(fp))
	require.NoError(t, s.Put(entry))
	require.True(t, s.Has(fp))

	got, err := s.Get(fp)
	require.NoError(t, err)
	require.Equal(t, entry.ResponseText, got.ResponseText)
	require.Equal(t, entry.InputTokens, got.InputTokens)
}

func TestStoreGetMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Get(Fingerprint(testRequest()))
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStorePutIsWriteOnce(t *testing.T) {
	s := newTestStore(t)
	fp := Fingerprint(testRequest())

	require.NoError(t, s.Put(&Entry{Fingerprint: fp, ResponseText: "first"}))
	require.NoError(t, s.Put(&Entry{Fingerprint: fp, ResponseText: "second"}))

	// The LRU may hold the rejected write's value, so read from a fresh store.
	fresh, err := NewStore(s.Dir(), nil)
	require.NoError(t, err)
	got, err := fresh.Get(fp)
	require.NoError(t, err)
	require.Equal(t, "first", got.ResponseText)
}

func TestStoreConcurrentPutsKeepExactlyOneWriter(t *testing.T) {
	dir := t.TempDir()
	fp := Fingerprint(testRequest())

	// Separate stores share no LRU state, so every writer races on disk.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s, err := NewStore(dir, nil)
			require.NoError(t, err)
			require.NoError(t, s.Put(&Entry{
				Fingerprint:  fp,
				ResponseText: fmt.Sprintf("writer-%d", n),
			}))
		}(i)
	}
	wg.Wait()

	fresh, err := NewStore(dir, nil)
	require.NoError(t, err)
	got, err := fresh.Get(fp)
	require.NoError(t, err)
	require.Regexp(t, `^writer-\d$`, got.ResponseText)

	// The surviving entry is immutable from here on.
	before, err := os.ReadFile(filepath.Join(dir, fp+".json"))
	require.NoError(t, err)
	require.NoError(t, fresh.Put(&Entry{Fingerprint: fp, ResponseText: "late"}))
	after, err := os.ReadFile(filepath.Join(dir, fp+".json"))
	require.NoError(t, err)
	require.Equal(t, before, after)

	leftovers, err := filepath.Glob(filepath.Join(dir, ".tmp-*"))
	require.NoError(t, err)
	require.Empty(t, leftovers)
}

func TestStoreRejectsCorruptedEntry(t *testing.T) {
	s := newTestStore(t)
	fp := Fingerprint(testRequest())
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), fp+".json"), []byte("{not json"), 0o644))

	_, err := s.Get(fp)
	require.Error(t, err)
	require.Contains(t, err.Error(), "corrupted")
}

func TestStoreRejectsMismatchedFingerprint(t *testing.T) {
	s := newTestStore(t)
	fp := Fingerprint(testRequest())
	require.NoError(t, os.WriteFile(
		filepath.Join(s.Dir(), fp+".json"),
		[]byte(`{"fingerprint":"deadbeef","response_text":"x"}`), 0o644))

	_, err := s.Get(fp)
	require.Error(t, err)
	require.Contains(t, err.Error(), "mismatched fingerprint")
}

func TestStoreNoTempFilesLeftBehind(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Put(&Entry{Fingerprint: Fingerprint(testRequest()), ResponseText: "x"}))

	leftovers, err := filepath.Glob(filepath.Join(s.Dir(), ".tmp-*"))
	require.NoError(t, err)
	require.Empty(t, leftovers)

	n, err := s.Len()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			req := testRequest()
			req.MaxTokens = 1000 + n%4
			fp := Fingerprint(req)
			_ = s.Put(&Entry{Fingerprint: fp, ResponseText: "r"})
			entry, err := s.Get(fp)
			require.NoError(t, err)
			require.NotNil(t, entry)
		}(i)
	}
	wg.Wait()

	n, err := s.Len()
	require.NoError(t, err)
	require.Equal(t, 4, n)
}
