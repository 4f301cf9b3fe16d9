package tofu

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "known_hosts.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreVerifyFirstUse(t *testing.T) {
	store := openTestStore(t)

	class, err := store.Verify("example.com", 1965, "sha256:aaaa", true)
	require.NoError(t, err)
	require.Equal(t, FirstUse, class)

	entry, ok, err := store.Get("example.com", 1965)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "sha256:aaaa", entry.Fingerprint)
	require.Equal(t, entry.FirstSeen, entry.LastSeen)
}

func TestStoreVerifyFirstUseForbidden(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Verify("example.com", 1965, "sha256:aaaa", false)
	require.Error(t, err)
	var forbidden *ErrFirstUseForbidden
	require.ErrorAs(t, err, &forbidden)

	_, ok, err := store.Get("example.com", 1965)
	require.NoError(t, err)
	require.False(t, ok, "a forbidden first use must not create an entry")
}

func TestStoreVerifyMatchUpdatesLastSeen(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Verify("example.com", 1965, "sha256:aaaa", true)
	require.NoError(t, err)
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = store.db.Exec(`UPDATE known_hosts SET last_seen = ? WHERE hostname = ? AND port = ?`,
		old.Format(time.RFC3339), "example.com", 1965)
	require.NoError(t, err)

	class, err := store.Verify("example.com", 1965, "sha256:aaaa", true)
	require.NoError(t, err)
	require.Equal(t, Match, class)

	entry, ok, err := store.Get("example.com", 1965)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, entry.LastSeen.After(old), "a matching verify must refresh last_seen")
}

func TestStoreVerifyChangedFingerprintIsDistinctError(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Verify("example.com", 1965, "sha256:aaaa", true)
	require.NoError(t, err)

	class, err := store.Verify("example.com", 1965, "sha256:bbbb", true)
	require.Error(t, err)
	require.Equal(t, Changed, class)

	var changed *CertificateChangedError
	require.ErrorAs(t, err, &changed)
	require.Equal(t, "sha256:aaaa", changed.OldFingerprint)
	require.Equal(t, "sha256:bbbb", changed.NewFingerprint)

	entry, ok, err := store.Get("example.com", 1965)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "sha256:aaaa", entry.Fingerprint, "a rejected change must not overwrite the stored entry")
}

func TestStoreTrustPreservesFirstSeenAcrossReplace(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Trust("example.com", 1965, "sha256:aaaa"))

	before, ok, err := store.Get("example.com", 1965)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Trust("example.com", 1965, "sha256:bbbb"))
	after, ok, err := store.Get("example.com", 1965)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "sha256:bbbb", after.Fingerprint)
	require.Equal(t, before.FirstSeen, after.FirstSeen)
}

func TestStoreRevoke(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Trust("example.com", 1965, "sha256:aaaa"))
	require.NoError(t, store.Revoke("example.com", 1965))

	_, ok, err := store.Get("example.com", 1965)
	require.NoError(t, err)
	require.False(t, ok)

	class, err := store.Verify("example.com", 1965, "sha256:bbbb", true)
	require.NoError(t, err)
	require.Equal(t, FirstUse, class, "a revoked host must be treated as unknown again")
}

func TestStoreListOrdering(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Trust("zeta.example", 1965, "sha256:zzzz"))
	require.NoError(t, store.Trust("alpha.example", 1965, "sha256:aaaa"))
	require.NoError(t, store.Trust("alpha.example", 1966, "sha256:bbbb"))

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "alpha.example", entries[0].Hostname)
	require.Equal(t, 1965, entries[0].Port)
	require.Equal(t, "alpha.example", entries[1].Hostname)
	require.Equal(t, 1966, entries[1].Port)
	require.Equal(t, "zeta.example", entries[2].Hostname)
}

func TestExportImportRoundTrip(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Trust("example.com", 1965, "sha256:aaaa"))
	require.NoError(t, store.Trust("other.example", 1965, "sha256:bbbb"))

	var buf bytes.Buffer
	require.NoError(t, store.Export(&buf))

	fresh := openTestStore(t)
	require.NoError(t, fresh.Import(bytes.NewReader(buf.Bytes()), Replace, nil))

	entries, err := fresh.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestImportMergeKeepsExistingOnConflict(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Trust("example.com", 1965, "sha256:local"))

	var buf bytes.Buffer
	fmt := "[_metadata]\nversion = \"1.0\"\n\n[example.com:1965]\nfingerprint = \"sha256:remote\"\nfirst_seen = \"2024-01-01T00:00:00Z\"\nlast_seen = \"2024-01-01T00:00:00Z\"\n"
	buf.WriteString(fmt)

	require.NoError(t, store.Import(&buf, Merge, nil))

	entry, ok, err := store.Get("example.com", 1965)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "sha256:local", entry.Fingerprint, "merge without onConflict keeps the existing entry")
}

func TestParseExportRejectsMissingFingerprint(t *testing.T) {
	raw := "[_metadata]\nversion = \"1.0\"\n\n[example.com:1965]\nfirst_seen = \"2024-01-01T00:00:00Z\"\nlast_seen = \"2024-01-01T00:00:00Z\"\n"
	_, _, err := ParseExport(bytes.NewReader([]byte(raw)))
	require.Error(t, err)
}
