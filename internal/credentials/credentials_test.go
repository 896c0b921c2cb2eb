package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// writeFileAt creates a file and pins its modification time.
func writeFileAt(t *testing.T, path string, mtime time.Time) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

// TestDiscoverFirstPatternWins ensures the ADC file shadows legacy credentials.
func TestDiscoverFirstPatternWins(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	now := time.Now()

	adc := filepath.Join(home, ".config", "gcloud", "application_default_credentials.json")
	legacy := filepath.Join(home, ".config", "gcloud", "legacy_credentials", "user@example.com", "adc.json")

	// The legacy file is newer, but the first pattern still wins.
	writeFileAt(t, adc, now.Add(-time.Hour))
	writeFileAt(t, legacy, now)

	found, err := Discover(context.Background(), home)
	require.NoError(t, err)
	require.Equal(t, adc, found)
}

// TestDiscoverNewestMatchWins picks the most recently written file within
// a pattern.
func TestDiscoverNewestMatchWins(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	now := time.Now()

	older := filepath.Join(home, ".config", "gcloud", "legacy_credentials", "old@example.com", "adc.json")
	newer := filepath.Join(home, ".config", "gcloud", "legacy_credentials", "new@example.com", "adc.json")

	writeFileAt(t, older, now.Add(-2*time.Hour))
	writeFileAt(t, newer, now)

	found, err := Discover(context.Background(), home)
	require.NoError(t, err)
	require.Equal(t, newer, found)
}

// TestDiscoverNoMatches is a hard error carrying remediation instructions.
func TestDiscoverNoMatches(t *testing.T) {
	t.Parallel()

	_, err := Discover(context.Background(), t.TempDir())
	require.ErrorIs(t, err, ErrNotFound)
	require.Contains(t, err.Error(), "gcloud auth application-default login")
}
