package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate checks URI validation and default filling.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Empty config is valid and gets defaults.
	cfg := new(Config)
	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultMavenRepositoryURL, cfg.MavenRepositoryURL)
	require.Equal(t, DefaultTimeout, cfg.Timeout)

	// Bad repository URI.
	cfg = &Config{
		MavenRepositoryURL: "not a url",
	}
	require.Error(t, Validate(cfg))

	// Nil config.
	require.Error(t, Validate(nil))
}

// TestLoadMissingFile ensures a missing settings file yields defaults, not an error.
func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")

	cfg := &Config{
		MavenRepositoryURL: "https://mirror.local/maven2/gcs-connector",
		MetadataServerURL:  "http://127.0.0.1:8080",
		SparkHome:          "/opt/spark",
		Timeout:            time.Minute,
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.MavenRepositoryURL, loaded.MavenRepositoryURL)
	require.Equal(t, cfg.SparkHome, loaded.SparkHome)
	require.Equal(t, time.Minute, loaded.Timeout)
	require.Equal(t, DefaultMetadataTimeout, loaded.MetadataTimeout)
}
