package installer

import (
	"context"
	"crypto/sha1" //nolint:gosec // Maven publishes SHA-1 digests.
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/broadinstitute/install-gcs-connector/internal/config"
	"github.com/broadinstitute/install-gcs-connector/internal/repository/conf"
	"github.com/broadinstitute/install-gcs-connector/internal/spark"
)

var (
	sparkNew = spark.Version{Major: 3, Minor: 5, Patch: 1}
	sparkOld = spark.Version{Major: 3, Minor: 1, Patch: 3}
)

// TestValidateAuthFlags covers the flag rules on both sides of the 3.5.0 boundary.
func TestValidateAuthFlags(t *testing.T) {
	t.Parallel()

	// Spark >= 3.5.0 defaults to APPLICATION_DEFAULT.
	authType, err := validateAuthFlags(&Options{}, sparkNew)
	require.NoError(t, err)
	require.Equal(t, AuthTypeApplicationDefault, authType)

	// Explicit valid auth type passes through.
	authType, err = validateAuthFlags(&Options{AuthType: AuthTypeComputeEngine}, sparkNew)
	require.NoError(t, err)
	require.Equal(t, AuthTypeComputeEngine, authType)

	// Unknown auth type is a usage error.
	_, err = validateAuthFlags(&Options{AuthType: "MAGIC"}, sparkNew)
	require.ErrorIs(t, err, errInvalidAuthType)

	// A key file demands the explicit keyfile auth type.
	_, err = validateAuthFlags(&Options{KeyFilePath: "/k.json"}, sparkNew)
	require.ErrorIs(t, err, errAuthTypeMismatch)

	authType, err = validateAuthFlags(&Options{
		KeyFilePath: "/k.json",
		AuthType:    AuthTypeServiceAccountKey,
	}, sparkNew)
	require.NoError(t, err)
	require.Equal(t, AuthTypeServiceAccountKey, authType)

	// Older Spark forbids --auth-type entirely.
	_, err = validateAuthFlags(&Options{AuthType: AuthTypeComputeEngine}, sparkOld)
	require.ErrorIs(t, err, errAuthTypeForbidden)

	authType, err = validateAuthFlags(&Options{KeyFilePath: "/k.json"}, sparkOld)
	require.NoError(t, err)
	require.Empty(t, authType)
}

// TestDesiredSettings checks the settings block for each auth scenario.
func TestDesiredSettings(t *testing.T) {
	t.Parallel()

	// New auth model, no key file.
	settings := desiredSettings(sparkNew, AuthTypeComputeEngine, "", "")
	require.Equal(t, []conf.Setting{
		{Key: "spark.hadoop.fs.gs.auth.type", Value: "COMPUTE_ENGINE"},
	}, settings)

	// An explicit key file supersedes the auth type line.
	settings = desiredSettings(sparkNew, AuthTypeServiceAccountKey, "/k.json", "")
	require.Equal(t, []conf.Setting{
		{Key: "spark.hadoop.fs.gs.auth.service.account.json.keyfile", Value: "/k.json"},
	}, settings)

	// Legacy auth model always writes the enable + keyfile pair.
	settings = desiredSettings(sparkOld, "", "/k.json", "")
	require.Equal(t, []conf.Setting{
		{Key: "spark.hadoop.google.cloud.auth.service.account.enable", Value: "true"},
		{Key: "spark.hadoop.google.cloud.auth.service.account.json.keyfile", Value: "/k.json"},
	}, settings)

	// Requester-pays settings are appended.
	settings = desiredSettings(sparkNew, AuthTypeApplicationDefault, "", "my-project")
	require.Len(t, settings, 3)
	require.Equal(t, conf.Setting{Key: "spark.hadoop.fs.gs.requester.pays.mode", Value: "AUTO"}, settings[1])
	require.Equal(t, conf.Setting{Key: "spark.hadoop.fs.gs.requester.pays.project.id", Value: "my-project"}, settings[2])
}

// newSparkHome lays out a minimal Spark distribution in a temp dir.
func newSparkHome(t *testing.T, release string) string {
	t.Helper()

	home := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(home, "jars"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, "RELEASE"), []byte(release), 0o644))

	return home
}

// newMavenServer serves a version index, one shaded jar and its SHA-1 digest.
func newMavenServer(t *testing.T, raw string, jar []byte, digest string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/maven-metadata.xml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintf(w, `<metadata><versioning><versions>
			<version>hadoop2-2.2.21</version>
			<version>%s-RC1</version>
			<version>%s</version>
		</versions></versioning></metadata>`, raw, raw)
	})
	mux.HandleFunc(fmt.Sprintf("/%s/gcs-connector-%s-shaded.jar", raw, raw),
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(jar)
		})
	mux.HandleFunc(fmt.Sprintf("/%s/gcs-connector-%s-shaded.jar.sha1", raw, raw),
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(digest))
		})

	return httptest.NewServer(mux)
}

// TestRunInstallsJarAndMergesConfig exercises the whole install flow
// against a local Maven server and a temp Spark home.
func TestRunInstallsJarAndMergesConfig(t *testing.T) {
	t.Parallel()

	const raw = "3.0.2"

	jar := []byte("not really a jar, but good enough to hash")
	sum := sha1.Sum(jar) //nolint:gosec // Matches Maven's digest.
	digest := hex.EncodeToString(sum[:])

	server := newMavenServer(t, raw, jar, digest)
	defer server.Close()

	home := newSparkHome(t, "Spark 3.5.1 built for Hadoop 3.3.4\n")

	// Seed an existing config line that must survive the merge.
	confDir := filepath.Join(home, "conf")
	require.NoError(t, os.Mkdir(confDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(confDir, sparkConfigFilename),
		[]byte("spark.driver.memory 8g\nspark.hadoop.fs.gs.auth.type COMPUTE_ENGINE\n"),
		0o644))

	r := &runner{
		cfg: &config.Config{
			MavenRepositoryURL: server.URL,
			SparkHome:          home,
			Timeout:            10 * time.Second,
		},
		opts:   &Options{},
		client: server.Client(),
	}

	ctx := context.Background()
	require.NoError(t, r.Run(ctx))

	t.Cleanup(func() { r.cleanup(ctx) })

	// The jar landed under jars/ with the expected name and content.
	installed, err := os.ReadFile(filepath.Join(home, "jars", "gcs-connector-3.0.2-shaded.jar"))
	require.NoError(t, err)
	require.Equal(t, jar, installed)

	// The auth line was replaced, the unrelated line kept.
	contents, err := os.ReadFile(filepath.Join(confDir, sparkConfigFilename))
	require.NoError(t, err)
	require.Equal(t,
		"spark.hadoop.fs.gs.auth.type APPLICATION_DEFAULT\nspark.driver.memory 8g\n",
		string(contents))
}

// TestInstallJarChecksumMismatch ensures a wrong digest aborts the apply.
func TestInstallJarChecksumMismatch(t *testing.T) {
	t.Parallel()

	const raw = "3.0.2"

	jar := []byte("jar payload")
	wrongSum := sha1.Sum([]byte("tampered")) //nolint:gosec // Test digest.
	wrongDigest := hex.EncodeToString(wrongSum[:])

	server := newMavenServer(t, raw, jar, wrongDigest)
	defer server.Close()

	home := newSparkHome(t, "Spark 3.5.1\n")

	r := &runner{
		cfg: &config.Config{
			MavenRepositoryURL: server.URL,
			SparkHome:          home,
			Timeout:            10 * time.Second,
		},
		opts:   &Options{},
		client: server.Client(),
	}

	ctx := context.Background()
	err := r.Run(ctx)
	require.Error(t, err)

	t.Cleanup(func() { r.cleanup(ctx) })

	// Nothing was installed.
	_, err = os.Stat(filepath.Join(home, "jars", "gcs-connector-3.0.2-shaded.jar"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRunNoOpOnDataprocVM verifies the clean early exit on Dataproc.
func TestRunNoOpOnDataprocVM(t *testing.T) {
	t.Parallel()

	metadata := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("dataproc-bucket-abc"))
	}))
	defer metadata.Close()

	configPath := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, config.Save(configPath, &config.Config{
		MetadataServerURL: metadata.URL,
	}))

	require.NoError(t, Run(context.Background(), &Options{ConfigPath: configPath}))
}
