package installer

import (
	"context"
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/broadinstitute/install-gcs-connector/internal/config"
	"github.com/broadinstitute/install-gcs-connector/internal/connector"
	"github.com/broadinstitute/install-gcs-connector/internal/credentials"
	"github.com/broadinstitute/install-gcs-connector/internal/gcemeta"
	"github.com/broadinstitute/install-gcs-connector/internal/logger"
	"github.com/broadinstitute/install-gcs-connector/internal/repository/conf"
	"github.com/broadinstitute/install-gcs-connector/internal/spark"

	// Ensure SHA1 is available for jar checksum verification.
	_ "crypto/sha1"
)

var errBadHTTPStatus = errors.New("unexpected http status")

// Options are inputs accepted by the installer entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// AuthType is the explicit authentication mechanism (Spark >= 3.5.0 only).
	AuthType string
	// KeyFilePath is an explicit service-account key file location. The
	// file does not have to exist yet.
	KeyFilePath string
	// RequesterPaysProject, when set, is billed for requester-pays bucket access.
	RequesterPaysProject string
}

// runner holds the resolved environment for a single install execution.
// It is intentionally unexported; call Run(ctx, Options) from callers.
type runner struct {
	cfg          *config.Config // Installer configuration loaded from YAML.
	opts         *Options
	client       *http.Client  // Shared HTTP client with the configured timeout.
	sparkHome    string        // Resolved Spark installation directory.
	sparkVersion spark.Version // Detected Spark version.
	authType     string        // Effective auth type after flag validation.
	keyFilePath  string        // Effective key file after discovery.

	temporaryDirectory string // Where the jar is downloaded before apply.
}

// Run executes the install lifecycle and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "install-gcs-connector")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	if gcemeta.IsDataprocVM(ctx, cfg.MetadataServerURL, cfg.MetadataTimeout) {
		logger.Info(ctx, "This is a Dataproc VM which already has the GCS connector installed, nothing to do")
		return nil
	}

	r, err := newRunner(ctx, cfg, opts)
	if err != nil {
		return err
	}

	defer r.cleanup(ctx)

	if err = r.Run(ctx); err != nil {
		logger.ErrorKV(ctx, "Install failed", "error", err)
		return err
	}

	logger.Info(ctx, "Install completed")

	return nil
}

// newRunner prepares the run and writes a marker to avoid concurrent runs.
func newRunner(ctx context.Context, cfg *config.Config, opts *Options) (*runner, error) {
	if err := acquireMarker(ctx); err != nil {
		return nil, err
	}

	return &runner{
		cfg:    cfg,
		opts:   opts,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Run executes the install workflow:
// 1) Resolve the Spark installation and its version.
// 2) Validate flags and resolve the key file.
// 3) Resolve the connector release from the Maven index.
// 4) Download the jar and apply it into $SPARK_HOME/jars.
// 5) Merge auth settings into spark-defaults.conf.
func (r *runner) Run(ctx context.Context) error {
	if err := r.resolveSparkEnvironment(ctx); err != nil {
		return err
	}

	if err := r.resolveAuth(ctx); err != nil {
		return err
	}

	release, err := r.resolveRelease(ctx)
	if err != nil {
		return fmt.Errorf("resolve connector release: %w", err)
	}

	if err = r.installJar(ctx, release); err != nil {
		return fmt.Errorf("install connector jar: %w", err)
	}

	if err = r.mergeSettings(ctx); err != nil {
		return fmt.Errorf("update spark config: %w", err)
	}

	warnIfSparkRunning(ctx)

	return nil
}

// resolveSparkEnvironment locates Spark and detects its version.
func (r *runner) resolveSparkEnvironment(ctx context.Context) error {
	home, err := spark.FindHome(r.cfg.SparkHome)
	if err != nil {
		return err
	}

	r.sparkHome = home

	r.sparkVersion, err = spark.DetectVersion(ctx, home)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Detected Spark installation",
		"home", r.sparkHome, "version", r.sparkVersion.String())

	return nil
}

// resolveAuth validates the auth flags against the detected Spark version
// and discovers a key file when one is required but not given.
func (r *runner) resolveAuth(ctx context.Context) error {
	authType, err := validateAuthFlags(r.opts, r.sparkVersion)
	if err != nil {
		return err
	}

	r.authType = authType
	r.keyFilePath = r.opts.KeyFilePath

	if r.keyFilePath != "" {
		// The key file only has to exist once the connector is first used.
		if _, err = os.Stat(r.keyFilePath); err != nil {
			logger.Warnf(ctx, "%s file doesn't exist", r.keyFilePath)
		}

		return nil
	}

	// Older Spark requires a key file; look for one under the user home.
	if r.sparkVersion.Less(authBoundary) {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve user home: %w", err)
		}

		r.keyFilePath, err = credentials.Discover(ctx, home)
		if err != nil {
			return err
		}
	}

	return nil
}

// resolveRelease picks the latest connector release for the platform
// generation matching the detected Spark version.
func (r *runner) resolveRelease(ctx context.Context) (connector.Version, error) {
	versions, err := connector.FetchAvailable(ctx, r.client, r.cfg.MavenRepositoryURL)
	if err != nil {
		return connector.Version{}, err
	}

	generation := 3
	if r.sparkVersion.Less(authBoundary) {
		generation = 2
	}

	release, err := connector.Latest(versions, generation)
	if err != nil {
		return connector.Version{}, err
	}

	logger.InfoKV(ctx, "Resolved connector release",
		"version", release.Raw, "hadoop_generation", release.Hadoop)

	return release, nil
}

// installJar downloads the shaded jar to a temporary directory and applies
// it into $SPARK_HOME/jars, verifying Maven's published SHA-1 digest when
// available.
func (r *runner) installJar(ctx context.Context, release connector.Version) error {
	temporaryDirectory, err := os.MkdirTemp("", "install-gcs-connector-")
	if err != nil {
		return err
	}

	r.temporaryDirectory = temporaryDirectory

	jarURL := connector.JarURL(r.cfg.MavenRepositoryURL, release)
	targetPath := filepath.Join(r.sparkHome, "jars", connector.JarFilename(release))

	logger.Infof(ctx, "Downloading %s", jarURL)
	logger.Infof(ctx, "   to %s", targetPath)

	downloadedPath, err := r.downloadFile(ctx, jarURL)
	if err != nil {
		return err
	}

	checksum := r.fetchChecksum(ctx, release)

	jarFile, err := os.Open(downloadedPath)
	if err != nil {
		return err
	}

	defer func() {
		_ = jarFile.Close()
	}()

	options := goupdate.Options{
		TargetPath: targetPath,
		TargetMode: 0o644,
		Checksum:   checksum,
		Hash:       crypto.SHA1,
	}

	if err = goupdate.Apply(jarFile, options); err != nil {
		return err
	}

	// Apply leaves the previous jar behind as .old; nothing references it.
	oldPath := targetPath + ".old"
	if _, err = os.Stat(oldPath); err == nil {
		_ = os.Remove(oldPath)
	}

	return nil
}

// fetchChecksum retrieves the hex SHA-1 digest Maven publishes next to the
// jar. A missing digest downgrades to an unverified apply with a warning.
func (r *runner) fetchChecksum(ctx context.Context, release connector.Version) []byte {
	checksumURL := connector.ChecksumURL(r.cfg.MavenRepositoryURL, release)

	response, err := r.getURL(ctx, checksumURL)
	if err != nil {
		logger.Warnf(ctx, "Unable to fetch jar checksum, applying unverified: %v", err)
		return nil
	}

	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		logger.Warnf(ctx, "Unable to read jar checksum, applying unverified: %v", err)
		return nil
	}

	// Maven digest files carry "<hex>" or "<hex>  <filename>".
	fields := strings.Fields(string(body))
	if len(fields) == 0 {
		logger.Warn(ctx, "Empty jar checksum file, applying unverified")
		return nil
	}

	checksum, err := hex.DecodeString(fields[0])
	if err != nil {
		logger.Warnf(ctx, "Malformed jar checksum, applying unverified: %v", err)
		return nil
	}

	return checksum
}

// downloadFile fetches a URL into the run's temporary directory.
func (r *runner) downloadFile(ctx context.Context, fileURL string) (string, error) {
	response, err := r.getURL(ctx, fileURL)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	outputPath := filepath.Join(r.temporaryDirectory, filepath.Base(fileURL))

	outputFile, err := os.Create(outputPath)
	if err != nil {
		return "", err
	}

	if _, err = io.Copy(outputFile, response.Body); err != nil {
		_ = outputFile.Close()

		return "", err
	}

	if err = outputFile.Close(); err != nil {
		return "", err
	}

	logger.DebugKV(ctx, "Downloaded file", "path", outputPath)

	return outputPath, nil
}

// getURL performs a GET and requires a 200 response.
func (r *runner) getURL(ctx context.Context, fileURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	response, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusOK {
		_ = response.Body.Close()

		return nil, fmt.Errorf("%s, %s: %w", fileURL, response.Status, errBadHTTPStatus)
	}

	return response, nil
}

// mergeSettings writes the auth settings into spark-defaults.conf.
func (r *runner) mergeSettings(ctx context.Context) error {
	configPath := filepath.Join(r.sparkHome, "conf", sparkConfigFilename)
	settings := desiredSettings(r.sparkVersion, r.authType, r.keyFilePath, r.opts.RequesterPaysProject)

	logger.Infof(ctx, "Updating %s", configPath)

	for _, setting := range settings {
		logger.Infof(ctx, "Setting %s = %s", setting.Key, setting.Value)
	}

	return conf.NewFileRepository(configPath).Merge(ctx, settings)
}

// cleanup removes temporary artifacts and the running marker.
func (r *runner) cleanup(ctx context.Context) {
	releaseMarker()

	if r.temporaryDirectory != "" {
		if _, err := os.Stat(r.temporaryDirectory); err == nil {
			_ = os.RemoveAll(r.temporaryDirectory)
		}
	}

	logger.Debug(ctx, "The installer has finished")
}
