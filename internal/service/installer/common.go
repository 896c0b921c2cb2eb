package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/broadinstitute/install-gcs-connector/internal/logger"
	"github.com/broadinstitute/install-gcs-connector/internal/repository/conf"
	"github.com/broadinstitute/install-gcs-connector/internal/spark"
)

// Authentication mechanisms understood by the connector for Spark >= 3.5.0.
const (
	AuthTypeAccessTokenProvider = "ACCESS_TOKEN_PROVIDER"
	AuthTypeApplicationDefault  = "APPLICATION_DEFAULT"
	AuthTypeComputeEngine       = "COMPUTE_ENGINE"
	AuthTypeServiceAccountKey   = "SERVICE_ACCOUNT_JSON_KEYFILE"
	AuthTypeUnauthenticated     = "UNAUTHENTICATED"
	AuthTypeUserCredentials     = "USER_CREDENTIALS"
)

// Connector settings written into spark-defaults.conf.
const (
	keyAuthType             = "spark.hadoop.fs.gs.auth.type"
	keyAuthKeyfile          = "spark.hadoop.fs.gs.auth.service.account.json.keyfile"
	keyLegacyAccountEnable  = "spark.hadoop.google.cloud.auth.service.account.enable"
	keyLegacyAccountKeyfile = "spark.hadoop.google.cloud.auth.service.account.json.keyfile"
	keyRequesterPaysMode    = "spark.hadoop.fs.gs.requester.pays.mode"
	keyRequesterPaysProject = "spark.hadoop.fs.gs.requester.pays.project.id"
)

const (
	// MarkerFilename marks that an installer run is in progress to avoid
	// two runs racing on the same config file.
	MarkerFilename = "install-gcs-connector-marker.bin"

	// markerLifetime is the period after which a stale marker is ignored.
	markerLifetime = 15 * time.Minute

	// sparkConfigFilename is the properties file Spark loads at startup.
	sparkConfigFilename = "spark-defaults.conf"
)

var (
	errAuthTypeForbidden = errors.New("--auth-type cannot be used with Spark older than 3.5.0")
	errAuthTypeMismatch  = errors.New("when --key-file-path is specified, --auth-type must be SERVICE_ACCOUNT_JSON_KEYFILE")
	errInvalidAuthType   = errors.New("invalid --auth-type")
	errAlreadyRunning    = errors.New("another installer run is in progress")
)

// authBoundary is the Spark version at which the connector switched from
// the google.cloud.auth.* settings to fs.gs.auth.type.
var authBoundary = spark.Version{Major: 3, Minor: 5, Patch: 0}

// validAuthTypes enumerates acceptable --auth-type values for Spark >= 3.5.0.
var validAuthTypes = map[string]struct{}{
	AuthTypeAccessTokenProvider: {},
	AuthTypeApplicationDefault:  {},
	AuthTypeComputeEngine:       {},
	AuthTypeServiceAccountKey:   {},
	AuthTypeUnauthenticated:     {},
	AuthTypeUserCredentials:     {},
}

// sparkProcessNames are executables whose presence means a running Spark
// session will not pick up the new settings until restarted.
var sparkProcessNames = map[string]struct{}{
	"spark-submit": {},
	"spark-shell":  {},
	"spark-class":  {},
	"pyspark":      {},
}

// validateAuthFlags applies the flag rules for the detected Spark version
// and returns the effective auth type. It must run before any network or
// file activity.
func validateAuthFlags(opts *Options, sparkVersion spark.Version) (string, error) {
	if sparkVersion.AtLeast(authBoundary) {
		if opts.KeyFilePath != "" && opts.AuthType != AuthTypeServiceAccountKey {
			return "", errAuthTypeMismatch
		}

		authType := opts.AuthType
		if authType == "" {
			authType = AuthTypeApplicationDefault
		}

		if _, ok := validAuthTypes[authType]; !ok {
			return "", fmt.Errorf("%w: %s", errInvalidAuthType, opts.AuthType)
		}

		return authType, nil
	}

	if opts.AuthType != "" {
		return "", fmt.Errorf("%w (detected %s)", errAuthTypeForbidden, sparkVersion)
	}

	return "", nil
}

// desiredSettings builds the connector settings for spark-defaults.conf.
// For Spark >= 3.5.0 an explicit key file supersedes the auth type line;
// older Spark always uses the legacy google.cloud.auth pair.
func desiredSettings(sparkVersion spark.Version, authType, keyFilePath, requesterPaysProject string) []conf.Setting {
	var settings []conf.Setting

	if sparkVersion.AtLeast(authBoundary) {
		if keyFilePath != "" {
			settings = []conf.Setting{
				{Key: keyAuthKeyfile, Value: keyFilePath},
			}
		} else {
			settings = []conf.Setting{
				{Key: keyAuthType, Value: authType},
			}
		}
	} else {
		settings = []conf.Setting{
			{Key: keyLegacyAccountEnable, Value: "true"},
			{Key: keyLegacyAccountKeyfile, Value: keyFilePath},
		}
	}

	if requesterPaysProject != "" {
		settings = append(settings,
			conf.Setting{Key: keyRequesterPaysMode, Value: "AUTO"},
			conf.Setting{Key: keyRequesterPaysProject, Value: requesterPaysProject},
		)
	}

	return settings
}

// markerPath is where the in-progress marker lives.
func markerPath() string {
	return filepath.Join(os.TempDir(), MarkerFilename)
}

// acquireMarker creates the in-progress marker, cleaning up a stale one.
func acquireMarker(ctx context.Context) error {
	path := markerPath()

	if fileInfo, err := os.Stat(path); err == nil {
		if time.Since(fileInfo.ModTime()) <= markerLifetime {
			return errAlreadyRunning
		}

		logger.Info(ctx, "Removing a stale installer marker")

		if err = os.Remove(path); err != nil {
			return errAlreadyRunning
		}
	}

	marker, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create installer marker: %w", err)
	}

	return marker.Close()
}

// releaseMarker removes the in-progress marker.
func releaseMarker() {
	if _, err := os.Stat(markerPath()); err == nil {
		_ = os.Remove(markerPath())
	}
}

// warnIfSparkRunning scans the process table and warns when a Spark
// session is live, since it only reads spark-defaults.conf at startup.
func warnIfSparkRunning(ctx context.Context) {
	processList, err := ps.Processes()
	if err != nil {
		logger.Debugf(ctx, "Unable to list processes: %v", err)
		return
	}

	for _, process := range processList {
		if _, found := sparkProcessNames[process.Executable()]; found {
			logger.Warnf(ctx,
				"A Spark process (%s, pid %d) is running; it will not pick up the new settings until restarted",
				process.Executable(), process.Pid())

			return
		}
	}
}
