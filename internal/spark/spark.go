package spark

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/broadinstitute/install-gcs-connector/internal/logger"
)

// Version is a Spark release version as a comparable three-part tuple.
type Version struct {
	Major int
	Minor int
	Patch int
}

const (
	// EnvSparkHome is the environment variable naming the Spark installation.
	EnvSparkHome = "SPARK_HOME"

	// releaseFilename sits at the root of a Spark distribution and names
	// the release on its first line.
	releaseFilename = "RELEASE"

	// versionCommandTimeout bounds the spark-submit probe.
	versionCommandTimeout = 30 * time.Second
)

var (
	// ErrHomeNotFound is returned when no Spark installation can be located.
	ErrHomeNotFound = errors.New("unable to locate a Spark installation; set SPARK_HOME")

	errMalformedVersion = errors.New("unexpected Spark version string")
	errVersionNotFound  = errors.New("unable to detect Spark version")

	// homeCandidates are probed when SPARK_HOME is unset.
	homeCandidates = []string{
		"/usr/lib/spark",
		"/opt/spark",
		"/usr/local/spark",
	}

	// versionPattern matches "Spark 3.5.1" in a RELEASE file or
	// "version 3.5.1" in spark-submit output.
	versionPattern = regexp.MustCompile(`(?i)(?:spark|version)\s+(\d+\.\d+\.\d+)`)
)

// Less reports whether v precedes other.
func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}

	if v.Minor != other.Minor {
		return v.Minor < other.Minor
	}

	return v.Patch < other.Patch
}

// AtLeast reports whether v is other or newer.
func (v Version) AtLeast(other Version) bool {
	return !v.Less(other)
}

// String renders the version in dotted form.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ParseVersion parses a dotted Spark version with exactly three numeric components.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("%w: %s", errMalformedVersion, s)
	}

	var (
		v   Version
		err error
	)

	if v.Major, err = strconv.Atoi(parts[0]); err != nil {
		return Version{}, fmt.Errorf("%w: %s", errMalformedVersion, s)
	}

	if v.Minor, err = strconv.Atoi(parts[1]); err != nil {
		return Version{}, fmt.Errorf("%w: %s", errMalformedVersion, s)
	}

	if v.Patch, err = strconv.Atoi(parts[2]); err != nil {
		return Version{}, fmt.Errorf("%w: %s", errMalformedVersion, s)
	}

	return v, nil
}

// FindHome locates the Spark installation directory. An explicit override
// wins, then SPARK_HOME, then a short list of conventional locations. A
// directory only qualifies when it contains a jars subdirectory.
func FindHome(override string) (string, error) {
	if override != "" {
		if !isSparkHome(override) {
			return "", fmt.Errorf("%s has no jars subdirectory: %w", override, ErrHomeNotFound)
		}

		return override, nil
	}

	if home := os.Getenv(EnvSparkHome); home != "" {
		if !isSparkHome(home) {
			return "", fmt.Errorf("%s=%s has no jars subdirectory: %w", EnvSparkHome, home, ErrHomeNotFound)
		}

		return home, nil
	}

	for _, candidate := range homeCandidates {
		if isSparkHome(candidate) {
			return candidate, nil
		}
	}

	return "", ErrHomeNotFound
}

// isSparkHome reports whether path looks like a Spark distribution root.
func isSparkHome(path string) bool {
	info, err := os.Stat(filepath.Join(path, "jars"))
	return err == nil && info.IsDir()
}

// DetectVersion determines the version of the Spark installation at home.
// It prefers the RELEASE file at the distribution root and falls back to
// running bin/spark-submit --version.
func DetectVersion(ctx context.Context, home string) (Version, error) {
	if v, err := versionFromRelease(home); err == nil {
		return v, nil
	}

	logger.Debugf(ctx, "No usable RELEASE file under %s, probing spark-submit", home)

	return versionFromSparkSubmit(ctx, home)
}

// versionFromRelease reads the version off the RELEASE file's first line.
func versionFromRelease(home string) (Version, error) {
	contents, err := os.ReadFile(filepath.Clean(filepath.Join(home, releaseFilename)))
	if err != nil {
		return Version{}, err
	}

	return versionFromOutput(string(contents))
}

// versionFromSparkSubmit runs spark-submit --version and scans its output.
// Spark prints the banner to stderr, so both streams are captured.
func versionFromSparkSubmit(ctx context.Context, home string) (Version, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, versionCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, filepath.Join(home, "bin", "spark-submit"), "--version")

	output, err := cmd.CombinedOutput()
	if err != nil {
		return Version{}, fmt.Errorf("%w: %s", errVersionNotFound, err)
	}

	return versionFromOutput(string(output))
}

// versionFromOutput extracts the first dotted version following a
// "Spark"/"version" marker in free-form output.
func versionFromOutput(output string) (Version, error) {
	match := versionPattern.FindStringSubmatch(output)
	if match == nil {
		return Version{}, errVersionNotFound
	}

	return ParseVersion(match[1])
}
