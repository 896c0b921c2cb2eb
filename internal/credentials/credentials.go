package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/broadinstitute/install-gcs-connector/internal/logger"
)

// patterns are the glob patterns searched under the user home directory,
// in priority order. The first pattern with any match wins.
var patterns = []string{
	".config/gcloud/application_default_credentials.json",
	".config/gcloud/legacy_credentials/*/adc.json",
}

// ErrNotFound is returned when no key file matches any pattern. Its text
// carries remediation instructions for the user.
var ErrNotFound = errors.New("no json key files found; run\n\n  gcloud auth application-default login\n\nthen rerun this tool, or use --key-file-path to specify where the key file exists (or will exist later)")

// Discover searches home for a gcloud service-account key file. When a
// pattern matches several files, the most recently written one is used.
func Discover(ctx context.Context, home string) (string, error) {
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(home, pattern))
		if err != nil {
			return "", fmt.Errorf("glob %s: %w", pattern, err)
		}

		if len(matches) == 0 {
			continue
		}

		newestFirst(matches)

		logger.Infof(ctx, "Using key file: %s", matches[0])

		return matches[0], nil
	}

	return "", fmt.Errorf("%w\n\nsearched:\n    %s", ErrNotFound, searchedLocations(home))
}

// newestFirst sorts paths by descending modification time. Paths that
// cannot be stat'ed sort last.
func newestFirst(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		first, errFirst := os.Stat(paths[i])
		second, errSecond := os.Stat(paths[j])

		if errFirst != nil || errSecond != nil {
			return errFirst == nil
		}

		return first.ModTime().After(second.ModTime())
	})
}

// searchedLocations renders the pattern list for the not-found error.
func searchedLocations(home string) string {
	locations := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		locations = append(locations, filepath.Join(home, pattern))
	}

	return strings.Join(locations, "\n    ")
}
