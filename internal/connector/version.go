package connector

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed gcs-connector release identifier.
//
// Release identifiers on Maven Central come in three shapes:
// "hadoopN-X.Y.Z[-RCn]", "X.Y.Z-hadoopN[-RCn]" and, starting with the
// 3.x line, plain "X.Y.Z[-RCn]" with no Hadoop marker.
type Version struct {
	// Hadoop is the platform generation the release is built for.
	Hadoop int
	// Major, Minor and Patch are the connector's own version numbers.
	Major int
	Minor int
	Patch int
	// Candidate is the release-candidate number, or 0 for a final
	// release. A final release sorts after any candidate of the same
	// Major/Minor/Patch.
	Candidate int
	// Raw is the original identifier, used to build artifact URLs.
	Raw string
}

const (
	// defaultHadoopGeneration is assumed when a release carries no
	// explicit marker; connector 3.0.0 and later dropped the prefix.
	defaultHadoopGeneration = 3

	hadoopPrefix    = "hadoop"
	candidatePrefix = "RC"
)

var (
	errMalformedVersion = errors.New("unexpected version string")
	errNoVersions       = errors.New("no connector versions for generation")
)

// ParseVersion parses a raw release identifier into a Version.
func ParseVersion(raw string) (Version, error) {
	var (
		parts     = strings.Split(raw, "-")
		v         = Version{Raw: raw}
		jar       string
		candidate string
		err       error
	)

	switch {
	case strings.HasPrefix(parts[0], hadoopPrefix):
		if len(parts) < 2 {
			return Version{}, fmt.Errorf("%w: %s", errMalformedVersion, raw)
		}

		if v.Hadoop, err = strconv.Atoi(parts[0][len(hadoopPrefix):]); err != nil {
			return Version{}, fmt.Errorf("%w: %s", errMalformedVersion, raw)
		}

		jar = parts[1]
		if len(parts) > 2 {
			candidate = parts[2]
		}
	case len(parts) > 1 && strings.HasPrefix(parts[1], hadoopPrefix):
		jar = parts[0]

		if v.Hadoop, err = strconv.Atoi(parts[1][len(hadoopPrefix):]); err != nil {
			return Version{}, fmt.Errorf("%w: %s", errMalformedVersion, raw)
		}

		if len(parts) > 2 {
			candidate = parts[2]
		}
	default:
		jar = parts[0]
		v.Hadoop = defaultHadoopGeneration

		if len(parts) > 1 {
			candidate = parts[1]
		}
	}

	if v.Major, v.Minor, v.Patch, err = parseJarVersion(jar); err != nil {
		return Version{}, fmt.Errorf("%w: %s", errMalformedVersion, raw)
	}

	if candidate != "" {
		if !strings.HasPrefix(candidate, candidatePrefix) {
			return Version{}, fmt.Errorf("%w: %s", errMalformedVersion, raw)
		}

		if v.Candidate, err = strconv.Atoi(candidate[len(candidatePrefix):]); err != nil {
			return Version{}, fmt.Errorf("%w: %s", errMalformedVersion, raw)
		}
	}

	return v, nil
}

// parseJarVersion splits "X.Y.Z" into its three numeric components.
func parseJarVersion(jar string) (major, minor, patch int, err error) {
	numbers := strings.Split(jar, ".")
	if len(numbers) != 3 {
		return 0, 0, 0, errMalformedVersion
	}

	if major, err = strconv.Atoi(numbers[0]); err != nil {
		return 0, 0, 0, err
	}

	if minor, err = strconv.Atoi(numbers[1]); err != nil {
		return 0, 0, 0, err
	}

	if patch, err = strconv.Atoi(numbers[2]); err != nil {
		return 0, 0, 0, err
	}

	return major, minor, patch, nil
}

// candidateRank orders release candidates below final releases.
func (v Version) candidateRank() int {
	if v.Candidate == 0 {
		return int(^uint(0) >> 1)
	}

	return v.Candidate
}

// Less orders versions by (Major, Minor, Patch, Candidate), with a final
// release preferred over any candidate of the same Major/Minor/Patch.
// The Hadoop generation is a filter, not an ordering key.
func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}

	if v.Minor != other.Minor {
		return v.Minor < other.Minor
	}

	if v.Patch != other.Patch {
		return v.Patch < other.Patch
	}

	return v.candidateRank() < other.candidateRank()
}

// Latest returns the maximum version built for the requested Hadoop
// generation, or an error when the generation has no releases.
func Latest(versions []Version, hadoopGeneration int) (Version, error) {
	var (
		best  Version
		found bool
	)

	for _, v := range versions {
		if v.Hadoop != hadoopGeneration {
			continue
		}

		if !found || best.Less(v) {
			best = v
			found = true
		}
	}

	if !found {
		return Version{}, fmt.Errorf("%w %d", errNoVersions, hadoopGeneration)
	}

	return best, nil
}
