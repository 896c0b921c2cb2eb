package connector

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MetadataFilename is the Maven index document listing available releases.
const MetadataFilename = "maven-metadata.xml"

var errBadHTTPStatus = errors.New("unexpected http status")

// mavenMetadata mirrors the subset of maven-metadata.xml the resolver reads.
type mavenMetadata struct {
	XMLName  xml.Name `xml:"metadata"`
	Versions []string `xml:"versioning>versions>version"`
}

// FetchAvailable downloads the Maven version index from the repository and
// parses every listed release. A single malformed entry aborts resolution.
func FetchAvailable(ctx context.Context, client *http.Client, repositoryURL string) ([]Version, error) {
	metadataURL := joinURL(repositoryURL, MetadataFilename)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	response, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s, %s: %w", metadataURL, response.Status, errBadHTTPStatus)
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}

	var metadata mavenMetadata
	if err = xml.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("decode %s: %w", MetadataFilename, err)
	}

	versions := make([]Version, 0, len(metadata.Versions))

	for _, raw := range metadata.Versions {
		v, err := ParseVersion(raw)
		if err != nil {
			return nil, err
		}

		versions = append(versions, v)
	}

	return versions, nil
}

// JarFilename returns the shaded jar name for a release.
func JarFilename(v Version) string {
	return fmt.Sprintf("gcs-connector-%s-shaded.jar", v.Raw)
}

// JarURL builds the download URL for a release's shaded jar.
func JarURL(repositoryURL string, v Version) string {
	return joinURL(repositoryURL, v.Raw, JarFilename(v))
}

// ChecksumURL builds the URL of the hex-encoded SHA-1 digest Maven
// publishes next to every artifact.
func ChecksumURL(repositoryURL string, v Version) string {
	return JarURL(repositoryURL, v) + ".sha1"
}

// joinURL appends path segments to a base URL, normalizing slashes.
func joinURL(base string, segments ...string) string {
	parts := append([]string{strings.TrimRight(base, "/")}, segments...)
	return strings.Join(parts, "/")
}
