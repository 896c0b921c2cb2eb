// Package connector resolves gcs-connector releases from a Maven
// repository: it parses release identifiers into comparable versions,
// selects the latest release for a Hadoop generation, and builds artifact
// URLs.
package connector
