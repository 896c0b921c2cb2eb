// Package installer provisions the GCS connector for a local Spark
// installation.
//
// It resolves the right connector release from the Maven index, downloads
// the shaded jar into $SPARK_HOME/jars with checksum verification, and
// idempotently merges authentication settings into spark-defaults.conf.
package installer
