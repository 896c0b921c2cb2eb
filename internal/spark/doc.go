// Package spark locates the local Spark installation and detects its
// version, first from the distribution's RELEASE file and then by probing
// spark-submit.
package spark
