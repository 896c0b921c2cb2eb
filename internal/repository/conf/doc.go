// Package conf persists Spark properties files (spark-defaults.conf):
// line-oriented, space-separated key-value pairs, one per line. Merging is
// idempotent: desired keys end up set exactly once and unrelated lines are
// preserved verbatim.
package conf
