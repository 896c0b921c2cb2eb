// Package config defines installer settings and provides helpers to load,
// validate and save them in YAML format.
//
// The settings file is optional; when it is absent the installer runs with
// the production Maven Central and GCE metadata endpoints.
package config
