package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds endpoints and tunables used by the installer.
type Config struct {
	// MavenRepositoryURL is the base URL of the gcs-connector artifact
	// repository (the Maven group directory holding maven-metadata.xml).
	MavenRepositoryURL string `yaml:"maven_repository_url"`
	// MetadataServerURL is the base URL of the GCE metadata service used
	// to detect Dataproc VMs.
	MetadataServerURL string `yaml:"metadata_server_url"`
	// SparkHome overrides Spark installation discovery when set.
	SparkHome string `yaml:"spark_home"`
	// Timeout is the duration for network operations.
	Timeout time.Duration `yaml:"timeout"`
	// MetadataTimeout is the short deadline for the VM detection probe.
	MetadataTimeout time.Duration `yaml:"metadata_timeout"`
}

const (
	// DefaultConfigFilename is the default filename for installer settings.
	DefaultConfigFilename = "install-gcs-connector.yaml"

	// DefaultMavenRepositoryURL points at the gcs-connector group on Maven Central.
	DefaultMavenRepositoryURL = "https://repo1.maven.org/maven2/com/google/cloud/bigdataoss/gcs-connector"

	// DefaultMetadataServerURL is the GCE metadata service root.
	DefaultMetadataServerURL = "http://metadata.google.internal"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Minute

	// DefaultMetadataTimeout bounds the VM detection probe so the installer
	// does not hang off-cloud.
	DefaultMetadataTimeout = 2 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

// errConfigIsNotSet is returned when a nil configuration is provided.
var errConfigIsNotSet = errors.New("configuration is not set")

// Default returns a configuration populated with production endpoints.
func Default() *Config {
	return &Config{
		MavenRepositoryURL: DefaultMavenRepositoryURL,
		MetadataServerURL:  DefaultMetadataServerURL,
		Timeout:            DefaultTimeout,
		MetadataTimeout:    DefaultMetadataTimeout,
	}
}

// Load reads configuration from the provided path and validates essential fields.
// A missing file is not an error: the installer runs with defaults out of the box.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and formatting,
// filling defaults for anything left unset.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.MavenRepositoryURL == "" {
		cfg.MavenRepositoryURL = DefaultMavenRepositoryURL
	}

	if cfg.MetadataServerURL == "" {
		cfg.MetadataServerURL = DefaultMetadataServerURL
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.MetadataTimeout <= 0 {
		cfg.MetadataTimeout = DefaultMetadataTimeout
	}

	if _, err := url.ParseRequestURI(cfg.MavenRepositoryURL); err != nil {
		return fmt.Errorf("invalid maven repository URI: %w", err)
	}

	if _, err := url.ParseRequestURI(cfg.MetadataServerURL); err != nil {
		return fmt.Errorf("invalid metadata server URI: %w", err)
	}

	return nil
}
