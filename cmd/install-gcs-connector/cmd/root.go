package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/broadinstitute/install-gcs-connector/internal/config"
	"github.com/broadinstitute/install-gcs-connector/internal/logger"
	"github.com/broadinstitute/install-gcs-connector/internal/service/installer"
	"github.com/broadinstitute/install-gcs-connector/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// authType is the explicit authentication mechanism (Spark >= 3.5.0 only).
	authType string

	// keyFilePath is an explicit service-account key file location.
	keyFilePath string

	// requesterPaysProject is billed for requester-pays bucket access.
	requesterPaysProject string

	// logLevel adjusts log verbosity.
	logLevel string

	// rootCmd represents the base command that installs the GCS connector.
	rootCmd = &cobra.Command{
		Use:   "install-gcs-connector",
		Short: "Install the Google Cloud Storage connector for a local Spark installation",
		Long: "Resolve the right gcs-connector release from Maven Central, download the " +
			"shaded jar into $SPARK_HOME/jars, and register authentication settings in " +
			"spark-defaults.conf without duplicating existing options.",
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}

			options := &installer.Options{
				ConfigPath:           configPath,
				AuthType:             authType,
				KeyFilePath:          keyFilePath,
				RequesterPaysProject: requesterPaysProject,
			}

			return installer.Run(ctx, options)
		},
	}
)

// Execute runs the install-gcs-connector CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename,
		"path to configuration file")
	rootCmd.Flags().StringVarP(&authType, "auth-type", "a", "",
		"how to authenticate; for Spark >= 3.5.0 only: APPLICATION_DEFAULT for a laptop, "+
			"COMPUTE_ENGINE for GCE VMs, SERVICE_ACCOUNT_JSON_KEYFILE together with --key-file-path")
	rootCmd.Flags().StringVarP(&keyFilePath, "key-file-path", "k", "",
		"service account key .json path; required for Spark < 3.5.0 unless a gcloud "+
			"key file is discoverable; the file doesn't need to exist until the connector is first used")
	rootCmd.Flags().StringVar(&requesterPaysProject, "gcs-requester-pays-project", "",
		"google cloud project to charge for access to requester pays buckets")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
}
