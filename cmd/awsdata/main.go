package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jpirolla/aws-data-querying/internal/config"
	"github.com/jpirolla/aws-data-querying/internal/database"
	"github.com/jpirolla/aws-data-querying/internal/database/drivers/object_storage"
	"github.com/jpirolla/aws-data-querying/internal/logging"
	"github.com/jpirolla/aws-data-querying/internal/metrics"
	"github.com/jpirolla/aws-data-querying/internal/model"
	"github.com/jpirolla/aws-data-querying/internal/service"
	"github.com/jpirolla/aws-data-querying/internal/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// app is the state shared by every subcommand for one invocation.
type app struct {
	envFile     string
	logLevel    string
	metricsFile string

	cfg      *config.Config
	logger   *zap.SugaredLogger
	registry *prometheus.Registry
	metrics  *metrics.RemoteCalls
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "awsdata",
		Short:         "Move fruit product data between S3, Glue, Athena and Redshift",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown()
		},
	}

	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file merged under the process environment")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "write remote call metrics to this file in Prometheus text format")

	root.AddCommand(
		newUploadCSVCmd(a),
		newPublishCmd(a),
		newReadCmd(a),
		newInspectCmd(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.envFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.cfg = cfg

	level := cfg.Logging.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	if a.logger, err = logging.New(level); err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.NewRemoteCalls(a.registry)
	return nil
}

func (a *app) teardown() error {
	_ = a.logger.Sync()

	if a.metricsFile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.metricsFile, a.registry); err != nil {
		a.logger.Warnw("Failed to write metrics file", "path", a.metricsFile, "error", err)
	}
	return nil
}

// clients builds the AWS clients. A failure is reported and ends the workflow
// without failing the process.
func (a *app) clients(ctx context.Context) (*database.Clients, bool) {
	c, err := database.NewClients(ctx, a.cfg, a.metrics)
	if err != nil {
		if utils.IsKind(err, utils.KindCredentials) {
			a.logger.Errorw("AWS credentials not found or invalid", "profile", a.cfg.AWS.Profile, "error", err)
		} else {
			a.logger.Errorw("Failed to initialize AWS clients", "error", err)
		}
		return nil, false
	}
	return c, true
}

func newUploadCSVCmd(a *app) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "upload-csv",
		Short: "Upload the product fixture to BUCKET_NAME/OBJECT_NAME as CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, ok := a.clients(ctx)
			if !ok {
				return nil
			}

			svc := service.NewUploadService(c.S3, a.logger)
			bucket, key := a.cfg.Storage.Bucket, a.cfg.Storage.ObjectName
			if err := svc.UploadCSV(ctx, model.UploadFixture(), bucket, key); err != nil {
				return nil
			}
			if verify {
				_, _ = svc.VerifyCSV(ctx, bucket, key)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false, "read the object back after uploading")
	return cmd
}

func newPublishCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Write the product fixture as a cataloged Parquet dataset and read it back",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, ok := a.clients(ctx)
			if !ok {
				return nil
			}

			a.logger.Infow("Publishing dataset", "location", a.cfg.S3Path(), "database", a.cfg.Catalog.Database, "table", a.cfg.Athena.Table)
			svc := service.NewPublishService(c.S3, c.Catalog, a.logger)
			svc.Run(ctx, &service.PublishRequest{
				Products: model.PublishFixture(),
				Bucket:   a.cfg.Storage.Bucket,
				Prefix:   a.cfg.DatasetPrefix(),
				Database: a.cfg.Catalog.Database,
				Table:    a.cfg.Athena.Table,
			})
			return nil
		},
	}
}

func newReadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read",
		Short: "Discover published Parquet data and read it through S3, Athena and Redshift Spectrum",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, ok := a.clients(ctx)
			if !ok {
				return nil
			}

			svc := service.NewReadService(c.S3, c.Athena, service.NewRedshiftEngine(c.Redshift), a.logger)
			svc.Run(ctx, &service.ReadRequest{
				Bucket: a.cfg.Storage.Bucket,
				Prefix: a.cfg.DatasetPrefix(),
				Catalog: service.CatalogQuery{
					Database: a.cfg.Athena.Database,
					Table:    a.cfg.Athena.Table,
				},
				Federated: service.FederatedQuery{
					ConnectionName: a.cfg.Redshift.ConnectionName,
					Schema:         a.cfg.Redshift.ExternalSchema,
					Table:          a.cfg.Athena.Table,
				},
			})
			return nil
		},
	}
}

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect KEY|s3://BUCKET/KEY",
		Short: "Print the footer summary of a Parquet object (keys are resolved in BUCKET_NAME)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, key, err := inspectTarget(a.cfg.Storage.Bucket, args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			c, ok := a.clients(ctx)
			if !ok {
				return nil
			}

			svc := service.NewReadService(c.S3, c.Athena, service.NewRedshiftEngine(c.Redshift), a.logger)
			_, _ = svc.Inspect(ctx, bucket, key)
			return nil
		},
	}
}

// inspectTarget resolves the inspect argument: an s3:// URI names its own
// bucket, anything else is a key in the configured bucket.
func inspectTarget(bucket, arg string) (string, string, error) {
	if !strings.HasPrefix(arg, "s3://") {
		return bucket, arg, nil
	}

	b, key, err := object_storage.ParseS3URI(arg)
	if err != nil {
		return "", "", err
	}
	if key == "" {
		return "", "", fmt.Errorf("object key is required in %s", arg)
	}
	return b, key, nil
}
