package database

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jpirolla/aws-data-querying/internal/config"
	"github.com/jpirolla/aws-data-querying/internal/database/drivers/catalog"
	"github.com/jpirolla/aws-data-querying/internal/database/drivers/object_storage"
	"github.com/jpirolla/aws-data-querying/internal/database/drivers/warehouses"
	"github.com/jpirolla/aws-data-querying/internal/metrics"
	"github.com/jpirolla/aws-data-querying/internal/utils"
)

// Clients holds the profile-scoped remote service handles for one process.
type Clients struct {
	S3       *object_storage.S3Client
	Catalog  *catalog.GlueCatalog
	Athena   *warehouses.AthenaDriver
	Redshift *warehouses.RedshiftDriver
}

// NewClients resolves the shared AWS configuration for the configured profile
// and builds every client from it. No service is contacted; only the Redshift
// driver opens a network connection, and only when Connect is called.
func NewClients(ctx context.Context, cfg *config.Config, m *metrics.RemoteCalls) (*Clients, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, utils.Classify("load aws config", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.AWS.EndpointURL != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			o.UsePathStyle = true
		})
	}

	glueCatalog := catalog.NewGlueCatalog(glue.NewFromConfig(awsCfg), m)

	return &Clients{
		S3:      object_storage.NewS3Client(s3.NewFromConfig(awsCfg, s3Opts...), m),
		Catalog: glueCatalog,
		Athena: warehouses.NewAthenaDriver(athena.NewFromConfig(awsCfg), warehouses.AthenaConfig{
			Workgroup:      cfg.Athena.Workgroup,
			OutputLocation: cfg.Athena.OutputLocation,
			PollInterval:   cfg.Athena.PollInterval,
		}, m),
		Redshift: warehouses.NewRedshiftDriver(glueCatalog, m),
	}, nil
}

func loadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	return awsconfig.LoadDefaultConfig(ctx, opts...)
}
