package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every setting the workflows read. Values come from the process
// environment, optionally seeded from a dotenv file. Nothing is validated here;
// each workflow step checks what it needs at the point of use.
type Config struct {
	AWS      AWSConfig
	Storage  StorageConfig
	Catalog  CatalogConfig
	Athena   AthenaConfig
	Redshift RedshiftConfig
	Logging  LoggingConfig
}

type AWSConfig struct {
	Profile     string
	Region      string
	EndpointURL string // S3-compatible endpoints (LocalStack)
}

type StorageConfig struct {
	Bucket     string
	FolderPath string
	ObjectName string
}

type CatalogConfig struct {
	Database string
}

type AthenaConfig struct {
	Database       string
	Table          string
	Workgroup      string
	OutputLocation string
	PollInterval   time.Duration
}

type RedshiftConfig struct {
	ConnectionName string
	ExternalSchema string
}

type LoggingConfig struct {
	Level string
}

// keys lists every setting; each is bound to the upper-cased environment variable.
var keys = []string{
	"aws_profile",
	"aws_region",
	"s3_endpoint_url",
	"bucket_name",
	"s3_folder_path",
	"object_name",
	"glue_database",
	"athena_database",
	"athena_table",
	"athena_workgroup",
	"athena_output_location",
	"athena_poll_interval",
	"redshift_connection_name",
	"redshift_external_schema",
	"log_level",
}

// Load reads the configuration. Entries of envFile are exported into the
// process environment without overriding variables that are already set, so
// the AWS SDK sees them too. envFile may be empty or point to a missing file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := loadEnvFile(envFile); err != nil {
			return nil, err
		}
	}

	v := viper.New()

	setDefaults(v)

	for _, key := range keys {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", key, err)
		}
	}

	return &Config{
		AWS: AWSConfig{
			Profile:     v.GetString("aws_profile"),
			Region:      v.GetString("aws_region"),
			EndpointURL: v.GetString("s3_endpoint_url"),
		},
		Storage: StorageConfig{
			Bucket:     v.GetString("bucket_name"),
			FolderPath: v.GetString("s3_folder_path"),
			ObjectName: v.GetString("object_name"),
		},
		Catalog: CatalogConfig{
			Database: v.GetString("glue_database"),
		},
		Athena: AthenaConfig{
			Database:       v.GetString("athena_database"),
			Table:          v.GetString("athena_table"),
			Workgroup:      v.GetString("athena_workgroup"),
			OutputLocation: v.GetString("athena_output_location"),
			PollInterval:   v.GetDuration("athena_poll_interval"),
		},
		Redshift: RedshiftConfig{
			ConnectionName: v.GetString("redshift_connection_name"),
			ExternalSchema: v.GetString("redshift_external_schema"),
		},
		Logging: LoggingConfig{
			Level: v.GetString("log_level"),
		},
	}, nil
}

func loadEnvFile(envFile string) error {
	info, err := os.Stat(envFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error reading env file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("error reading env file: %s is a directory", envFile)
	}

	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("error reading env file: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("athena_workgroup", "primary")
	v.SetDefault("athena_poll_interval", "1s")
	v.SetDefault("redshift_external_schema", "external_schema")
	v.SetDefault("log_level", "info")
}

// S3Path returns the dataset location as an s3:// URI.
func (c *Config) S3Path() string {
	return fmt.Sprintf("s3://%s/%s", c.Storage.Bucket, c.DatasetPrefix())
}

// DatasetPrefix returns the folder path normalised into an object key prefix.
func (c *Config) DatasetPrefix() string {
	prefix := strings.TrimPrefix(c.Storage.FolderPath, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}
