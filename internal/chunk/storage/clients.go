package storage

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// S3ClientConfig configures construction of the *s3.Client passed to
// S3Config.Client. It lets callers build a real client without reaching
// into the AWS SDK directly; the CLI does not use it.
type S3ClientConfig struct {
	Region string
	// AccessKeyID/SecretAccessKey, if both set, are used as static
	// credentials instead of the default provider chain (environment,
	// shared config, instance role).
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the default AWS endpoint resolution, for
	// S3-compatible providers (MinIO, R2, etc).
	Endpoint string
}

// NewS3Client resolves AWS credentials and builds an *s3.Client per cfg.
func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
	}), nil
}

// GCSClientConfig configures construction of the *gcs.Client passed to
// GCSConfig.Client.
type GCSClientConfig struct {
	// CredentialsFile, if set, is a service-account JSON key file. If
	// empty, the default application credentials chain is used.
	CredentialsFile string
}

// NewGCSClient builds a *gcs.Client per cfg.
func NewGCSClient(ctx context.Context, cfg GCSClientConfig) (*gcs.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	return gcs.NewClient(ctx, opts...)
}
