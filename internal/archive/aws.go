package archive

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/bulkmail/internal/analytics"
	"github.com/ignite/bulkmail/internal/config"
)

// FromConfig builds the archiver and cycle recorder selected by cfg. Either
// result may be nil when the corresponding destination is not configured.
func FromConfig(ctx context.Context, cfg config.ArchiveConfig) (analytics.Archiver, analytics.CycleRecorder, error) {
	var (
		archiver analytics.Archiver
		recorder analytics.CycleRecorder
	)

	if cfg.S3Bucket != "" || cfg.DynamoTable != "" {
		opts := []func(*awsconfig.LoadOptions) error{}
		if cfg.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("loading AWS config: %w", err)
		}
		if cfg.S3Bucket != "" {
			archiver = NewS3Archive(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Prefix)
		}
		if cfg.DynamoTable != "" {
			recorder = NewCycleLog(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable)
		}
	}

	if archiver == nil && cfg.Dir != "" {
		local, err := NewLocalArchive(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		archiver = local
	}
	return archiver, recorder, nil
}
