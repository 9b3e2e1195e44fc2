package sink

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ricirt/job-harvester/internal/domain"
)

// S3Config configures the snapshot mirror. Endpoint is set for MinIO and
// other S3-compatible stores; it also switches to path-style addressing.
// Without AccessKey and SecretKey the default AWS credential chain is used.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	Prefix    string
	AccessKey string
	SecretKey string
}

// ObjectPutter is the part of *s3.Client the sink needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3SnapshotSink uploads the raw page to s3://<bucket>/<prefix><id>.html.
type S3SnapshotSink struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewS3Client builds an S3 client from cfg.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func NewS3SnapshotSink(client ObjectPutter, bucket, prefix string) *S3SnapshotSink {
	return &S3SnapshotSink{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3SnapshotSink) Name() string { return "s3-snapshot" }

func (s *S3SnapshotSink) Write(ctx context.Context, rec *domain.JobRecord) error {
	key := path.Join(s.prefix, rec.ID+".html")
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(rec.RawHTML),
		ContentType: aws.String("text/html; charset=utf-8"),
		Metadata:    map[string]string{"source-url": rec.SourceURL},
	})
	if err != nil {
		return domain.StorageFailure("put s3 object "+key, err)
	}
	return nil
}
