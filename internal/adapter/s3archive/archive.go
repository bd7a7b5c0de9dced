// Package s3archive copies raw API payloads to an S3-compatible bucket,
// one folder per ingest run.
package s3archive

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/heartmarshall/d2-itemdb-updater/pkg/ctxutil"
)

// Options locates the bucket. Endpoint and static keys are for MinIO-style
// deployments; without keys the default AWS credential chain is used.
type Options struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Archive uploads payloads under <prefix>/<run-id>/<name>.
type Archive struct {
	up     uploader
	bucket string
	prefix string
}

// New builds an Archive backed by the AWS SDK.
func New(ctx context.Context, opts Options) (*Archive, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	if opts.Endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(opts.Endpoint))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3archive: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = opts.Endpoint != ""
	})

	return newArchive(manager.NewUploader(client), opts.Bucket, opts.Prefix), nil
}

func newArchive(up uploader, bucket, prefix string) *Archive {
	return &Archive{up: up, bucket: bucket, prefix: prefix}
}

// Key returns the object key for name within the run carried by ctx.
// Payloads saved outside a run land under "adhoc".
func (a *Archive) Key(ctx context.Context, name string) string {
	run := "adhoc"
	if id, ok := ctxutil.RunIDFromCtx(ctx); ok {
		run = id.String()
	}
	return path.Join(a.prefix, run, name)
}

func (a *Archive) Save(ctx context.Context, name string, body []byte) error {
	key := a.Key(ctx, name)

	_, err := a.up.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3archive: upload s3://%s/%s: %w", a.bucket, key, err)
	}
	return nil
}
