package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the subset of the S3 client used by S3DocumentStore.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options configures the S3 client.
type S3Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// S3DocumentStore uploads documents to an S3 bucket.
type S3DocumentStore struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewS3DocumentStore loads the AWS configuration and builds the client.
// Static credentials are used when both keys are set.
func NewS3DocumentStore(ctx context.Context, opts S3Options) (*S3DocumentStore, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 document store: empty bucket")
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3 document store: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	return NewS3DocumentStoreWithClient(client, opts.Bucket, opts.Prefix)
}

// NewS3DocumentStoreWithClient wraps an existing client.
func NewS3DocumentStoreWithClient(client ObjectPutter, bucket, prefix string) (*S3DocumentStore, error) {
	if client == nil {
		return nil, errors.New("s3 document store: nil client")
	}
	if bucket == "" {
		return nil, errors.New("s3 document store: empty bucket")
	}
	return &S3DocumentStore{client: client, bucket: bucket, prefix: prefix}, nil
}

// Put uploads data and returns its s3:// location.
func (s *S3DocumentStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if key == "" {
		return "", errors.New("s3 document store: empty key")
	}
	objectKey := path.Join(s.prefix, key)
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3 put %s: %w", objectKey, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, objectKey), nil
}
