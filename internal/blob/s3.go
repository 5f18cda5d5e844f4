// Package blob stores receipt files in an S3 compatible bucket and issues
// time-boxed signed read URLs for them.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	applog "trackitall/internal/log"
)

// DefaultContentType is stored on every uploaded receipt.
const DefaultContentType = "application/octet-stream"

// Config describes the bucket and how to reach it.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // empty uses the AWS endpoint resolution
	AccessKeyID     string // empty uses the default credential chain
	SecretAccessKey string
	UsePathStyle    bool
}

// ObjectAPI is the subset of the S3 client the store uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Presigner issues presigned GET requests.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store is a receipt blob store backed by S3.
type Store struct {
	api     ObjectAPI
	presign Presigner
	bucket  string
	logger  *applog.Logger
}

// New builds a Store from cfg using the AWS SDK default configuration chain.
func New(ctx context.Context, cfg Config, logger *applog.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("missing S3 bucket")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewWithClient(client, s3.NewPresignClient(client), cfg.Bucket, logger), nil
}

// NewWithClient wires a Store around existing clients.
func NewWithClient(api ObjectAPI, presign Presigner, bucket string, logger *applog.Logger) *Store {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Store{
		api:     api,
		presign: presign,
		bucket:  bucket,
		logger:  logger.WithComponent(applog.ComponentBlob),
	}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	_, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}

	_, err = s.api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.logger.InfoContext(ctx, "Created receipt bucket", "bucket", s.bucket)
	return nil
}

// Upload stores the content of r under name.
func (s *Store) Upload(ctx context.Context, name string, r io.Reader, contentType string) error {
	if contentType == "" {
		contentType = DefaultContentType
	}
	// The SDK signs the payload, which needs a seekable body.
	body, ok := r.(io.ReadSeeker)
	if !ok {
		b, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("read receipt %s: %w", name, err)
		}
		body = bytes.NewReader(b)
	}

	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(name),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	s.logger.DebugContext(ctx, "Receipt uploaded", applog.FieldBlobName, name)
	return nil
}

// DeleteIfExists removes name and reports whether it existed.
func (s *Store) DeleteIfExists(ctx context.Context, name string) (bool, error) {
	exists, err := s.Exists(ctx, name)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	_, err = s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil && !isNotFound(err) {
		return false, fmt.Errorf("delete %s: %w", name, err)
	}
	return true, nil
}

func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head %s: %w", name, err)
}

// SignedReadURL returns a presigned GET URL valid for validity.
func (s *Store) SignedReadURL(ctx context.Context, name string, validity time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	}, s3.WithPresignExpires(validity))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", name, err)
	}
	return req.URL, nil
}

func isNotFound(err error) bool {
	var (
		notFound  *types.NotFound
		noSuchKey *types.NoSuchKey
		noBucket  *types.NoSuchBucket
	)
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) || errors.As(err, &noBucket) {
		return true
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}
