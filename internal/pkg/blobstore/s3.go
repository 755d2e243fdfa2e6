package blobstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures an S3Sink against any S3-compatible endpoint
// (AWS S3, MinIO, Cloudflare R2, etc.)
type S3Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	CustomDomain string
}

// S3Sink implements BlobSink against an S3-compatible object store.
type S3Sink struct {
	client       *s3.Client
	bucket       string
	endpoint     string
	customDomain string
}

// NewS3Sink builds an S3Sink, resolving to cfg.Endpoint when set (MinIO/R2
// style custom endpoints) instead of AWS's default resolver.
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if cfg.Endpoint != "" {
			return aws.Endpoint{
				URL:               cfg.Endpoint,
				HostnameImmutable: true,
				SigningRegion:     cfg.Region,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		config.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, fmt.Errorf("blobstore: failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Sink{
		client:       client,
		bucket:       cfg.Bucket,
		endpoint:     cfg.Endpoint,
		customDomain: cfg.CustomDomain,
	}, nil
}

// Put uploads data to key with the given content type.
func (s *S3Sink) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("blobstore: upload failed for %s: %w", key, err)
	}
	return nil
}

// URL resolves key to its public download URL, preferring a configured
// custom domain (e.g. a CDN) over the raw endpoint/bucket form.
func (s *S3Sink) URL(key string) string {
	if s.customDomain != "" {
		return joinBase(s.customDomain, key)
	}
	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
}

func joinBase(base, key string) string {
	if len(base) > 0 && base[len(base)-1] == '/' {
		return base + key
	}
	return base + "/" + key
}
