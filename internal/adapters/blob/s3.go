// Package blob stores review media in S3-compatible object storage.
package blob

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"docaria/internal/adapters/observability"
)

type S3Store struct {
	client     *s3.Client
	bucket     string
	publicBase string
}

// NewS3 builds a store from the default AWS credential chain. A non-empty endpoint
// switches to path-style addressing for S3-compatible servers (MinIO, localstack).
func NewS3(ctx context.Context, bucket, region, endpoint, publicBase string) (*S3Store, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3WithClient(client, bucket, publicBase), nil
}

func NewS3WithClient(client *s3.Client, bucket, publicBase string) *S3Store {
	return &S3Store{client: client, bucket: bucket, publicBase: strings.TrimRight(publicBase, "/")}
}

// Put uploads body under key and returns its durable download URL.
// Pass an io.ReadSeeker (e.g. *os.File) so the payload can be signed.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	start := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	status := 200
	if err != nil {
		status = 0
	}
	observability.ObserveExternal("s3", "put_object", status, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return s.URL(key), nil
}

func (s *S3Store) URL(key string) string { return s.publicBase + "/" + key }
