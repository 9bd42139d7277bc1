// Package storage uploads cached article blobs to S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	appconfig "threatfeed/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// cacheControl is applied to every uploaded blob
const cacheControl = "public, max-age=300"

// objectAPI is the part of the S3 client used here
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3 uploads objects under a bucket prefix and reports their public URLs
type S3 struct {
	client        objectAPI
	bucket        string
	prefix        string
	region        string
	usePathStyle  bool
	publicBaseURL string
}

// NewS3 creates an S3 uploader using the default AWS configuration chain,
// with optional overrides from cfg. cfg.Bucket is required.
func NewS3(ctx context.Context, cfg appconfig.S3Config) (*S3, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("S3 bucket is required")
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3WithClient(client, cfg, awsCfg.Region), nil
}

func newS3WithClient(client objectAPI, cfg appconfig.S3Config, region string) *S3 {
	if cfg.Region != "" {
		region = cfg.Region
	}
	return &S3{
		client:        client,
		bucket:        cfg.Bucket,
		prefix:        cfg.Prefix,
		region:        region,
		usePathStyle:  cfg.UsePathStyle,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
}

// Upload writes body under the configured prefix and returns the object's public URL
func (s *S3) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	fullKey := s.prefix + strings.TrimLeft(key, "/")
	in := &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(fullKey),
		Body:         bytes.NewReader(body),
		CacheControl: aws.String(cacheControl),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", fullKey, err)
	}
	return s.PublicURL(key), nil
}

// Exists returns true if the object exists; false on 404/NotFound
func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + strings.TrimLeft(key, "/")),
	})
	if err == nil {
		return true, nil
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return false, nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey") {
		return false, nil
	}

	return false, err
}

// PublicURL is where clients can read key. PublicBaseURL wins when configured;
// otherwise the bucket's virtual-hosted (or path-style) AWS endpoint is used.
func (s *S3) PublicURL(key string) string {
	escaped := escapeKey(s.prefix + strings.TrimLeft(key, "/"))
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + escaped
	}

	host := "s3.amazonaws.com"
	if s.region != "" && s.region != "us-east-1" {
		host = "s3." + s.region + ".amazonaws.com"
	}
	if s.usePathStyle {
		return "https://" + host + "/" + s.bucket + "/" + escaped
	}
	return "https://" + s.bucket + "." + host + "/" + escaped
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
