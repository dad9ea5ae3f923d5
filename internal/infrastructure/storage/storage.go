// Package storage resolves keys of problem block files into links that
// Telegram can download. Files live in an S3-compatible bucket (Cloudflare R2
// or AWS S3).
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Linker turns an object key into a download URL.
type Linker interface {
	Link(ctx context.Context, key string) (string, error)
}

// ErrEmptyKey is returned for blocks without a file.
var ErrEmptyKey = errors.New("storage: empty key")

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config describes the bucket with problem files.
type Config struct {
	// Endpoint overrides the S3 endpoint. For R2 it is derived from AccountID.
	Endpoint  string
	AccountID string
	Region    string

	AccessKeyID     string
	SecretAccessKey string
	Bucket          string

	// PublicBaseURL serves objects without signing when the bucket is public.
	PublicBaseURL string

	// LinkTTL is the lifetime of presigned links.
	LinkTTL time.Duration
}

// Enabled reports whether the bucket is configured.
func (c Config) Enabled() bool {
	return c.Bucket != "" || c.PublicBaseURL != ""
}

func (c Config) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	if c.AccountID != "" {
		return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
	}
	return ""
}

// New returns a PublicLinker when PublicBaseURL is set and an S3Linker otherwise.
func New(ctx context.Context, cfg Config) (Linker, error) {
	if cfg.PublicBaseURL != "" {
		return NewPublicLinker(cfg.PublicBaseURL)
	}
	return NewS3Linker(ctx, cfg)
}

// ══════════════════════════════════════════════════════════════════════════════
// S3 PRESIGNED LINKS
// ══════════════════════════════════════════════════════════════════════════════

// S3Linker signs GET requests to a private bucket.
type S3Linker struct {
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
}

// NewS3Linker creates an S3Linker.
func NewS3Linker(ctx context.Context, cfg Config) (*S3Linker, error) {
	if cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("storage: bucket, access key and secret are required")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	sdkCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	endpoint := cfg.endpoint()
	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	ttl := cfg.LinkTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &S3Linker{presign: s3.NewPresignClient(client), bucket: cfg.Bucket, ttl: ttl}, nil
}

// Link implements Linker.
func (l *S3Linker) Link(ctx context.Context, key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", ErrEmptyKey
	}
	req, err := l.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(l.ttl))
	if err != nil {
		return "", fmt.Errorf("storage: presign %s: %w", key, err)
	}
	return req.URL, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PUBLIC LINKS
// ══════════════════════════════════════════════════════════════════════════════

// PublicLinker joins keys to the public URL of a bucket.
type PublicLinker struct {
	base *url.URL
}

// NewPublicLinker creates a PublicLinker.
func NewPublicLinker(baseURL string) (*PublicLinker, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("storage: parse public url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("storage: public url must be absolute: %q", baseURL)
	}
	return &PublicLinker{base: u}, nil
}

// Link implements Linker.
func (l *PublicLinker) Link(_ context.Context, key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", ErrEmptyKey
	}
	return l.base.JoinPath(strings.Split(key, "/")...).String(), nil
}
