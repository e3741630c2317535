package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// SpacesConfig configures the DigitalOcean Spaces adapter.
type SpacesConfig struct {
	KeyID     string
	KeySecret string
	Bucket    string
	Region    string
	// Endpoint may include a scheme; http:// disables TLS.
	Endpoint string
}

// Spaces stores objects in a DigitalOcean Spaces bucket over the S3 API.
type Spaces struct {
	client *minio.Client
	bucket string
}

// NewSpaces builds a minio client for cfg. It does not contact the endpoint.
func NewSpaces(cfg SpacesConfig) (*Spaces, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("spaces credentials and bucket are required")
	}
	region := cfg.Region
	if region == "" {
		region = "nyc3"
	}
	endpoint, secure := splitEndpoint(cfg.Endpoint, region)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.KeyID, cfg.KeySecret, ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create spaces client: %w", err)
	}
	return &Spaces{client: client, bucket: cfg.Bucket}, nil
}

func splitEndpoint(raw, region string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return region + ".digitaloceanspaces.com", true
	}
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host, u.Scheme != "http"
	}
	return strings.TrimSuffix(raw, "/"), true
}

func (s *Spaces) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// SignedURL presigns a GET for key. With a region set this is computed locally.
func (s *Spaces) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

func (s *Spaces) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// CheckConfiguration confirms the bucket exists and the credentials can see it.
func (s *Spaces) CheckConfiguration(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}
