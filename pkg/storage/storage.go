package storage

import (
	"context"
	"time"
)

// Gateway issues time-boxed, capability-scoped URLs for direct client
// access to object storage. It never transfers object bytes itself.
type Gateway interface {
	// PresignUpload returns a URL that permits exactly one operation:
	// a PUT of the given content type to the given key. The URL expires
	// at the returned instant.
	PresignUpload(ctx context.Context, key, contentType, filename string) (*SignedURL, error)

	// PresignDownload returns a read-only URL for the given key with a
	// Content-Disposition attachment header carrying filename.
	PresignDownload(ctx context.Context, key, filename string) (*SignedURL, error)

	// Head returns the size of the object at key, or ErrNotFound if no
	// such object exists.
	Head(ctx context.Context, key string) (int64, error)
}

// SignedURL is a presigned capability for a single storage operation.
type SignedURL struct {
	URL       string
	Key       string
	ExpiresAt time.Time
}

// Config holds S3-compatible storage configuration.
// Embed in the app config for env parsing with caarlos0/env.
type Config struct {
	Bucket    string `env:"AWS_S3_BUCKET_NAME,required"`
	AccessKey string `env:"AWS_ACCESS_KEY_ID,required"`
	SecretKey string `env:"AWS_SECRET_ACCESS_KEY,required"`
	Region    string `env:"AWS_REGION" envDefault:"us-east-1"`

	// Endpoint is a custom S3 endpoint URL for MinIO or other
	// S3-compatible services. PathStyle is required for MinIO.
	Endpoint  string `env:"AWS_S3_ENDPOINT"`
	PathStyle bool   `env:"AWS_S3_PATH_STYLE"`

	// Presigned URLs are short-lived: the client is expected to start
	// the transfer immediately after receiving one.
	UploadURLExpiry   time.Duration `env:"AWS_S3_UPLOAD_URL_EXPIRY" envDefault:"60s"`
	DownloadURLExpiry time.Duration `env:"AWS_S3_DOWNLOAD_URL_EXPIRY" envDefault:"60s"`
}

func (c *Config) applyDefaults() {
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.UploadURLExpiry <= 0 {
		c.UploadURLExpiry = time.Minute
	}
	if c.DownloadURLExpiry <= 0 {
		c.DownloadURLExpiry = time.Minute
	}
}

func (c *Config) validate() error {
	if c.Bucket == "" || c.AccessKey == "" || c.SecretKey == "" {
		return ErrInvalidConfig
	}
	return nil
}
