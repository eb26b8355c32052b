package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Gateway implements Gateway using an S3 presign client.
type S3Gateway struct {
	client    *s3.Client
	presigner *s3.PresignClient
	cfg       Config
}

// New creates an S3Gateway with the given configuration.
func New(cfg Config) (*S3Gateway, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opts := []func(*s3.Options){
		func(o *s3.Options) {
			o.Region = cfg.Region
			o.Credentials = credentials.NewStaticCredentialsProvider(
				cfg.AccessKey,
				cfg.SecretKey,
				"",
			)
		},
	}

	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.PathStyle
		})
	}

	client := s3.New(s3.Options{}, opts...)

	return &S3Gateway{
		client:    client,
		presigner: s3.NewPresignClient(client),
		cfg:       cfg,
	}, nil
}

// PresignUpload returns a PUT capability scoped to exactly key and
// contentType. Storage rejects uploads whose headers do not match the
// signed values, so the URL cannot be repurposed for another object.
func (g *S3Gateway) PresignUpload(ctx context.Context, key, contentType, filename string) (*SignedURL, error) {
	input := &s3.PutObjectInput{
		Bucket:             aws.String(g.cfg.Bucket),
		Key:                aws.String(key),
		ContentType:        aws.String(contentType),
		ContentDisposition: aws.String(attachment(filename)),
	}

	expiresAt := time.Now().Add(g.cfg.UploadURLExpiry)
	result, err := g.presigner.PresignPutObject(ctx, input, s3.WithPresignExpires(g.cfg.UploadURLExpiry))
	if err != nil {
		return nil, wrapS3Error(err, ErrPresignFailed)
	}

	return &SignedURL{URL: result.URL, Key: key, ExpiresAt: expiresAt}, nil
}

// PresignDownload returns a read-only GET capability for key.
func (g *S3Gateway) PresignDownload(ctx context.Context, key, filename string) (*SignedURL, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(g.cfg.Bucket),
		Key:    aws.String(key),
	}
	if filename != "" {
		input.ResponseContentDisposition = aws.String(attachment(filename))
	}

	expiresAt := time.Now().Add(g.cfg.DownloadURLExpiry)
	result, err := g.presigner.PresignGetObject(ctx, input, s3.WithPresignExpires(g.cfg.DownloadURLExpiry))
	if err != nil {
		return nil, wrapS3Error(err, ErrPresignFailed)
	}

	return &SignedURL{URL: result.URL, Key: key, ExpiresAt: expiresAt}, nil
}

// Head checks object existence and returns its size in bytes.
func (g *S3Gateway) Head(ctx context.Context, key string) (int64, error) {
	output, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(g.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, wrapS3Error(err, ErrNotFound)
	}

	if output.ContentLength == nil {
		return 0, nil
	}
	return *output.ContentLength, nil
}

func attachment(filename string) string {
	return fmt.Sprintf("attachment; filename=%q", filename)
}

// Ensure S3Gateway implements Gateway.
var _ Gateway = (*S3Gateway)(nil)
