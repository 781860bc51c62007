// Package media resolves stored object keys to presigned R2 download URLs.
package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/onnwee/commons/internal/visibility"
)

// ErrInvalidKey is returned for keys that are empty, absolute or escape
// their prefix.
var ErrInvalidKey = errors.New("invalid object key")

// DefaultURLExpiry is used when Config.URLExpiryMinutes is not positive.
const DefaultURLExpiry = 15 * time.Minute

// Config holds the R2 bucket settings.
type Config struct {
	BucketName       string
	AccessKeyID      string
	SecretAccessKey  string
	Endpoint         string
	URLExpiryMinutes int
}

// Service presigns GET requests for objects in one bucket.
type Service struct {
	presignClient *s3.PresignClient
	bucketName    string
	urlExpiry     time.Duration
}

// NewService creates a Service. Presigning is local; no request is sent to
// the bucket.
func NewService(cfg Config) (*Service, error) {
	switch {
	case cfg.BucketName == "":
		return nil, errors.New("bucket name is required")
	case cfg.AccessKeyID == "":
		return nil, errors.New("access key ID is required")
	case cfg.SecretAccessKey == "":
		return nil, errors.New("secret access key is required")
	case cfg.Endpoint == "":
		return nil, errors.New("endpoint is required")
	}

	expiry := DefaultURLExpiry
	if cfg.URLExpiryMinutes > 0 {
		expiry = time.Duration(cfg.URLExpiryMinutes) * time.Minute
	}

	client := s3.New(s3.Options{
		Region: "auto",
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
	})

	return &Service{
		presignClient: s3.NewPresignClient(client),
		bucketName:    cfg.BucketName,
		urlExpiry:     expiry,
	}, nil
}

// ValidateKey rejects keys that could address objects outside the bucket
// layout.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// URL returns a presigned GET URL for key.
func (s *Service) URL(ctx context.Context, key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.urlExpiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign request: %w", err)
	}
	return req.URL, nil
}

// ResolveRecord returns a copy of rec in which every non-empty string value
// of fields is replaced by its presigned URL. Values hidden by the
// visibility filter are nil and stay nil. An invalid key is dropped.
func (s *Service) ResolveRecord(ctx context.Context, rec visibility.Record, fields []string) (visibility.Record, error) {
	out := make(visibility.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	for _, f := range fields {
		key, ok := out[f].(string)
		if !ok || key == "" {
			continue
		}
		u, err := s.URL(ctx, key)
		if errors.Is(err, ErrInvalidKey) {
			out[f] = nil
			continue
		}
		if err != nil {
			return nil, err
		}
		out[f] = u
	}
	return out, nil
}
