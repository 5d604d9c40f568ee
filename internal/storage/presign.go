package storage

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

// MediaResolver turns a media reference from the metadata into a URL the
// transcription backend can fetch
type MediaResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// PassthroughResolver submits references unchanged
type PassthroughResolver struct{}

// Resolve implements MediaResolver
func (PassthroughResolver) Resolve(_ context.Context, ref string) (string, error) {
	return ref, nil
}

type objectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*PresignedURL, error)
}

// PresignedURL is the subset of the presign result the resolver needs
type PresignedURL struct {
	URL string
}

type s3Presigner struct {
	client *s3.PresignClient
}

func (p s3Presigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*PresignedURL, error) {
	req, err := p.client.PresignGetObject(ctx, params, optFns...)
	if err != nil {
		return nil, err
	}
	return &PresignedURL{URL: req.URL}, nil
}

// S3Resolver presigns s3://bucket/key references; other references pass
// through unchanged
type S3Resolver struct {
	presigner objectPresigner
	expires   time.Duration
}

// NewS3Resolver loads AWS credentials from the default chain
func NewS3Resolver(ctx context.Context, region string, expires time.Duration) (*S3Resolver, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load AWS SDK config")
	}
	if expires <= 0 {
		expires = time.Hour
	}
	return &S3Resolver{
		presigner: s3Presigner{client: s3.NewPresignClient(s3.NewFromConfig(awsCfg))},
		expires:   expires,
	}, nil
}

// Resolve implements MediaResolver
func (r *S3Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	bucket, key, ok := ParseS3URI(ref)
	if !ok {
		return ref, nil
	}
	out, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(r.expires))
	if err != nil {
		return "", errors.Wrapf(err, "presign %s", ref)
	}
	return out.URL, nil
}

// ParseS3URI splits s3://bucket/key
func ParseS3URI(ref string) (bucket, key string, ok bool) {
	if !strings.HasPrefix(ref, "s3://") {
		return "", "", false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return "", "", false
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", false
	}
	return u.Host, key, true
}
