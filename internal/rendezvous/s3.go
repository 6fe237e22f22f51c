package rendezvous

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// s3API is the subset of the S3 client the channel uses; narrowed for
// testability.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Channel backs the mailbox with an S3-compatible bucket, for
// provisioning layers that attach object storage instead of a shared
// filesystem. Object PUTs are atomic, so no temp-and-rename dance is
// needed.
type S3Channel struct {
	client s3API
	bucket string
	prefix string
}

// S3Options configure the object-storage backend.
type S3Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string

	// Prefix namespaces the artifacts inside the bucket, usually the
	// cluster name.
	Prefix string
}

// NewS3Channel creates a channel over an S3-compatible endpoint.
func NewS3Channel(ctx context.Context, opts S3Options) (*S3Channel, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
		awsconfig.WithRegion(opts.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(opts.Endpoint)
		o.UsePathStyle = true
	})

	return &S3Channel{client: client, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

// newS3ChannelWithAPI wires a fake API in tests.
func newS3ChannelWithAPI(api s3API, bucket, prefix string) *S3Channel {
	return &S3Channel{client: api, bucket: bucket, prefix: prefix}
}

// Publish implements Channel.
func (c *S3Channel) Publish(ctx context.Context, joinCommand, clusterInfo string) error {
	artifacts := map[string]string{
		JoinCommandArtifact: joinCommand + "\n",
		ClusterInfoArtifact: clusterInfo + "\n",
		EpochArtifact:       nextEpoch(c.previousEpoch(ctx)) + "\n",
	}
	for name, content := range artifacts {
		_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(c.key(name)),
			Body:   bytes.NewReader([]byte(content)),
		})
		if err != nil {
			return &UnavailableError{Backend: "s3", Err: err}
		}
	}
	return nil
}

// TryRead implements Channel.
func (c *S3Channel) TryRead(ctx context.Context) (string, bool, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(JoinCommandArtifact)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return "", false, nil
		}
		return "", false, &UnavailableError{Backend: "s3", Err: err}
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", false, &UnavailableError{Backend: "s3", Err: err}
	}
	if len(data) == 0 {
		return "", false, nil
	}
	return string(data), true, nil
}

// previousEpoch best-effort reads the current epoch stamp; any failure
// just restarts the count.
func (c *S3Channel) previousEpoch(ctx context.Context) string {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(EpochArtifact)),
	})
	if err != nil {
		return ""
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return ""
	}
	return string(data)
}

func (c *S3Channel) key(name string) string {
	if c.prefix == "" {
		return name
	}
	return strings.TrimSuffix(c.prefix, "/") + "/" + name
}

// isNoSuchKey checks for the absent-object condition across SDK error
// shapes and S3-compatible services that only return the API error code.
func isNoSuchKey(err error) bool {
	if err == nil {
		return false
	}

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}

	return false
}
