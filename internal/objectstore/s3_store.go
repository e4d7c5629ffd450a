package objectstore

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// mp3ContentType is the content type recorded on every uploaded artifact.
const mp3ContentType = "audio/mpeg"

// S3Options carries the connection settings for an S3-compatible bucket.
// Endpoint is optional; setting it switches the client to path-style
// addressing for MinIO and similar self-hosted services.
type S3Options struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// S3Store implements the core.ArchiveStore interface on top of an
// S3-compatible bucket.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	opts     S3Options
}

// NewS3Store builds the AWS client configuration and binds a store to the
// configured bucket. Static credentials are used when both keys are set;
// otherwise the default provider chain applies.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))

	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)

	if opts.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		opts:     opts,
	}, nil
}

// Store uploads the local file under the given key and returns the object
// URL. Storing the same key twice overwrites the previous object.
func (s *S3Store) Store(ctx context.Context, localPath, key string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open upload source '%s': %w", localPath, err)
	}

	_, uploadErr := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(mp3ContentType),
	})
	closeErr := file.Close()

	if uploadErr != nil {
		return "", fmt.Errorf(
			"failed to upload object '%s' to bucket '%s': %w",
			key,
			s.opts.Bucket,
			uploadErr,
		)
	}

	if closeErr != nil {
		return "", fmt.Errorf("failed to close upload source '%s': %w", localPath, closeErr)
	}

	return buildS3Locator(s.opts.Endpoint, s.opts.Bucket, s.opts.Region, key), nil
}

// Validate confirms the bucket exists and the credentials can reach it.
func (s *S3Store) Validate(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.opts.Bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to reach bucket '%s': %w", s.opts.Bucket, err)
	}

	return nil
}

// buildS3Locator mirrors the URL the bucket serves objects from. A custom
// endpoint uses path-style addressing, matching the client configuration;
// otherwise the standard virtual-hosted form applies.
func buildS3Locator(endpoint, bucket, region, key string) string {
	if endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(endpoint, "/"), bucket, key)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key)
}
