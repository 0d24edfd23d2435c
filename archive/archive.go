// Package archive uploads the measurement log of a finished run to S3.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/weiihann/ddlbench/engine"
)

// ErrUploadFailed wraps every failed upload.
var ErrUploadFailed = errors.New("archive: upload failed")

// Options holds the S3 destination.
type Options struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint is an optional custom endpoint (MinIO, LocalStack).
	Endpoint     string
	UsePathStyle bool
}

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader copies log files into a bucket.
type Uploader struct {
	client     putObjectAPI
	bucket     string
	prefix     string
	maxRetries int
	backoff    time.Duration
}

// New creates an Uploader using the default AWS credential chain.
func New(ctx context.Context, opts Options) (*Uploader, error) {
	if opts.Bucket == "" {
		return nil, errors.New("archive: bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if opts.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		})
	}
	if opts.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return newUploader(s3.NewFromConfig(awsCfg, s3Opts...), opts), nil
}

func newUploader(client putObjectAPI, opts Options) *Uploader {
	return &Uploader{
		client:     client,
		bucket:     opts.Bucket,
		prefix:     opts.Prefix,
		maxRetries: 3,
		backoff:    100 * time.Millisecond,
	}
}

// Key returns the object key of a run's log: <prefix>/<engine>/<run_id>.db.
func Key(prefix string, sys engine.System, runID string) string {
	return path.Join(prefix, string(sys), runID+".db")
}

// Upload copies the file at localPath to the run's key and returns the key.
func (u *Uploader) Upload(ctx context.Context, localPath string, sys engine.System, runID string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer file.Close()

	key := Key(u.prefix, sys, runID)

	err = u.retryWithBackoff(ctx, func() error {
		// Rewind for retries.
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return err
		}

		_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(u.bucket),
			Key:         aws.String(key),
			Body:        file,
			ContentType: aws.String("application/vnd.sqlite3"),
		})

		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: s3://%s/%s: %v", ErrUploadFailed, u.bucket, key, err)
	}

	return key, nil
}

func (u *Uploader) retryWithBackoff(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= u.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		if attempt < u.maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * u.backoff
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return lastErr
}
