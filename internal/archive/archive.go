// Package archive copies finished day files to S3 so the cache directory
// can be pruned without losing audit history.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/dropbox-collector/internal/config"
	"github.com/ignite/dropbox-collector/internal/store"
)

// PutObjectAPI is the slice of the S3 client used by this package.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader writes per-day log and checksum files to an S3 bucket under
// date-partitioned keys: <prefix>YYYY/MM/DD/<filename>.
type Uploader struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// New creates an Uploader from archive configuration. Static credentials
// are used when configured; otherwise the default chain applies (IAM
// role on ECS).
func New(ctx context.Context, cfg config.ArchiveConfig) (*Uploader, error) {
	var awsCfg aws.Config
	var err error

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
			awsconfig.WithCredentialsProvider(creds),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for archive: %w", err)
	}

	return &Uploader{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.S3Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// key returns the S3 object key for a day file.
func (u *Uploader) key(day time.Time, name string) string {
	return u.prefix + day.UTC().Format("2006/01/02") + "/" + name
}

// UploadDay uploads the day's event log and checksum index. Files that
// do not exist are skipped: a run that appended nothing has nothing new
// to archive. Returns the keys written.
func (u *Uploader) UploadDay(ctx context.Context, layout store.Layout, day time.Time) ([]string, error) {
	var uploaded []string
	for _, path := range []string{layout.LogFile(day), layout.SumsFile(day)} {
		key, err := u.uploadFile(ctx, day, path)
		if err != nil {
			return uploaded, err
		}
		if key != "" {
			uploaded = append(uploaded, key)
		}
	}
	return uploaded, nil
}

// uploadFile puts one local file into the bucket. Returns the object
// key, or "" when the file was absent.
func (u *Uploader) uploadFile(ctx context.Context, day time.Time, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading %s for archive: %w", path, err)
	}

	key := u.key(day, filepath.Base(path))
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(path)),
	})
	if err != nil {
		return "", fmt.Errorf("S3 PutObject %s/%s: %w", u.bucket, key, err)
	}
	return key, nil
}

// contentType maps a day file to its media type: event logs are
// newline-delimited JSON, checksum indexes are plain text.
func contentType(path string) string {
	if strings.HasSuffix(path, ".log") {
		return "application/x-ndjson"
	}
	return "text/plain; charset=utf-8"
}
