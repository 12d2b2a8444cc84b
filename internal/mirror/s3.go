// Package mirror keeps a copy of every published archive in S3 so uploads can
// be audited or restored after the local copy expires or is lost.
//
// Objects are stored at s3://{bucket}/{prefix}/{id}.archive and deleted when
// the upload expires.
package mirror

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"

	"github.com/keithlinneman/playdrop/internal/log"
	"github.com/keithlinneman/playdrop/internal/xerrors"
)

// S3API is the subset of the S3 client the mirror uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Options struct {
	Logger log.Logger

	Bucket string
	Prefix string

	// AWS config (uses default if nil)
	AWSConfig *aws.Config

	// Client overrides the S3 client built from AWSConfig.
	Client S3API
}

type S3 struct {
	client S3API
	bucket string
	prefix string
	logger log.Logger
}

// NewS3 creates an S3 archive mirror.
func NewS3(ctx context.Context, opts Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, xerrors.New("mirror: bucket is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	client := opts.Client
	if client == nil {
		var awsCfg aws.Config
		if opts.AWSConfig != nil {
			awsCfg = *opts.AWSConfig
		} else {
			var err error
			awsCfg, err = config.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, xerrors.Wrap(err, "load AWS config")
			}
		}
		client = s3.NewFromConfig(awsCfg)
	}

	return &S3{
		client: client,
		bucket: opts.Bucket,
		prefix: strings.Trim(opts.Prefix, "/"),
		logger: opts.Logger,
	}, nil
}

// Key returns the object key for an upload id.
func (m *S3) Key(id string) string {
	if m.prefix != "" {
		return fmt.Sprintf("%s/%s.archive", m.prefix, id)
	}
	return id + ".archive"
}

// Put uploads the archive body for id. size may be <= 0 when unknown.
func (m *S3) Put(ctx context.Context, id string, body io.Reader, size int64) error {
	key := m.Key(id)
	in := &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("application/octet-stream"),
		Metadata:    map[string]string{"upload-id": id},
	}
	if size > 0 {
		in.ContentLength = aws.Int64(size)
	}

	if _, err := m.client.PutObject(ctx, in); err != nil {
		return xerrors.Wrapf(err, "put S3 object s3://%s/%s", m.bucket, key)
	}

	m.logger.Info(ctx, "archive mirrored",
		"upload_id", id,
		"bucket", m.bucket,
		"key", key,
		"size", humanize.Bytes(uint64(max(size, 0))),
	)
	return nil
}

// Remove deletes the mirrored archive for id. Deleting a missing object is
// not an error.
func (m *S3) Remove(ctx context.Context, id string) error {
	key := m.Key(id)
	if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return xerrors.Wrapf(err, "delete S3 object s3://%s/%s", m.bucket, key)
	}
	return nil
}
