package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/keeperdata/keeperdata/internal/kderrors"
)

// S3Config holds configuration for the S3 storage backend, grounded on
// the teacher's lode.S3Config.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers.
	Endpoint string
	// UsePathStyle forces path-style addressing.
	UsePathStyle bool
}

// Validate checks required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("blobstore: S3 bucket is required")
	}
	return nil
}

// S3Store is an S3-backed BlobStore implementation.
type S3Store struct {
	client *s3.Client
	presign *s3.PresignClient
	bucket string
	prefix string
}

// NewS3Store creates an S3-backed BlobStore using the AWS SDK default
// credential chain (env vars, shared config, IAM role) — adapted
// directly from the teacher's NewLodeS3Client.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blobstore: failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = &endpoint })
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		prefix:  NormalizePrefix(cfg.Prefix),
	}, nil
}

func (s *S3Store) fullKey(key string) string {
	return JoinKey(s.prefix, key)
}

func (s *S3Store) List(ctx context.Context, prefix string, pageSize int, continuationToken string) (ListPage, error) {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	in := &s3.ListObjectsV2Input{
		Bucket:  &s.bucket,
		Prefix:  awsStr(s.fullKey(prefix)),
		MaxKeys: awsI32(int32(pageSize)),
	}
	if continuationToken != "" {
		in.ContinuationToken = &continuationToken
	}

	out, err := s.client.ListObjectsV2(ctx, in)
	if err != nil {
		return ListPage{}, classify(err, "list", prefix)
	}

	items := make([]ObjectInfo, 0, len(out.Contents))
	for _, obj := range out.Contents {
		info := ObjectInfo{Key: derefStr(obj.Key), Size: derefI64(obj.Size), ETag: derefStr(obj.ETag)}
		if obj.LastModified != nil {
			info.LastModified = *obj.LastModified
		}
		items = append(items, info)
	}

	page := ListPage{Items: items, IsTruncated: derefBool(out.IsTruncated)}
	if out.NextContinuationToken != nil {
		page.NextToken = *out.NextContinuationToken
	}
	return page, nil
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Head(ctx, key)
	if err != nil {
		if errors.Is(err, kderrors.ErrStorageNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *S3Store) Head(ctx context.Context, key string) (Metadata, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: awsStr(s.fullKey(key))})
	if err != nil {
		return Metadata{}, classify(err, "head", key)
	}
	md := Metadata{
		Size:         derefI64(out.ContentLength),
		ETag:         derefStr(out.ETag),
		ContentType:  derefStr(out.ContentType),
		UserMetadata: out.Metadata,
	}
	if out.LastModified != nil {
		md.LastModified = *out.LastModified
	}
	return md, nil
}

func (s *S3Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: awsStr(s.fullKey(key))})
	if err != nil {
		return nil, classify(err, "download", key)
	}
	return out.Body, nil
}

func (s *S3Store) Upload(ctx context.Context, key string, r io.Reader, contentType string, userMetadata map[string]string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         awsStr(s.fullKey(key)),
		Body:        r,
		ContentType: awsStrOrNil(contentType),
		Metadata:    userMetadata,
	})
	return classify(err, "upload", key)
}

// s3Writer buffers a multipart upload in memory and commits on Close.
// The AWS SDK's manager.Uploader would stream true multipart chunks;
// buffering here keeps the BlobStore contract (single PutObject call on
// Close) identical between backends without adding another dependency
// beyond what the teacher's go.mod already carries.
type s3Writer struct {
	store        *S3Store
	ctx          context.Context
	key          string
	contentType  string
	userMetadata map[string]string
	buf          []byte
}

func (w *s3Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *s3Writer) Close() error {
	return w.store.Upload(w.ctx, w.key, bytesReader(w.buf), w.contentType, w.userMetadata)
}

func (s *S3Store) OpenWrite(ctx context.Context, key string, contentType string, userMetadata map[string]string) (io.WriteCloser, error) {
	return &s3Writer{store: s, ctx: ctx, key: key, contentType: contentType, userMetadata: userMetadata}, nil
}

func (s *S3Store) SetMetadata(ctx context.Context, key string, userMetadata map[string]string) error {
	head, err := s.Head(ctx, key)
	if err != nil {
		return err
	}
	_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            &s.bucket,
		Key:               awsStr(s.fullKey(key)),
		CopySource:        awsStr(s.bucket + "/" + s.fullKey(key)),
		Metadata:          userMetadata,
		MetadataDirective: types.MetadataDirectiveReplace,
		ContentType:       awsStrOrNil(head.ContentType),
	})
	return classify(err, "set_metadata", key)
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: awsStr(s.fullKey(key))})
	return classify(err, "delete", key)
}

func (s *S3Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: awsStr(s.fullKey(key))}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", classify(err, "presign", key)
	}
	return req.URL, nil
}

var _ BlobStore = (*S3Store)(nil)
