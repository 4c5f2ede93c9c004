package blob

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nicsan/crm-extract/internal/config"
	"github.com/nicsan/crm-extract/internal/resilience"
)

const (
	cacheContentType  = "text/plain; charset=utf-8"
	cacheControl      = "max-age=31536000"
	maxNearbySuggests = 10
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store implements Store on S3.
type S3Store struct {
	api           S3API
	bucket        string
	prefix        string
	cacheDisabled bool
	retry         resilience.RetryConfig
}

var _ Store = (*S3Store)(nil)

// NewS3Store creates an S3Store.
func NewS3Store(api S3API, cfg config.S3Config, retry resilience.RetryConfig) *S3Store {
	return &S3Store{
		api:           api,
		bucket:        cfg.Bucket,
		prefix:        strings.TrimSpace(cfg.Prefix),
		cacheDisabled: cfg.DisableOCRCache,
		retry:         retry,
	}
}

// LoadAWSConfig loads the shared AWS configuration. Static keys are used
// when both are set; otherwise the default credential chain applies.
func LoadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, eris.Wrap(err, "blob: load aws config")
	}
	return awsCfg, nil
}

// NewS3Client creates an S3 client. A custom endpoint (MinIO, LocalStack)
// switches to path-style addressing.
func NewS3Client(awsCfg aws.Config, endpoint string) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

// Bucket returns the default bucket.
func (s *S3Store) Bucket() string {
	return s.bucket
}

// Resolve implements Store. Each candidate key is probed with HeadObject.
func (s *S3Store) Resolve(ctx context.Context, keyOrURI string) (Location, error) {
	bucket, key := s.bucket, keyOrURI
	if b, k, ok := ParseURI(keyOrURI); ok {
		bucket, key = b, k
	}
	if bucket == "" {
		return Location{}, eris.New("blob: no bucket configured")
	}

	tried := KeyCandidates(s.prefix, key)
	if len(tried) == 0 {
		return Location{}, eris.New("blob: empty key")
	}
	log := zap.L().With(zap.String("bucket", bucket), zap.String("input", keyOrURI))
	for _, k := range tried {
		_, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*s3.HeadObjectOutput, error) {
			return s.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(k)})
		})
		if err == nil {
			log.Debug("blob: resolved key", zap.String("key", k))
			return Location{Bucket: bucket, Key: k}, nil
		}
		if ctx.Err() != nil {
			return Location{}, eris.Wrap(ctx.Err(), "blob: resolve")
		}
		log.Debug("blob: key miss", zap.String("key", k), zap.Error(err))
	}

	nf := &NotFoundError{Bucket: bucket, Tried: tried, Nearby: s.nearby(ctx, bucket, dirOf(tried[0]))}
	log.Warn("blob: document not found", zap.Strings("tried", tried))
	return Location{}, nf
}

// nearby lists a few keys in dir to help diagnose a bad document key.
func (s *S3Store) nearby(ctx context.Context, bucket, dir string) []string {
	out, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(dir),
		MaxKeys: aws.Int32(50),
	})
	if err != nil {
		return nil
	}
	var keys []string
	for _, obj := range out.Contents {
		if k := aws.ToString(obj.Key); k != "" {
			keys = append(keys, k)
		}
		if len(keys) == maxNearbySuggests {
			break
		}
	}
	return keys
}

// GetBlob implements Store.
func (s *S3Store) GetBlob(ctx context.Context, keyOrURI string) ([]byte, Location, error) {
	loc, err := s.Resolve(ctx, keyOrURI)
	if err != nil {
		return nil, Location{}, err
	}
	data, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]byte, error) {
		return s.read(ctx, loc)
	})
	if err != nil {
		return nil, Location{}, eris.Wrapf(err, "blob: get %s", loc)
	}
	return data, loc, nil
}

func (s *S3Store) read(ctx context.Context, loc Location) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(loc.Bucket), Key: aws.String(loc.Key)})
	if err != nil {
		return nil, err
	}
	if out.Body == nil {
		return nil, eris.Errorf("blob: empty body for %s", loc)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// PutBlob implements Store. The content type is sniffed from data.
func (s *S3Store) PutBlob(ctx context.Context, key string, data []byte) (Location, error) {
	loc := Location{Bucket: s.bucket, Key: JoinKey(s.prefix, key)}
	if err := validateKey(loc.Key); err != nil {
		return Location{}, err
	}
	contentType := mimetype.Detect(data).String()

	err := resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(loc.Bucket),
			Key:         aws.String(loc.Key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
		return err
	})
	if err != nil {
		return Location{}, eris.Wrapf(err, "blob: put %s", loc)
	}
	zap.L().Info("blob: stored object",
		zap.String("key", loc.Key),
		zap.Int("bytes", len(data)),
		zap.String("content_type", contentType),
	)
	return loc, nil
}

func (s *S3Store) cacheEnabled() bool {
	return s.bucket != "" && !s.cacheDisabled
}

// GetCachedText implements Store.
func (s *S3Store) GetCachedText(ctx context.Context, uploadID string) (string, bool) {
	if !s.cacheEnabled() || uploadID == "" {
		return "", false
	}
	data, err := s.read(ctx, Location{Bucket: s.bucket, Key: CacheKey(uploadID)})
	if err != nil {
		zap.L().Debug("blob: ocr cache miss", zap.String("upload_id", uploadID), zap.Error(err))
		return "", false
	}
	return string(data), true
}

// PutCachedText implements Store. It is a no-op when the cache is disabled.
func (s *S3Store) PutCachedText(ctx context.Context, uploadID, text string) error {
	if !s.cacheEnabled() || uploadID == "" {
		return nil
	}
	key := CacheKey(uploadID)
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         strings.NewReader(text),
		ContentType:  aws.String(cacheContentType),
		CacheControl: aws.String(cacheControl),
	})
	if err != nil {
		return eris.Wrapf(err, "blob: put cached text %s", key)
	}
	return nil
}

// validateKey rejects keys containing path traversal segments.
func validateKey(key string) error {
	if key == "" {
		return eris.New("blob: empty key")
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return eris.Errorf("blob: path traversal in key %q", key)
		}
	}
	return nil
}
