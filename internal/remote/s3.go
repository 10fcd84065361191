package remote

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

// S3Options configures an S3Remote.
type S3Options struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint selects an S3-compatible service (MinIO, R2, ...) and
	// switches to path-style addressing.
	Endpoint string

	// Static credentials; when empty the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Remote stores the transfer unit in an S3 bucket. Folders are key
// prefixes, so folder IDs are slash-joined key paths.
type S3Remote struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	logger   syncbot.Logger
}

var _ syncbot.Remote = (*S3Remote)(nil)

// NewS3Remote loads AWS configuration and creates the client.
func NewS3Remote(ctx context.Context, opts S3Options, logger syncbot.Logger) (*S3Remote, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 remote requires s3_bucket to be set")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
	})

	return &S3Remote{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   opts.Bucket,
		prefix:   strings.Trim(opts.Prefix, "/"),
		logger:   logger,
	}, nil
}

func (r *S3Remote) Name() string { return "s3" }

// EnsureAuthenticated checks that the bucket is reachable with the configured credentials.
func (r *S3Remote) EnsureAuthenticated(ctx context.Context) error {
	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(r.bucket)})
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", r.bucket, err)
	}
	return nil
}

// FindOrCreateFolder returns the key prefix for name. Prefixes need no creation.
func (r *S3Remote) FindOrCreateFolder(_ context.Context, name string) (string, error) {
	return path.Join(r.prefix, name), nil
}

func (r *S3Remote) ResolveFolderPath(_ context.Context, rootID, relativePath string) (string, error) {
	return path.Join(append([]string{rootID}, splitFolderPath(relativePath)...)...), nil
}

// UploadFile puts localPath at <parentID>/<basename>, overwriting any
// existing object. The object key is returned as the ID.
func (r *S3Remote) UploadFile(ctx context.Context, localPath, parentID string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	name := filepath.Base(localPath)
	key := path.Join(parentID, name)
	_, err = r.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(mimeTypeFor(name)),
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s to s3://%s/%s: %w", name, r.bucket, key, err)
	}

	r.logger.Info("file uploaded", "bucket", r.bucket, "key", key)
	return key, nil
}
