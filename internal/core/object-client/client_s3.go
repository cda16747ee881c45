package objectclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	cfg "github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
)

type S3Client struct {
	client *s3.Client
	region string
	bucket string
}

func NewS3Client(ctx context.Context, c *cfg.Config) (*S3Client, error) {
	if c.AwsRegion == "" {
		return nil, fmt.Errorf("%w: AWS_REGION not set", core.ErrInvalidConfiguration)
	}
	if c.BucketName == "" {
		return nil, fmt.Errorf("%w: BUCKET_NAME not set", core.ErrInvalidConfiguration)
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(c.AwsRegion)}
	// without static keys the default chain (env, shared config, IAM role) applies
	if c.AwsAccessKey != "" && c.AwsSecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AwsAccessKey, c.AwsSecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	logrus.WithFields(logrus.Fields{"bucket": c.BucketName, "region": c.AwsRegion}).Info("s3 object storage configured")

	return &S3Client{
		client: s3.NewFromConfig(awsCfg),
		region: c.AwsRegion,
		bucket: c.BucketName,
	}, nil
}

func (c *S3Client) objectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.bucket, c.region, key)
}

// parseS3URL splits a virtual-hosted style URL produced by objectURL.
func parseS3URL(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("parse s3 location: %w", err)
	}
	host, _, found := strings.Cut(u.Host, ".s3.")
	key = strings.TrimPrefix(u.Path, "/")
	if !found || host == "" || key == "" {
		return "", "", fmt.Errorf("not an s3 object url: %q", location)
	}
	return host, key, nil
}

// UploadFile uploads a file to S3 and returns its URL.
func (c *S3Client) UploadFile(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	uploader := manager.NewUploader(c.client)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}

	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if _, err := uploader.Upload(ctxUpload, input); err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return c.objectURL(key), nil
}

func (c *S3Client) DeleteFile(ctx context.Context, location string) error {
	bucket, key, err := parseS3URL(location)
	if err != nil {
		return err
	}

	ctxDel, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err = c.client.DeleteObject(ctxDel, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}

func (c *S3Client) GetFile(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := parseS3URL(location)
	if err != nil {
		return nil, err
	}

	ctxGet, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := c.client.GetObject(ctxGet, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

var _ core.ObjectClient = (*S3Client)(nil)
