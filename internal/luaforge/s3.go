package luaforge

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.trai.ch/zerr"
)

// S3Client reads archives from an S3-compatible mirror (AWS, R2, MinIO).
type S3Client struct {
	Client     *s3.Client
	BucketName string
}

// NewS3Client builds a client for m. Static credentials are used when the
// mirror sets them; otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, m Mirror, verbose bool) (*S3Client, error) {
	if m.Bucket == "" {
		return nil, zerr.With(zerr.New("s3 mirror has no bucket"), "mirror", m.Name)
	}

	options := []func(*config.LoadOptions) error{
		config.WithRegion(m.Region),
	}
	if m.AccessKey != "" && m.SecretKey != "" {
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(m.AccessKey, m.SecretKey, "")))
	}
	if verbose {
		options = append(options, config.WithClientLogMode(aws.LogRetries|aws.LogRequest))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load S3 config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if m.Endpoint != "" {
			o.BaseEndpoint = aws.String(m.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Client{Client: client, BucketName: m.Bucket}, nil
}

// Download streams the object at key into w.
func (c *S3Client) Download(ctx context.Context, key string, w io.Writer) (int64, error) {
	output, err := c.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.BucketName),
		Key:    aws.String(strings.TrimPrefix(key, "/")),
	})
	if err != nil {
		return 0, err
	}
	defer output.Body.Close()

	return io.Copy(w, output.Body)
}
