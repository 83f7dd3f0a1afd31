package export

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"backend-squadrun/internal/route"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the part of the S3 client the exporter needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Exporter archives finalized routes as GPX objects.
type S3Exporter struct {
	client ObjectPutter
	bucket string
	prefix string
}

func NewS3Exporter(ctx context.Context, region, bucket, prefix string) (*S3Exporter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3ExporterWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func NewS3ExporterWithClient(client ObjectPutter, bucket, prefix string) *S3Exporter {
	return &S3Exporter{client: client, bucket: bucket, prefix: prefix}
}

func (e *S3Exporter) Name() string { return "s3-gpx" }

func (e *S3Exporter) Export(ctx context.Context, f route.Finalized) (string, error) {
	var buf bytes.Buffer
	if err := WriteGPX(&buf, f); err != nil {
		return "", fmt.Errorf("encode gpx: %w", err)
	}

	key := e.key(f.Route)
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(e.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentType:   aws.String("application/gpx+xml"),
		ContentLength: aws.Int64(int64(buf.Len())),
		Metadata: map[string]string{
			"session-id": f.Route.SessionID,
			"user-id":    f.Route.UserID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return "s3://" + e.bucket + "/" + key, nil
}

func (e *S3Exporter) key(r route.UserRoute) string {
	return path.Join(e.prefix, r.SessionID, r.UserID, r.ID+".gpx")
}
