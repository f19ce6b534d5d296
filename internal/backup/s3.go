package backup

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Destination stores snapshots in an S3-compatible bucket under a key
// prefix: a dated object per snapshot, then LatestName.
type S3Destination struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Destination loads the default AWS credential chain. A non-empty
// endpoint switches to path-style addressing for MinIO and similar.
func NewS3Destination(ctx context.Context, bucket, prefix, region, endpoint string) (*S3Destination, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Destination{client: client, bucket: bucket, prefix: prefix}, nil
}

func (d *S3Destination) Name() string { return "s3://" + path.Join(d.bucket, d.prefix) }

// DatedKey is the object key of snap's dated copy.
func (d *S3Destination) DatedKey(snap *Snapshot) string {
	t := snap.Taken.UTC()
	return path.Join(d.prefix, t.Format("2006/01/02"), snap.Name())
}

func (d *S3Destination) Store(ctx context.Context, snap *Snapshot) error {
	for _, key := range []string{d.DatedKey(snap), path.Join(d.prefix, LatestName)} {
		_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(d.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(snap.Data),
			ContentType: aws.String("application/x-ndjson"),
			Metadata: map[string]string{
				"codes":  strconv.Itoa(snap.Total),
				"digest": snap.Digest,
			},
		})
		if err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
	}
	return nil
}
