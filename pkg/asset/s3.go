package asset

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Cache spills assets to an S3 bucket. Objects are keyed by hex content
// ID under a configurable prefix; the asset name rides along as object
// metadata.
//
// Example:
//
//	cfg, _ := config.LoadDefaultConfig(context.Background())
//	cache := asset.NewS3Cache(s3.NewFromConfig(cfg), "my-bucket", "assets/")
//	store := asset.NewStoreWithCache(cache)
type S3Cache struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Cache creates an S3-backed asset cache.
func NewS3Cache(client *s3.Client, bucket, prefix string) *S3Cache {
	return &S3Cache{client: client, bucket: bucket, prefix: prefix}
}

// Store uploads the asset unless the key already exists. Content addressing
// makes overwrites harmless, so the existence check is only an optimization.
func (c *S3Cache) Store(a *Asset) error {
	key := c.prefix + a.ID.String()

	_, err := c.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return nil
	}

	_, err = c.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(a.Bytes),
		Metadata: map[string]string{
			"asset-name":  a.Name,
			"upload-time": time.Now().UTC().Format(time.RFC3339),
		},
	})
	return err
}

// Load downloads an asset's bytes from the bucket.
func (c *S3Cache) Load(id ID) ([]byte, string, error) {
	key := c.prefix + id.String()

	out, err := c.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", ErrNotFound
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", err
	}

	name := ""
	if n, ok := out.Metadata["asset-name"]; ok {
		name = n
	}
	return data, name, nil
}

// Cleanup removes cached objects older than maxAge.
func (c *S3Cache) Cleanup(maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)

	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(c.prefix),
	})

	var toDelete []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			return err
		}
		for _, obj := range page.Contents {
			if obj.LastModified != nil && obj.LastModified.Before(cutoff) && obj.Key != nil {
				toDelete = append(toDelete, *obj.Key)
			}
		}
	}

	for _, key := range toDelete {
		c.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
	}
	return nil
}
