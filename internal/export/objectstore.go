package export

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const DefaultLinkTTL = 24 * time.Hour

// MinioStore keeps rendered packets in an S3-compatible bucket.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	linkTTL time.Duration
}

func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioStore{client: client, bucket: bucket, linkTTL: DefaultLinkTTL}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (m *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", m.bucket, err)
	}
	return nil
}

// Put uploads a packet under drafts/<draftID>/ and returns a presigned
// download link.
func (m *MinioStore) Put(ctx context.Context, draftID string, result *Result) (string, error) {
	key := ObjectKey(draftID, result.Filename)
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(result.Data), int64(len(result.Data)), minio.PutObjectOptions{
		ContentType: result.MimeType,
	})
	if err != nil {
		return "", fmt.Errorf("upload packet %s: %w", key, err)
	}

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	link, err := m.client.PresignedGetObject(ctx, m.bucket, key, m.linkTTL, params)
	if err != nil {
		return "", fmt.Errorf("presign packet %s: %w", key, err)
	}
	return link.String(), nil
}

func ObjectKey(draftID, filename string) string {
	return path.Join("drafts", draftID, filename)
}
