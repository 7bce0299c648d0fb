package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// digestMetaKey is the user metadata key carrying the local md5.
const digestMetaKey = "Md5"

// Replicator copies verified mirror files into a bucket.
type Replicator struct {
	client Client
	bucket string
	region string
	prefix string
	logger *zap.Logger
}

// NewReplicator creates a Replicator writing to cfg.Bucket under cfg.Prefix.
func NewReplicator(client Client, cfg Config, logger *zap.Logger) *Replicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replicator{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (r *Replicator) EnsureBucket(ctx context.Context) error {
	exists, err := r.client.BucketExists(ctx, r.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", r.bucket, err)
	}
	if exists {
		return nil
	}
	if err := r.client.MakeBucket(ctx, r.bucket, minio.MakeBucketOptions{Region: r.region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", r.bucket, err)
	}
	r.logger.Info("Created bucket", zap.String("bucket", r.bucket))
	return nil
}

// ObjectName returns the object name for a mirror key.
func (r *Replicator) ObjectName(key string) string {
	if r.prefix == "" {
		return key
	}
	return path.Join(r.prefix, key)
}

// Replicate uploads the file at localPath as key unless the bucket already
// holds an object with the same digest.
func (r *Replicator) Replicate(ctx context.Context, localPath, key, digest string) error {
	name := r.ObjectName(key)

	if info, err := r.client.StatObject(ctx, r.bucket, name, minio.StatObjectOptions{}); err == nil && sameDigest(info, digest) {
		r.logger.Debug("Replica up to date", zap.String("object", name))
		return nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	_, err = r.client.PutObject(ctx, r.bucket, name, f, st.Size(), minio.PutObjectOptions{
		ContentType:  "application/octet-stream",
		UserMetadata: map[string]string{digestMetaKey: digest},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}

	r.logger.Info("Replicated file", zap.String("object", name), zap.Int64("size", st.Size()))
	return nil
}

func sameDigest(info minio.ObjectInfo, digest string) bool {
	if strings.EqualFold(strings.Trim(info.ETag, `"`), digest) {
		return true
	}
	for k, v := range info.UserMetadata {
		if strings.EqualFold(k, digestMetaKey) && strings.EqualFold(v, digest) {
			return true
		}
	}
	return false
}
