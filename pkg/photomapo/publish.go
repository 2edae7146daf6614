package photomapo

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"k8s.io/klog/v2"
)

// ObjectStore is the subset of the minio client used to publish postcards.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Publisher uploads a built gallery to an S3-compatible bucket.
type Publisher struct {
	store  ObjectStore
	bucket string
	prefix string
}

// NewPublisher connects to the bucket described by s.
func NewPublisher(ctx context.Context, s S3Config) (*Publisher, error) {
	if s.Endpoint == "" || s.Bucket == "" {
		return nil, fmt.Errorf("s3 endpoint and bucket are required")
	}

	endpoint := strings.TrimPrefix(strings.TrimPrefix(s.Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(s.AccessKey, s.SecretKey, ""),
		Secure:       s.UseSSL,
		Region:       s.Region,
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}

	return newPublisher(ctx, client, s.Bucket, s.Prefix)
}

func newPublisher(ctx context.Context, store ObjectStore, bucket, prefix string) (*Publisher, error) {
	exists, err := store.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("bucket exists: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", bucket)
	}
	klog.Infof("publishing to bucket %s", bucket)
	return &Publisher{store: store, bucket: bucket, prefix: prefix}, nil
}

// Publish uploads the postcards, copied originals and index page of col.
func (p *Publisher) Publish(ctx context.Context, outDir string, col *Collection) error {
	files := []string{filepath.Join(outDir, IndexFile)}
	for _, ph := range col.Photos {
		files = append(files, ph.OutPath)
		if ph.OriginalPath != "" {
			files = append(files, ph.OriginalPath)
		}
	}

	for _, f := range files {
		rel, err := filepath.Rel(outDir, f)
		if err != nil {
			return fmt.Errorf("rel: %w", err)
		}
		if err := p.upload(ctx, f, p.objectKey(rel)); err != nil {
			return err
		}
	}
	klog.Infof("published %d files to %s", len(files), p.bucket)
	return nil
}

func (p *Publisher) upload(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(file)))
	if ct == "" {
		ct = "application/octet-stream"
	}

	info, err := p.store.PutObject(ctx, p.bucket, key, f, st.Size(), minio.PutObjectOptions{ContentType: ct})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	klog.V(1).Infof("uploaded %s (%d bytes, etag %s)", key, info.Size, info.ETag)
	return nil
}

// objectKey prefixes rel and converts it to a slash-separated key.
func (p *Publisher) objectKey(rel string) string {
	key := filepath.ToSlash(rel)
	if p.prefix == "" {
		return key
	}
	return path.Join(strings.Trim(p.prefix, "/"), key)
}
