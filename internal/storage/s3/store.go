// Package s3 stores chunk payloads as objects in an S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"canistream/internal/domain"
)

const (
	keyPrefix           = "videos"
	totalChunksMetaKey  = "Total-Chunks"
	contentTypeSegment  = "video/mp2t"
	contentTypeFallback = "application/octet-stream"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type ChunkStore struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

func NewClient(cfg Config) (*minio.Client, error) {
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 128,
			IdleConnTimeout:     90 * time.Second,
		},
	})
}

func NewChunkStore(client *minio.Client, bucket string, logger *slog.Logger) *ChunkStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChunkStore{client: client, bucket: bucket, logger: logger}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *ChunkStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.logger.Info("bucket created", slog.String("bucket", s.bucket))
	return nil
}

func videoPrefix(id domain.VideoID) string {
	return keyPrefix + "/" + string(id) + "/"
}

func segmentPrefix(id domain.VideoID, kind domain.ChunkKind, segmentIndex int) string {
	return fmt.Sprintf("%s%s/%d/", videoPrefix(id), kind, segmentIndex)
}

func objectKey(id domain.VideoID, kind domain.ChunkKind, segmentIndex, chunkIndex int) string {
	return fmt.Sprintf("%s%06d", segmentPrefix(id, kind, segmentIndex), chunkIndex)
}

func contentTypeFor(kind domain.ChunkKind) string {
	if kind == domain.ChunkSegment {
		return contentTypeSegment
	}
	return contentTypeFallback
}

func (s *ChunkStore) PutChunk(ctx context.Context, c domain.Chunk) error {
	if err := c.Validate(); err != nil {
		return err
	}
	key := objectKey(c.VideoID, c.Kind, c.SegmentIndex, c.ChunkIndex)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(c.Data), int64(len(c.Data)), minio.PutObjectOptions{
		ContentType:  contentTypeFor(c.Kind),
		UserMetadata: map[string]string{totalChunksMetaKey: strconv.Itoa(c.TotalChunks)},
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *ChunkStore) GetChunk(ctx context.Context, id domain.VideoID, kind domain.ChunkKind, segmentIndex, chunkIndex int) (domain.Chunk, error) {
	key := objectKey(id, kind, segmentIndex, chunkIndex)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return domain.Chunk{}, mapObjectError(key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return domain.Chunk{}, mapObjectError(key, err)
	}
	total, err := totalFromMetadata(info.UserMetadata)
	if err != nil {
		return domain.Chunk{}, fmt.Errorf("object %s: %w", key, err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return domain.Chunk{}, mapObjectError(key, err)
	}
	return domain.Chunk{
		VideoID:      id,
		Kind:         kind,
		SegmentIndex: segmentIndex,
		ChunkIndex:   chunkIndex,
		TotalChunks:  total,
		Data:         data,
	}, nil
}

// TotalChunks reads the count from the first stored chunk of the segment.
func (s *ChunkStore) TotalChunks(ctx context.Context, id domain.VideoID, kind domain.ChunkKind, segmentIndex int) (int, bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prefix := segmentPrefix(id, kind, segmentIndex)
	var first string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, MaxKeys: 1}) {
		if obj.Err != nil {
			return 0, false, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		first = obj.Key
		break
	}
	if first == "" {
		return 0, false, nil
	}
	info, err := s.client.StatObject(ctx, s.bucket, first, minio.StatObjectOptions{})
	if err != nil {
		if errors.Is(mapObjectError(first, err), domain.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	total, err := totalFromMetadata(info.UserMetadata)
	if err != nil {
		return 0, false, fmt.Errorf("object %s: %w", first, err)
	}
	return total, true, nil
}

func (s *ChunkStore) DeleteVideo(ctx context.Context, id domain.VideoID) error {
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    videoPrefix(id),
		Recursive: true,
	})
	for res := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		if res.Err != nil {
			return fmt.Errorf("remove %s: %w", res.ObjectName, res.Err)
		}
	}
	return nil
}

func mapObjectError(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
	}
	return fmt.Errorf("object %s: %w", key, err)
}

func totalFromMetadata(meta map[string]string) (int, error) {
	for k, v := range meta {
		if !strings.EqualFold(k, totalChunksMetaKey) && !strings.EqualFold(k, "X-Amz-Meta-"+totalChunksMetaKey) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid %s metadata %q", totalChunksMetaKey, v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("missing %s metadata", totalChunksMetaKey)
}
