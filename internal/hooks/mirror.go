package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"anysnap/internal/analysis"
	"anysnap/internal/config"
)

// DocumentStore is the mirror target: a full-overwrite put of one JSON
// document per image.
type DocumentStore interface {
	Put(ctx context.Context, key string, doc []byte) error
}

// MinioDocumentStore mirrors annotation documents into an object store
// bucket.
type MinioDocumentStore struct {
	client *minio.Client
	bucket string
}

func NewMinioDocumentStore(cfg config.MirrorConfig) (*MinioDocumentStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &MinioDocumentStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *MinioDocumentStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

func (s *MinioDocumentStore) Put(ctx context.Context, key string, doc []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(doc), int64(len(doc)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

// ImageSyncStore is the slice of image persistence the mirror hook touches.
type ImageSyncStore interface {
	MarkSynced(ctx context.Context, imageID string) error
}

// MirrorHook pushes the image's full current annotation document to the
// mirror store. Re-running it overwrites the previous document, so repeated
// triggers are harmless.
type MirrorHook struct {
	annotations analysis.AnnotationReader
	images      ImageSyncStore
	docs        DocumentStore
	log         zerolog.Logger
}

func NewMirrorHook(annotations analysis.AnnotationReader, images ImageSyncStore, docs DocumentStore, log zerolog.Logger) *MirrorHook {
	return &MirrorHook{
		annotations: annotations,
		images:      images,
		docs:        docs,
		log:         log,
	}
}

func documentKey(imageID string) string {
	return "results/" + imageID + ".json"
}

func (h *MirrorHook) Sync(ctx context.Context, imageID string) error {
	doc, err := analysis.BuildDocument(ctx, h.annotations, imageID)
	if err != nil {
		return fmt.Errorf("build document: %w", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	if err := h.docs.Put(ctx, documentKey(imageID), data); err != nil {
		return fmt.Errorf("put document: %w", err)
	}

	if err := h.images.MarkSynced(ctx, imageID); err != nil {
		h.log.Warn().Err(err).Str("image_id", imageID).Msg("mark synced failed")
	}

	h.log.Info().Str("image_id", imageID).Int("bytes", len(data)).Msg("annotations mirrored")
	return nil
}
