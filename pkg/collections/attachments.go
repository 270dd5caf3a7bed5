// Package collections implements the auxiliary per-intent collections:
// attachments, costs, retry policy, failures and webhook subscriptions
// (spec.md §4.8).
package collections

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/openintent-ai/openintent/pkg/model"
	"github.com/openintent-ai/openintent/pkg/store"
)

// BlobStore abstracts the object store attachments are uploaded to;
// S3Store is the concrete production backend, grounded in the pack's
// aws-sdk-go-v2 usage.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
}

// S3Store uploads attachment bytes to a single bucket, keyed by
// "<intent_id>/<attachment_id>/<filename>".
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds an S3Store from an already-configured client.
func NewS3Store(client *s3.Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// Put uploads data and returns its s3:// URL.
func (b *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("collections: s3 put %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", b.bucket, key), nil
}

// FileBlobStore is the embedded-mode BlobStore for deployments with no
// S3 bucket configured, writing each attachment under baseDir keyed the
// same way S3Store does. Grounded on the teacher's content-addressed
// artifacts.FileStore, simplified here to a direct key path since
// attachment ids (not content hashes) already dedupe uploads.
type FileBlobStore struct {
	baseDir string
}

// NewFileBlobStore ensures baseDir exists and returns a FileBlobStore
// rooted there.
func NewFileBlobStore(baseDir string) (*FileBlobStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("collections: create attachment dir %s: %w", baseDir, err)
	}
	return &FileBlobStore{baseDir: baseDir}, nil
}

// Put writes data to "<baseDir>/<key>", creating any intermediate
// directories, and returns a file:// URL.
func (b *FileBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	path := filepath.Join(b.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("collections: create attachment dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("collections: write attachment %s: %w", key, err)
	}
	return "file://" + path, nil
}

// AttachmentService records attachment metadata and uploads the blob.
type AttachmentService struct {
	store *store.Store
	blobs BlobStore
}

// NewAttachmentService builds an AttachmentService.
func NewAttachmentService(st *store.Store, blobs BlobStore) *AttachmentService {
	return &AttachmentService{store: st, blobs: blobs}
}

// Add uploads data to the blob store and records its metadata,
// emitting attachment_added.
func (s *AttachmentService) Add(ctx context.Context, intentID, filename, mimeType string, data []byte, actor string, now time.Time) (*model.IntentAttachment, error) {
	id := uuid.NewString()
	key := fmt.Sprintf("%s/%s/%s", intentID, id, filename)
	url, err := s.blobs.Put(ctx, key, data, mimeType)
	if err != nil {
		return nil, err
	}
	a := &model.IntentAttachment{
		ID:         id,
		IntentID:   intentID,
		Filename:   filename,
		MimeType:   mimeType,
		Size:       int64(len(data)),
		StorageURL: url,
		Metadata:   map[string]any{},
		CreatedAt:  now,
	}
	if err := s.store.AddAttachment(ctx, a); err != nil {
		return nil, fmt.Errorf("collections: add attachment: %w", err)
	}
	if err := s.store.AppendEventAuto(ctx, store.NewEvent(uuid.NewString(), intentID, model.EventAttachmentAdded, actor,
		map[string]any{"attachment_id": a.ID, "filename": filename, "size": a.Size}, now)); err != nil {
		return nil, fmt.Errorf("collections: record attachment event: %w", err)
	}
	return a, nil
}

// List returns an intent's attachment metadata.
func (s *AttachmentService) List(ctx context.Context, intentID string) ([]*model.IntentAttachment, error) {
	return s.store.ListAttachments(ctx, intentID)
}
