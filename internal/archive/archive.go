// Package archive stores run transcripts and exported documents in an
// S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrNotFound = errors.New("archive object not found")

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Archive struct {
	client *minio.Client
	bucket string
}

// New connects to the object store and creates the bucket when missing.
func New(ctx context.Context, cfg Config) (*Archive, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("archive endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &Archive{client: client, bucket: cfg.Bucket}, nil
}

// TranscriptKey is the object name of a run's result stream.
func TranscriptKey(runID string) string {
	return path.Join("runs", safeSegment(runID)+".ndjson")
}

// ExportKey is the object name of an exported document.
func ExportKey(sessionID, filename string) string {
	return path.Join("exports", safeSegment(sessionID), safeSegment(filename))
}

func safeSegment(s string) string {
	s = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
	if s == "" {
		return "_"
	}
	return s
}

func (a *Archive) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (a *Archive) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// PutTranscript implements analysis.TranscriptArchive.
func (a *Archive) PutTranscript(ctx context.Context, runID string, transcript []byte) error {
	return a.Put(ctx, TranscriptKey(runID), transcript, "application/x-ndjson")
}

// Transcript returns the stored result stream of a run.
func (a *Archive) Transcript(ctx context.Context, runID string) ([]byte, error) {
	return a.Get(ctx, TranscriptKey(runID))
}

// PutExport stores an exported file and returns its object name.
func (a *Archive) PutExport(ctx context.Context, sessionID, filename, contentType string, data []byte) (string, error) {
	key := ExportKey(sessionID, filename)
	if err := a.Put(ctx, key, data, contentType); err != nil {
		return "", err
	}
	return key, nil
}
