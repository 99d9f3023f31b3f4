// Package archive exports the medicine ledger to S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/and161185/pill-monitor/internal/model"
)

// S3Config locates the bucket exports are written to.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Result describes a written export object.
type Result struct {
	Bucket  string    `json:"bucket"`
	Key     string    `json:"key"`
	Size    int64     `json:"size"`
	Entries int       `json:"entries"`
	At      time.Time `json:"exportedAt"`
}

// S3Exporter writes ledger snapshots as JSON objects. The bucket is created on first use.
type S3Exporter struct {
	client     *minio.Client
	bucketName string
	region     string
	now        func() time.Time

	initOnce sync.Once
	initErr  error
}

// NewS3Exporter validates cfg and builds the client; it does not contact the server.
func NewS3Exporter(cfg S3Config) (*S3Exporter, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Exporter{client: client, bucketName: bucket, region: region, now: time.Now}, nil
}

func (s *S3Exporter) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// Export writes entries as one JSON document keyed by export time.
func (s *S3Exporter) Export(ctx context.Context, entries []model.HistoryEntry) (Result, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return Result{}, fmt.Errorf("ensure bucket: %w", err)
	}
	at := s.now().UTC()
	body, err := encode(at, entries)
	if err != nil {
		return Result{}, err
	}
	key := objectKey(at)
	info, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return Result{}, fmt.Errorf("put %s: %w", key, err)
	}
	return Result{Bucket: s.bucketName, Key: key, Size: info.Size, Entries: len(entries), At: at}, nil
}

type document struct {
	ExportedAt time.Time            `json:"exportedAt"`
	Entries    []model.HistoryEntry `json:"entries"`
}

func encode(at time.Time, entries []model.HistoryEntry) ([]byte, error) {
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	b, err := json.Marshal(document{ExportedAt: at, Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	return b, nil
}

func objectKey(at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("history/%s/history-%s.json", at.Format("2006/01/02"), at.Format("20060102T150405Z"))
}
