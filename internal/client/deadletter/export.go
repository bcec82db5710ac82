// Package deadletter ships operations that stopped retrying to an S3 bucket
// so they can be inspected or replayed outside the device.
package deadletter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wichigo/Motium-sub012/internal/client/models"
	"github.com/wichigo/Motium-sub012/internal/logging"
	"github.com/wichigo/Motium-sub012/internal/timex"
)

var ErrNotConfigured = errors.New("dead-letter bucket not configured")

// S3Config addresses the bucket. An empty BaseEndpoint uses AWS itself.
type S3Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Bucket       string
	Prefix       string
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// NewS3Client builds a path-style client suitable for MinIO as well as AWS.
func NewS3Client(ctx context.Context, c S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Uploader is the part of *s3.Client the exporter needs.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Source lists the failed operations to export.
type Source interface {
	FailedOperations(ctx context.Context) ([]*models.PendingOperation, error)
}

type Exporter struct {
	up     Uploader
	src    Source
	bucket string
	prefix string
	clock  timex.Clock
	log    logging.Logger
}

func NewExporter(up Uploader, src Source, bucket, prefix string, clock timex.Clock, log logging.Logger) *Exporter {
	if clock == nil {
		clock = timex.SystemClock{}
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &Exporter{up: up, src: src, bucket: bucket, prefix: prefix, clock: clock, log: log}
}

// record is one exported line.
type record struct {
	ID             string          `json:"id"`
	EntityType     string          `json:"entity_type"`
	EntityID       string          `json:"entity_id"`
	Action         string          `json:"action"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	BaseVersion    int64           `json:"base_version"`
	RetryCount     int             `json:"retry_count"`
	LastAttemptAt  time.Time       `json:"last_attempt_at,omitzero"`
	LastError      string          `json:"last_error,omitempty"`
	Frozen         bool            `json:"frozen"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// Export uploads every failed operation as one JSON-lines object and
// returns its key. Nothing is uploaded when there is nothing to export.
func (e *Exporter) Export(ctx context.Context, deviceID string) (string, int, error) {
	if e.bucket == "" {
		return "", 0, ErrNotConfigured
	}

	ops, err := e.src.FailedOperations(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("list failed operations: %w", err)
	}
	if len(ops) == 0 {
		return "", 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, op := range ops {
		if err := enc.Encode(toRecord(op)); err != nil {
			return "", 0, fmt.Errorf("encode operation %s: %w", op.ID, err)
		}
	}

	key := path.Join(e.prefix, deviceID, e.clock.Now().UTC().Format("20060102T150405.000000Z")+".jsonl")
	_, err = e.up.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", 0, fmt.Errorf("upload %s: %w", key, err)
	}

	e.log.Info(ctx, "failed operations exported", "bucket", e.bucket, "key", key, "count", len(ops))
	return key, len(ops), nil
}

func toRecord(op *models.PendingOperation) record {
	return record{
		ID:             op.ID,
		EntityType:     string(op.EntityType),
		EntityID:       op.EntityID,
		Action:         string(op.Action),
		Payload:        op.Payload,
		CreatedAt:      op.CreatedAt,
		BaseVersion:    op.BaseVersion,
		RetryCount:     op.RetryCount,
		LastAttemptAt:  op.LastAttemptAt,
		LastError:      op.LastError,
		Frozen:         op.Frozen,
		IdempotencyKey: op.IdempotencyKey(),
	}
}
