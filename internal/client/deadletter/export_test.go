package deadletter

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wichigo/Motium-sub012/internal/client/models"
	"github.com/wichigo/Motium-sub012/internal/syncapi"
)

type fakeUploader struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakeUploader) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	if in.Body != nil {
		f.body, _ = io.ReadAll(in.Body)
	}
	return &s3.PutObjectOutput{}, f.err
}

type fakeSource struct {
	ops []*models.PendingOperation
	err error
}

func (f *fakeSource) FailedOperations(ctx context.Context) ([]*models.PendingOperation, error) {
	return f.ops, f.err
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var exportAt = time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

func TestExport_UploadsJSONLines(t *testing.T) {
	op1 := models.NewPendingOperation(syncapi.EntityTrip, "t1", syncapi.ActionCreate, json.RawMessage(`{"a":1}`), 0, exportAt)
	op1.Frozen = true
	op1.LastError = "VALIDATION_FAILED"
	op2 := models.NewPendingOperation(syncapi.EntityVehicle, "v1", syncapi.ActionDelete, nil, 3, exportAt)
	op2.RetryCount = 5

	up := &fakeUploader{}
	ex := NewExporter(up, &fakeSource{ops: []*models.PendingOperation{op1, op2}}, "bucket", "motium/dead", fixedClock{exportAt}, nil)

	key, n, err := ex.Export(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "motium/dead/dev-1/20250203T040506.000000Z.jsonl", key)
	assert.Equal(t, "bucket", aws.ToString(up.in.Bucket))
	assert.Equal(t, key, aws.ToString(up.in.Key))

	var recs []record
	sc := bufio.NewScanner(strings.NewReader(string(up.body)))
	for sc.Scan() {
		var r record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		recs = append(recs, r)
	}
	require.Len(t, recs, 2)
	assert.Equal(t, op1.ID, recs[0].ID)
	assert.True(t, recs[0].Frozen)
	assert.Equal(t, op1.IdempotencyKey(), recs[0].IdempotencyKey)
	assert.Equal(t, "DELETE", recs[1].Action)
	assert.Equal(t, 5, recs[1].RetryCount)
}

func TestExport_NothingToExport(t *testing.T) {
	up := &fakeUploader{}
	ex := NewExporter(up, &fakeSource{}, "bucket", "", fixedClock{exportAt}, nil)

	key, n, err := ex.Export(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Empty(t, key)
	assert.Zero(t, n)
	assert.Nil(t, up.in)
}

func TestExport_Errors(t *testing.T) {
	ex := NewExporter(&fakeUploader{}, &fakeSource{}, "", "", nil, nil)
	_, _, err := ex.Export(context.Background(), "d")
	require.ErrorIs(t, err, ErrNotConfigured)

	boom := errors.New("boom")
	ex = NewExporter(&fakeUploader{}, &fakeSource{err: boom}, "b", "", nil, nil)
	_, _, err = ex.Export(context.Background(), "d")
	require.ErrorIs(t, err, boom)

	op := models.NewPendingOperation(syncapi.EntityTrip, "t1", syncapi.ActionCreate, nil, 0, exportAt)
	ex = NewExporter(&fakeUploader{err: boom}, &fakeSource{ops: []*models.PendingOperation{op}}, "b", "", nil, nil)
	_, _, err = ex.Export(context.Background(), "d")
	require.ErrorIs(t, err, boom)
}

func TestNewS3Client_AppliesOptions(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "eu-west-3", lo.Region)
		require.NotNil(t, lo.Credentials)
		return aws.Config{Region: lo.Region}, nil
	}

	var applied s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&applied)
		}
		return s3.NewFromConfig(cfg, optFns...)
	}

	c, err := NewS3Client(context.Background(), S3Config{
		Region:       "eu-west-3",
		AccessKey:    "minio",
		SecretKey:    "minio123",
		BaseEndpoint: "http://127.0.0.1:9000",
	})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "http://127.0.0.1:9000", aws.ToString(applied.BaseEndpoint))
	assert.True(t, applied.UsePathStyle)
}

func TestNewS3Client_LoadError(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = origLoad })

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}
	_, err := NewS3Client(context.Background(), S3Config{Region: "x"})
	require.ErrorContains(t, err, "load aws config")
}
