package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	sc "github.com/atiera/qrlogin/internal/server/config"
	"github.com/atiera/qrlogin/internal/server/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s3TestConfig() *sc.Config {
	return &sc.Config{
		S3Region:       "us-east-1",
		S3RootUser:     "minioadmin",
		S3RootPassword: "minioadmin",
		S3BaseEndpoint: "http://127.0.0.1:9000",
		S3Bucket:       "audit",
	}
}

func stubS3(t *testing.T) {
	t.Helper()
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	origPut := putObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
		putObject = origPut
	})
}

func TestNewS3Sink_AppliesConfig(t *testing.T) {
	stubS3(t)

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "us-east-1", lo.Region)
		require.NotNil(t, lo.Credentials)
		creds, err := lo.Credentials.Retrieve(ctx)
		require.NoError(t, err)
		assert.Equal(t, "minioadmin", creds.AccessKeyID)
		return aws.Config{}, nil
	}

	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return &s3.Client{}
	}

	sink, err := NewS3Sink(context.Background(), s3TestConfig())
	require.NoError(t, err)
	assert.Equal(t, "audit", sink.bucket)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://127.0.0.1:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)
}

func TestNewS3Sink_ConfigError(t *testing.T) {
	stubS3(t)

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no creds")
	}

	_, err := NewS3Sink(context.Background(), s3TestConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no creds")
}

func TestS3Sink_Record(t *testing.T) {
	stubS3(t)

	var (
		gotKey, gotBucket, gotType string
		gotBody                    []byte
	)
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		gotBucket = aws.ToString(in.Bucket)
		gotKey = aws.ToString(in.Key)
		gotType = aws.ToString(in.ContentType)
		b, err := io.ReadAll(in.Body)
		require.NoError(t, err)
		gotBody = b
		return &s3.PutObjectOutput{}, nil
	}

	at := time.Date(2026, 3, 7, 9, 0, 0, 0, time.UTC)
	sink := &S3Sink{client: &s3.Client{}, bucket: "audit", now: func() time.Time { return at }}

	err := sink.Record(context.Background(), models.AuditEvent{
		ID:          "ev-1",
		Action:      ActionLogin,
		SubjectType: SubjectLoginSessions,
		ActorID:     "42",
		After:       map[string]any{"login_method": "qr"},
	})
	require.NoError(t, err)

	assert.Equal(t, "audit", gotBucket)
	assert.Equal(t, "audit/2026/03/07/ev-1.json", gotKey)
	assert.Equal(t, "application/json", gotType)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &rec))
	assert.Equal(t, "QR Login", rec["action"])
	assert.Equal(t, "login_sessions", rec["subject_type"])
	assert.Equal(t, "42", rec["actor_id"])
	assert.Equal(t, map[string]any{"login_method": "qr"}, rec["after"])
	assert.NotContains(t, rec, "before")
}

func TestS3Sink_RecordPutError(t *testing.T) {
	stubS3(t)

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return nil, errors.New("bucket gone")
	}

	sink := &S3Sink{client: &s3.Client{}, bucket: "audit", now: time.Now}
	err := sink.Record(context.Background(), models.AuditEvent{Action: ActionCodeRevoked})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "put audit object")
}
