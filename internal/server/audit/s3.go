package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	sc "github.com/atiera/qrlogin/internal/server/config"
	"github.com/atiera/qrlogin/internal/server/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

// S3Sink stores each event as a JSON object under
// audit/<yyyy>/<mm>/<dd>/<event id>.json.
type S3Sink struct {
	client *s3.Client
	bucket string
	now    func() time.Time
}

// NewS3Sink builds an S3 client with static credentials for the configured
// endpoint (MinIO in development).
func NewS3Sink(ctx context.Context, cfg *sc.Config) (*S3Sink, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Sink{client: client, bucket: cfg.S3Bucket, now: time.Now}, nil
}

type s3Record struct {
	ID          string         `json:"id"`
	Action      string         `json:"action"`
	SubjectType string         `json:"subject_type"`
	SubjectID   string         `json:"subject_id,omitempty"`
	ActorID     string         `json:"actor_id,omitempty"`
	Before      map[string]any `json:"before,omitempty"`
	After       map[string]any `json:"after,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ObjectKey returns the object key an event is stored under.
func ObjectKey(event models.AuditEvent) string {
	d := event.CreatedAt
	return fmt.Sprintf("audit/%04d/%02d/%02d/%s.json", d.Year(), d.Month(), d.Day(), event.ID)
}

func (s *S3Sink) Record(ctx context.Context, event models.AuditEvent) error {
	stamp(&event, s.now)

	body, err := json.Marshal(s3Record{
		ID:          event.ID,
		Action:      event.Action,
		SubjectType: event.SubjectType,
		SubjectID:   event.SubjectID,
		ActorID:     event.ActorID,
		Before:      event.Before,
		After:       event.After,
		CreatedAt:   event.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}

	_, err = putObject(s.client, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(ObjectKey(event)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put audit object: %w", err)
	}
	return nil
}
