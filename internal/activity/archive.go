package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pagebell/pagebell/internal/core"
)

const archiveBatchSize = 1000

// Archive contains the delivery-log retention activities: terminal
// notification logs older than the retention window are exported to S3
// as JSONL and pruned from Postgres.
type Archive struct {
	s3Client *s3.Client
	bucket   string
	services *core.Services
}

// NewArchive creates a new Archive activity struct.
func NewArchive(s3Client *s3.Client, bucket string, services *core.Services) *Archive {
	return &Archive{s3Client: s3Client, bucket: bucket, services: services}
}

// ArchiveResult reports one archival run.
type ArchiveResult struct {
	Archived int
	Key      string
}

// ArchiveNotificationLogs exports one batch of expired logs and
// deletes the exported rows. Runs until the batch comes back empty.
func (a *Archive) ArchiveNotificationLogs(ctx context.Context, retentionDays int) (*ArchiveResult, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	total := 0
	var lastKey string
	for {
		logs, err := a.services.Notifications.ListForArchive(ctx, cutoff, archiveBatchSize)
		if err != nil {
			return nil, err
		}
		if len(logs) == 0 {
			break
		}

		var buf bytes.Buffer
		ids := make([]string, 0, len(logs))
		enc := json.NewEncoder(&buf)
		for i := range logs {
			if err := enc.Encode(&logs[i]); err != nil {
				return nil, fmt.Errorf("encode log %s: %w", logs[i].ID, err)
			}
			ids = append(ids, logs[i].ID)
		}

		key := fmt.Sprintf("notification-logs/%s/%s.jsonl",
			time.Now().UTC().Format("2006/01/02"), logs[0].ID)
		_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(buf.Bytes()),
			ContentType: aws.String("application/x-ndjson"),
		})
		if err != nil {
			return nil, fmt.Errorf("upload archive %s: %w", key, err)
		}

		// Prune only after the upload landed.
		if err := a.services.Notifications.DeleteBatch(ctx, ids); err != nil {
			return nil, err
		}
		total += len(ids)
		lastKey = key
	}

	return &ArchiveResult{Archived: total, Key: lastKey}, nil
}

// ArchiveWebhookDeliveries exports expired ingest audit rows and
// deletes the exported rows, batch by batch.
func (a *Archive) ArchiveWebhookDeliveries(ctx context.Context, retentionDays int) (*ArchiveResult, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	total := 0
	var lastKey string
	for {
		deliveries, err := a.services.Alerts.ListDeliveriesForArchive(ctx, cutoff, archiveBatchSize)
		if err != nil {
			return nil, err
		}
		if len(deliveries) == 0 {
			break
		}

		var buf bytes.Buffer
		ids := make([]string, 0, len(deliveries))
		enc := json.NewEncoder(&buf)
		for i := range deliveries {
			if err := enc.Encode(&deliveries[i]); err != nil {
				return nil, fmt.Errorf("encode delivery %s: %w", deliveries[i].ID, err)
			}
			ids = append(ids, deliveries[i].ID)
		}

		key := fmt.Sprintf("webhook-deliveries/%s/%s.jsonl",
			time.Now().UTC().Format("2006/01/02"), deliveries[0].ID)
		_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(buf.Bytes()),
			ContentType: aws.String("application/x-ndjson"),
		})
		if err != nil {
			return nil, fmt.Errorf("upload archive %s: %w", key, err)
		}

		if err := a.services.Alerts.DeleteDeliveries(ctx, ids); err != nil {
			return nil, err
		}
		total += len(ids)
		lastKey = key
	}

	return &ArchiveResult{Archived: total, Key: lastKey}, nil
}
