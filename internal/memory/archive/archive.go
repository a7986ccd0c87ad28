package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/DrJLabs/Forgetful-sub001/internal/models"
	"github.com/DrJLabs/Forgetful-sub001/pkg/logger"
)

// Archiver snapshots raw turn batches before extraction so a batch can be
// replayed after a prompt change or a poison-message investigation.
// Archiving is best-effort enrichment like relation writes: failures are
// logged and never block ingestion.
type Archiver interface {
	Archive(ctx context.Context, ownerID string, batch *models.TurnBatch)
}

// MinioArchiver writes one JSON object per batch under
// turnlogs/<owner>/<batch-id>.json.
type MinioArchiver struct {
	client *minio.Client
	bucket string
	log    *logger.Logger
}

// NewMinioArchiver creates an archiver writing into the given bucket.
func NewMinioArchiver(client *minio.Client, bucket string, log *logger.Logger) *MinioArchiver {
	return &MinioArchiver{client: client, bucket: bucket, log: log}
}

// Archive stores the batch snapshot. Never returns an error: the archive is
// an audit trail, not part of the ingestion contract.
func (a *MinioArchiver) Archive(ctx context.Context, ownerID string, batch *models.TurnBatch) {
	payload, err := json.Marshal(batch)
	if err != nil {
		a.log.WithError(models.ErrorInfo{Message: err.Error()}).
			Warn("failed to serialize turn batch for archiving")
		return
	}

	objectName := fmt.Sprintf("turnlogs/%s/%s.json", ownerID, batch.BatchID)
	putCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err = a.client.PutObject(putCtx, a.bucket, objectName,
		bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
			ContentType: "application/json",
		})
	if err != nil {
		a.log.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
			"bucket": a.bucket,
			"object": objectName,
		}).Warn("failed to archive turn batch")
		return
	}

	a.log.WithPayload(map[string]interface{}{
		"object": objectName,
		"bytes":  len(payload),
	}).Debug("turn batch archived")
}

// NopArchiver satisfies Archiver when archiving is disabled.
type NopArchiver struct{}

func (NopArchiver) Archive(context.Context, string, *models.TurnBatch) {}
