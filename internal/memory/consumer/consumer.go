package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	kafkadb "github.com/DrJLabs/Forgetful-sub001/internal/database/kafka"
	"github.com/DrJLabs/Forgetful-sub001/internal/identity"
	"github.com/DrJLabs/Forgetful-sub001/internal/memory/archive"
	"github.com/DrJLabs/Forgetful-sub001/internal/memory/engine"
	"github.com/DrJLabs/Forgetful-sub001/internal/models"
	"github.com/DrJLabs/Forgetful-sub001/pkg/logger"
)

// Syncer is the slice of the engine the consumer drives.
type Syncer interface {
	Sync(ctx context.Context, ownerID string, turns []models.Turn, metadata map[string]interface{}) (*models.CombinedResult, error)
}

// deadLetterSink is where poison messages go.
type deadLetterSink interface {
	Publish(ctx context.Context, key, value []byte, reason string) error
	Close() error
}

// TurnConsumer is the asynchronous ingestion path: upstream chat services
// publish TurnBatch JSON to the ingestion topic and this consumer feeds each
// batch through the same pipeline the synchronous API uses. Offsets are
// committed only after a batch was handled, so a crash replays rather than
// drops batches; undecodable messages go to the dead-letter topic instead of
// blocking the partition.
type TurnConsumer struct {
	reader     *kafka.Reader
	deadLetter deadLetterSink
	engine     Syncer
	resolver   *identity.Resolver
	archiver   archive.Archiver
	log        *logger.Logger
}

// NewTurnConsumer wires a consumer on the client's ingestion reader.
func NewTurnConsumer(client *kafkadb.KafkaClient, eng Syncer, resolver *identity.Resolver, archiver archive.Archiver, log *logger.Logger) *TurnConsumer {
	if archiver == nil {
		archiver = archive.NopArchiver{}
	}
	return &TurnConsumer{
		reader:     client.Reader,
		deadLetter: kafkadb.NewDeadLetterPublisher(client),
		engine:     eng,
		resolver:   resolver,
		archiver:   archiver,
		log:        log,
	}
}

// Start consumes until the context is cancelled. It runs in its own
// goroutine; Close stops the underlying reader.
func (c *TurnConsumer) Start(ctx context.Context) {
	go func() {
		c.log.Info("Starting turn batch consumer...")
		for {
			select {
			case <-ctx.Done():
				c.log.Info("Stopping turn batch consumer...")
				return
			default:
				msg, err := c.reader.FetchMessage(ctx)
				if err != nil {
					if ctx.Err() == nil {
						c.log.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error fetching message from Kafka")
					}
					continue
				}

				if err := c.handle(ctx, msg); err != nil {
					c.log.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
						"topic":     msg.Topic,
						"partition": msg.Partition,
						"offset":    msg.Offset,
					}).Error("Error handling turn batch")
				}

				if err := c.reader.CommitMessages(ctx, msg); err != nil {
					c.log.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to commit Kafka message")
				}
			}
		}
	}()
}

// handle processes one message. A decode failure is unrecoverable for the
// message and routes it to the dead-letter topic; engine errors are returned
// so the caller logs them, but the offset is committed either way — replaying
// a batch the engine already half-applied is safe because Add decisions
// dedupe on exact content and Update/Delete are idempotent per fact id.
func (c *TurnConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var batch models.TurnBatch
	if err := json.Unmarshal(msg.Value, &batch); err != nil {
		c.log.WithPayload(map[string]interface{}{
			"offset": msg.Offset,
		}).Warn("Undecodable turn batch, routing to dead letter topic")
		if dlErr := c.deadLetter.Publish(ctx, msg.Key, msg.Value, fmt.Sprintf("unmarshal failed: %v", err)); dlErr != nil {
			return fmt.Errorf("dead letter publish failed: %w", dlErr)
		}
		return nil
	}
	if len(batch.Turns) == 0 {
		return nil
	}

	ownerID := c.resolver.Resolve(identity.SessionDescriptor{
		ClientName:   batch.Client,
		SessionToken: batch.SessionToken,
		OwnerID:      batch.OwnerID,
	})
	log := c.log.WithPayload(map[string]interface{}{
		"batch_id": batch.BatchID,
		"owner_id": ownerID,
	})

	c.archiver.Archive(ctx, ownerID, &batch)

	result, err := c.engine.Sync(ctx, ownerID, batch.Turns, batch.Metadata)
	if err != nil {
		if errors.Is(err, engine.ErrWhollyUnreachable) {
			// Nothing was written; surface the error and let the retry come
			// from a replayed batch or an operator replay of the archive.
			return fmt.Errorf("batch %s failed before any store write: %w", batch.BatchID, err)
		}
		return fmt.Errorf("batch %s failed: %w", batch.BatchID, err)
	}

	if result.Degraded() {
		log.WithPayload(map[string]interface{}{
			"changes": len(result.Facts),
			"errors":  len(result.Errors),
		}).Warn("Turn batch applied with degraded result")
	} else {
		log.WithPayload(map[string]interface{}{
			"changes": len(result.Facts),
		}).Info("Turn batch applied")
	}
	return nil
}

// Close stops the reader and the dead-letter writer.
func (c *TurnConsumer) Close() error {
	if err := c.deadLetter.Close(); err != nil {
		c.log.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to close dead letter publisher")
	}
	return c.reader.Close()
}
