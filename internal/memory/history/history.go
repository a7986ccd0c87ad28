package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/DrJLabs/Forgetful-sub001/internal/models"
)

// Recorder is the write-ahead log of fact state transitions. Record must be
// durable before the commit path acknowledges a decision as applied; entries
// are pure appends and safe to write concurrently for different fact ids.
type Recorder interface {
	Record(ctx context.Context, entry *models.HistoryEntry) error
	// ListByOwner returns the owner's entries, newest first.
	ListByOwner(ctx context.Context, ownerID string, limit int64) ([]models.HistoryEntry, error)
	// ListByFact returns one fact's entries in transition order.
	ListByFact(ctx context.Context, ownerID, factID string) ([]models.HistoryEntry, error)
}

// MongoRecorder appends history entries to a MongoDB collection.
type MongoRecorder struct {
	coll *mongo.Collection
}

// NewMongoRecorder creates a Recorder backed by the given collection.
func NewMongoRecorder(coll *mongo.Collection) *MongoRecorder {
	return &MongoRecorder{coll: coll}
}

// Record appends one entry. The id and timestamp are assigned here if the
// caller left them empty, so every stored entry is self-describing.
func (r *MongoRecorder) Record(ctx context.Context, entry *models.HistoryEntry) error {
	if entry.FactID == "" || entry.OwnerID == "" {
		return fmt.Errorf("history entry requires fact_id and owner_id")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if _, err := r.coll.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to append history entry for fact %s: %w", entry.FactID, err)
	}
	return nil
}

// ListByOwner returns the owner's entries, newest first.
func (r *MongoRecorder) ListByOwner(ctx context.Context, ownerID string, limit int64) ([]models.HistoryEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	cursor, err := r.coll.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list history for owner %s: %w", ownerID, err)
	}
	defer cursor.Close(ctx)

	var entries []models.HistoryEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode history entries: %w", err)
	}
	return entries, nil
}

// ListByFact returns one fact's entries in transition order, oldest first.
func (r *MongoRecorder) ListByFact(ctx context.Context, ownerID, factID string) ([]models.HistoryEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{"owner_id": ownerID, "fact_id": factID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list history for fact %s: %w", factID, err)
	}
	defer cursor.Close(ctx)

	var entries []models.HistoryEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode history entries: %w", err)
	}
	return entries, nil
}
