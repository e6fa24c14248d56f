package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/puntoarena/arena-services/internal/arenasvc/models"
)

const snapshotTTL = time.Hour

// SnapshotStore keeps per-identity session resume hints in mongo. The
// collection carries a TTL index on expires_at, so entries vanish on
// their own; nothing here is authoritative over live room state.
type SnapshotStore struct {
	coll *mongo.Collection
}

func NewSnapshotStore(db *mongo.Database) *SnapshotStore {
	return &SnapshotStore{coll: db.Collection("session_snapshots")}
}

// Save upserts the hint for (room, address) with a fresh TTL.
func (s *SnapshotStore) Save(ctx context.Context, snap *models.SessionSnapshot) error {
	snap.Timestamp = time.Now()
	snap.ExpiresAt = snap.Timestamp.Add(snapshotTTL)

	filter := bson.M{"room_id": snap.RoomID, "address": snap.Address}
	update := bson.M{"$set": snap}

	_, err := s.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save session snapshot: %w", err)
	}
	return nil
}

// Find returns the newest unexpired hint for an address, or nil.
func (s *SnapshotStore) Find(ctx context.Context, address string) (*models.SessionSnapshot, error) {
	opts := options.FindOne().SetSort(bson.M{"timestamp": -1})

	snap := &models.SessionSnapshot{}
	err := s.coll.FindOne(ctx, bson.M{"address": address}, opts).Decode(snap)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find session snapshot: %w", err)
	}
	return snap, nil
}

// Delete drops all hints for a room, used once the room is expired.
func (s *SnapshotStore) Delete(ctx context.Context, roomID string) error {
	_, err := s.coll.DeleteMany(ctx, bson.M{"room_id": roomID})
	if err != nil {
		return fmt.Errorf("failed to delete session snapshots for %s: %w", roomID, err)
	}
	return nil
}
