package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"quizastrous-server/internal/domain"
)

const snapshotKey = "quizastrous:snapshot"

// SnapshotMirror writes the latest snapshot to Redis so dashboards can read game state without a
// push connection. The key expires if the heartbeat stops.
type SnapshotMirror struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotMirror(client *redis.Client, ttl time.Duration) *SnapshotMirror {
	return &SnapshotMirror{client: client, ttl: ttl}
}

func (m *SnapshotMirror) StoreSnapshot(ctx context.Context, snapshot domain.Snapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, snapshotKey, raw, m.ttl).Err()
}

// Latest reads back the mirrored snapshot.
func (m *SnapshotMirror) Latest(ctx context.Context) (domain.Snapshot, error) {
	var snapshot domain.Snapshot
	raw, err := m.client.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		return snapshot, err
	}
	err = json.Unmarshal(raw, &snapshot)
	return snapshot, err
}
