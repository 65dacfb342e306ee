package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carbon-quiz/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SnapshotStore keeps the latest context snapshot per session in Redis so
// any instance can answer a context lookup.
// Snapshots are stored as: SET quiz:context:{sessionID} {json} EX ttl
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotStore(client *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{client: client, ttl: ttl}
}

func (s *SnapshotStore) Put(ctx context.Context, id domain.SessionIdentity, snap domain.ContextSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.client.Set(ctx, s.key(id), raw, s.ttl).Err()
}

func (s *SnapshotStore) Get(ctx context.Context, id domain.SessionIdentity) (domain.ContextSnapshot, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ContextSnapshot{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.ContextSnapshot{}, err
	}

	var wire struct {
		Screen          domain.Screen           `json:"screen"`
		CurrentQuestion *domain.QuestionContext `json:"current_question"`
		Results         json.RawMessage         `json:"results"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return domain.ContextSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	snap := domain.ContextSnapshot{Screen: wire.Screen, CurrentQuestion: wire.CurrentQuestion}
	if len(wire.Results) > 0 && string(wire.Results) != "null" {
		results, err := domain.DecodeResults(wire.Results)
		if err != nil {
			return domain.ContextSnapshot{}, err
		}
		snap.Results = &results
	}
	return snap, nil
}

func (s *SnapshotStore) Delete(ctx context.Context, id domain.SessionIdentity) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func (s *SnapshotStore) key(id domain.SessionIdentity) string {
	return "quiz:context:" + string(id)
}
