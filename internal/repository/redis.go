package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"careline-agent/internal/domain"
)

const redisKeyPrefix = "conv:"

// redisRecord is the JSON shape stored per identity.
type redisRecord struct {
	Identity         string         `json:"identity"`
	State            domain.State   `json:"state"`
	Meta             map[string]any `json:"meta"`
	LastUserText     string         `json:"last_user_text"`
	LastBotText      string         `json:"last_bot_text"`
	InteractionCount int            `json:"interaction_count"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// redisStore persists contexts as JSON values. Per-identity serialization is
// the caller's responsibility, so Apply is a plain read-modify-write.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func redisKey(identity string) string {
	return redisKeyPrefix + identity
}

func (s *redisStore) Get(ctx context.Context, identity string) (*domain.ConversationContext, error) {
	val, err := s.client.Get(ctx, redisKey(identity)).Result()
	if err == redis.Nil {
		return domain.NewConversationContext(identity), nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: redis get %q: %w", identity, err)
	}

	var rec redisRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("repository: redis decode %q: %w", identity, err)
	}
	return recordToContext(rec), nil
}

func (s *redisStore) Apply(ctx context.Context, identity string, patch domain.ContextPatch) (*domain.ConversationContext, error) {
	current, err := s.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	applyPatch(current, patch, time.Now().UTC())

	raw, err := json.Marshal(contextToRecord(current))
	if err != nil {
		return nil, fmt.Errorf("repository: redis encode %q: %w", identity, err)
	}
	if err := s.client.Set(ctx, redisKey(identity), raw, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("repository: redis set %q: %w", identity, err)
	}
	return current, nil
}

func (s *redisStore) ListIdle(ctx context.Context, states []domain.State, cutoff time.Time) ([]string, error) {
	var idle []string
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		val, err := s.client.Get(ctx, iter.Val()).Result()
		if err == redis.Nil {
			continue // expired between SCAN and GET
		}
		if err != nil {
			return nil, fmt.Errorf("repository: redis scan get: %w", err)
		}
		var rec redisRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			continue // skip unreadable records rather than stalling the scan
		}
		if stateIn(rec.State, states) && rec.UpdatedAt.Before(cutoff) {
			idle = append(idle, rec.Identity)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("repository: redis scan: %w", err)
	}
	return idle, nil
}

func (s *redisStore) Delete(ctx context.Context, identity string) error {
	if err := s.client.Del(ctx, redisKey(identity)).Err(); err != nil {
		return fmt.Errorf("repository: redis delete %q: %w", identity, err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

func recordToContext(rec redisRecord) *domain.ConversationContext {
	meta := rec.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	return &domain.ConversationContext{
		Identity:         rec.Identity,
		State:            rec.State,
		Meta:             meta,
		LastUserText:     rec.LastUserText,
		LastBotText:      rec.LastBotText,
		InteractionCount: rec.InteractionCount,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
}

func contextToRecord(c *domain.ConversationContext) redisRecord {
	return redisRecord{
		Identity:         c.Identity,
		State:            c.State,
		Meta:             c.Meta,
		LastUserText:     c.LastUserText,
		LastBotText:      c.LastBotText,
		InteractionCount: c.InteractionCount,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}
