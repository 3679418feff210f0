package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"classdesk/internal/domain"
)

// RedisStore keeps the record in a per-profile Redis key and broadcasts
// every write on a pub/sub channel. The published payload is the full
// new value (empty payload means cleared), so consumers never merge.
type RedisStore struct {
	client  *redis.Client
	key     string
	channel string
	logger  *zap.Logger
}

func NewRedisStore(addr, password string, db int, profile string, logger *zap.Logger) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	key := fmt.Sprintf("classdesk:pending_delete:%s", profile)
	return &RedisStore{
		client:  rdb,
		key:     key,
		channel: key + ":events",
		logger:  logger,
	}
}

func (s *RedisStore) Load(ctx context.Context) (*domain.PendingDelete, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return decodeRecord(data)
}

func (s *RedisStore) Save(ctx context.Context, rec domain.PendingDelete) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, data).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, "").Err()
}

func (s *RedisStore) Watch(ctx context.Context) (<-chan Event, error) {
	sub := s.client.Subscribe(ctx, s.channel)
	// Force the subscription to be established before we report success.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	events := make(chan Event, 8)
	go func() {
		defer close(events)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if msg.Payload == "" {
					events <- Event{}
					continue
				}
				rec, err := decodeRecord([]byte(msg.Payload))
				if err != nil {
					s.logger.Warn("ignoring unreadable record from pub/sub", zap.Error(err))
					events <- Event{}
					continue
				}
				events <- Event{Record: rec}
			}
		}
	}()
	return events, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
