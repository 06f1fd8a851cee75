package session

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "storefront:session:"

// RedisStorage keeps one browser session as a Redis hash so that every
// gateway replica sees the same record. Writes are announced on a pub/sub
// channel tagged with the writing handle's origin.
type RedisStorage struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	origin string
	logger *log.Logger
}

type changeEnvelope struct {
	Origin string `json:"origin"`
	Change
}

// NewRedisStorage returns a handle on the browser session sid. Each handle has
// its own origin, so a handle never sees its own change events.
func NewRedisStorage(client *redis.Client, sid string, ttl time.Duration, logger *log.Logger) *RedisStorage {
	if logger == nil {
		logger = log.Default()
	}
	return &RedisStorage{
		client: client,
		key:    sessionKeyPrefix + sid,
		ttl:    ttl,
		origin: uuid.NewString(),
		logger: logger,
	}
}

func (s *RedisStorage) channel() string {
	return s.key + ":events"
}

func (s *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.HGet(ctx, s.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStorage) SetAll(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	pairs := make([]interface{}, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, k, v)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key, pairs...)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for k := range values {
		s.publish(ctx, Change{Key: k})
	}
	return nil
}

func (s *RedisStorage) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return err
	}
	s.publish(ctx, Change{Cleared: true})
	return nil
}

// Touch extends the idle expiry of the session hash.
func (s *RedisStorage) Touch(ctx context.Context) error {
	if s.ttl <= 0 {
		return nil
	}
	return s.client.Expire(ctx, s.key, s.ttl).Err()
}

// Watch subscribes to changes made through other handles on this session.
func (s *RedisStorage) Watch(ctx context.Context, fn func(Change)) (func(), error) {
	sub := s.client.Subscribe(ctx, s.channel())
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	ch := sub.Channel()
	go func() {
		for msg := range ch {
			var env changeEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				s.logger.Printf("WARN: session change event: %v", err)
				continue
			}
			if env.Origin == s.origin {
				continue
			}
			fn(env.Change)
		}
	}()

	return func() { _ = sub.Close() }, nil
}

func (s *RedisStorage) publish(ctx context.Context, c Change) {
	payload, err := json.Marshal(changeEnvelope{Origin: s.origin, Change: c})
	if err != nil {
		return
	}
	if err := s.client.Publish(ctx, s.channel(), payload).Err(); err != nil {
		s.logger.Printf("WARN: publish session change: %v", err)
	}
}
