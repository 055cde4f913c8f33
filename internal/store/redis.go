package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"bonvoyage/internal/domain"
)

var ErrNotFound = errors.New("not found")

// RedisStore keeps partial results, request parameters and final results in
// Redis. Every key expires after ttl; nothing is deleted explicitly.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisStore(addr, password string, db int, ttl time.Duration, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "redis_store"),
	}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) key(k string) string {
	return keyPrefix + k
}

// Append adds one provider entry. The entry and the provider name are written
// in a single transaction so a concurrent Replied never sees one without the other.
func (s *RedisStore) Append(ctx context.Context, requestID string, entry domain.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}

	start := time.Now()
	partial, replied := s.key(keyPartial(requestID)), s.key(keyReplied(requestID))
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, partial, data)
		pipe.SAdd(ctx, replied, entry.Provider)
		pipe.Expire(ctx, partial, s.ttl)
		pipe.Expire(ctx, replied, s.ttl)
		return nil
	})
	if err != nil {
		s.logger.Error("append failed", "request_id", requestID, "provider", entry.Provider, "error", err)
		return fmt.Errorf("append partial result: %w", err)
	}
	s.logger.Debug("partial result appended",
		"request_id", requestID,
		"provider", entry.Provider,
		"status", entry.Status,
		"size_bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (s *RedisStore) ReadAll(ctx context.Context, requestID string) ([]domain.Entry, error) {
	members, err := s.client.LRange(ctx, s.key(keyPartial(requestID)), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read partial results: %w", err)
	}

	entries := make([]domain.Entry, 0, len(members))
	for _, m := range members {
		var e domain.Entry
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			s.logger.Warn("skipping undecodable entry", "request_id", requestID, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *RedisStore) Replied(ctx context.Context, requestID string) (int, error) {
	n, err := s.client.SCard(ctx, s.key(keyReplied(requestID))).Result()
	if err != nil {
		return 0, fmt.Errorf("count replies: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) PublishFinal(ctx context.Context, requestID string, journeys []domain.Journey) error {
	if journeys == nil {
		journeys = []domain.Journey{}
	}
	data, err := json.Marshal(journeys)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	compressed, err := gzipCompress(data)
	if err != nil {
		return fmt.Errorf("compress: %w", err)
	}

	if err := s.client.Set(ctx, s.key(keyFinal(requestID)), compressed, s.ttl).Err(); err != nil {
		s.logger.Error("publish final failed", "request_id", requestID, "error", err)
		return fmt.Errorf("publish final result: %w", err)
	}
	s.logger.Debug("final result stored",
		"request_id", requestID,
		"journeys", len(journeys),
		"original_size", len(data),
		"compressed_size", len(compressed),
	)
	return nil
}

func (s *RedisStore) ReadFinal(ctx context.Context, requestID string) ([]domain.Journey, error) {
	data, err := s.client.Get(ctx, s.key(keyFinal(requestID))).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read final result: %w", err)
	}

	raw, err := gzipDecompress(data)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	var journeys []domain.Journey
	if err := json.Unmarshal(raw, &journeys); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	return journeys, nil
}

func (s *RedisStore) SaveRequestContext(ctx context.Context, rc domain.RequestContext) error {
	data, err := json.Marshal(rc)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	if err := s.client.Set(ctx, s.key(keyParams(rc.RequestID)), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save request context: %w", err)
	}
	return nil
}

func (s *RedisStore) GetRequestContext(ctx context.Context, requestID string) (domain.RequestContext, error) {
	var rc domain.RequestContext
	data, err := s.client.Get(ctx, s.key(keyParams(requestID))).Bytes()
	if errors.Is(err, redis.Nil) {
		return rc, ErrNotFound
	}
	if err != nil {
		return rc, fmt.Errorf("read request context: %w", err)
	}
	if err := json.Unmarshal(data, &rc); err != nil {
		return rc, fmt.Errorf("json unmarshal: %w", err)
	}
	return rc, nil
}
