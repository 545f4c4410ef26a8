package resilience

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis connection used by RedisStore.
type RedisOptions struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections (optional)
	TLS *tls.Config

	// ConnectTimeout is the timeout for establishing connections
	ConnectTimeout time.Duration

	// ReadTimeout is the timeout for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for write operations
	WriteTimeout time.Duration

	// Prefix namespaces the keys. Defaults to "reconpipe:checkpoint".
	Prefix string

	// TTL expires checkpoints. Zero keeps them forever.
	TTL time.Duration
}

// NewRedisClient connects to Redis and verifies the connection with PING.
func NewRedisClient(opts RedisOptions) (*redis.Client, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisStore keeps checkpoints in Redis so several workers can resume each
// other's runs. Keys:
//
//	<prefix>:<run_id>:latest
//	<prefix>:<run_id>:stage:<stage>
//	<prefix>:<run_id>:stages   (set of saved stage names)
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	owned  bool
}

// NewRedisStore dials Redis with opts.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	client, err := NewRedisClient(opts)
	if err != nil {
		return nil, err
	}
	s := NewRedisStoreFromClient(client, opts.Prefix, opts.TTL)
	s.owned = true
	return s, nil
}

// NewRedisStoreFromClient uses an existing client. Close does not close it.
func NewRedisStoreFromClient(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "reconpipe:checkpoint"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(runID string, parts ...string) string {
	k := s.prefix + ":" + runID
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// Save stores cp under the stage key and the latest key in one transaction.
func (s *RedisStore) Save(ctx context.Context, cp Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	stagesKey := s.key(cp.RunID, "stages")
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(cp.RunID, "stage", cp.Stage), data, s.ttl)
		pipe.Set(ctx, s.key(cp.RunID, "latest"), data, s.ttl)
		pipe.SAdd(ctx, stagesKey, cp.Stage)
		if s.ttl > 0 {
			pipe.Expire(ctx, stagesKey, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Load returns the latest checkpoint of runID.
func (s *RedisStore) Load(ctx context.Context, runID string) (*Checkpoint, error) {
	return s.get(ctx, s.key(runID, "latest"))
}

// LoadStage returns the checkpoint of one stage.
func (s *RedisStore) LoadStage(ctx context.Context, runID, stage string) (*Checkpoint, error) {
	return s.get(ctx, s.key(runID, "stage", stage))
}

func (s *RedisStore) get(ctx context.Context, key string) (*Checkpoint, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return decodeCheckpoint(data)
}

// Delete removes every key of runID.
func (s *RedisStore) Delete(ctx context.Context, runID string) error {
	stagesKey := s.key(runID, "stages")
	stages, err := s.client.SMembers(ctx, stagesKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list checkpoint stages: %w", err)
	}
	keys := []string{stagesKey, s.key(runID, "latest")}
	for _, st := range stages {
		keys = append(keys, s.key(runID, "stage", st))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	return nil
}

// Close closes the client if the store created it.
func (s *RedisStore) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}
