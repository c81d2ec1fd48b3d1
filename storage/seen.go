package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenStore remembers listing URLs harvested by earlier runs so a later run
// can skip them.
type SeenStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewSeenStore(client *redis.Client, prefix string, ttl time.Duration) *SeenStore {
	if prefix == "" {
		prefix = "sold-listings:seen"
	}
	if ttl == 0 {
		ttl = 24 * time.Hour * 90
	}
	return &SeenStore{client: client, prefix: prefix, ttl: ttl}
}

// ConnectRedis opens a client and checks it answers.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// FilterUnseen returns the urls not marked by an earlier run, in input order.
func (s *SeenStore) FilterUnseen(ctx context.Context, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(urls))
	for i, u := range urls {
		cmds[i] = pipe.Exists(ctx, s.key(u))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis exists: %w", err)
	}

	out := make([]string, 0, len(urls))
	for i, u := range urls {
		if cmds[i].Val() == 0 {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *SeenStore) MarkSeen(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	now := time.Now().Unix()
	pipe := s.client.Pipeline()
	for _, u := range urls {
		pipe.Set(ctx, s.key(u), now, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *SeenStore) key(url string) string {
	h := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%s:%s", s.prefix, hex.EncodeToString(h[:16]))
}
