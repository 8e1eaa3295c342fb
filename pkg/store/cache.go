package store

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// FabricChannel is the Redis pub/sub channel the Realtime Fabric uses to
// fan an event out to sockets held by other server instances.
const FabricChannel = "signal-core:fabric"

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	opt.TLSConfig = &tls.Config{InsecureSkipVerify: false}
	opt.PoolSize = 100
	opt.MinIdleConns = 10
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.PoolTimeout = 4 * time.Second
	return redis.NewClient(opt), nil
}

func presenceKey(userID string) string {
	return fmt.Sprintf("presence:%s", userID)
}

// CachePresence stashes a short-lived {online,busy} snapshot for userID so
// repeated presence polls within the TTL window skip recomputation against
// the Realtime Fabric's live maps.
func (s *Store) CachePresence(ctx context.Context, userID string, online, busy bool) error {
	data, err := json.Marshal(struct {
		Online bool `json:"online"`
		Busy   bool `json:"busy"`
	}{online, busy})
	if err != nil {
		return err
	}
	return s.RDB.Set(ctx, presenceKey(userID), data, 5*time.Second).Err()
}

func (s *Store) GetCachedPresence(ctx context.Context, userID string) (online, busy bool, ok bool) {
	data, err := s.RDB.Get(ctx, presenceKey(userID)).Bytes()
	if err != nil {
		return false, false, false
	}
	var v struct {
		Online bool `json:"online"`
		Busy   bool `json:"busy"`
	}
	if json.Unmarshal(data, &v) != nil {
		return false, false, false
	}
	return v.Online, v.Busy, true
}

// PublishFabricEvent broadcasts a fan-out event to every server instance's
// Realtime Fabric over Redis pub/sub, so a user with sockets on more than
// one instance still receives it.
func (s *Store) PublishFabricEvent(ctx context.Context, payload []byte) error {
	return s.RDB.Publish(ctx, FabricChannel, payload).Err()
}

func (s *Store) SubscribeFabricEvents(ctx context.Context) *redis.PubSub {
	return s.RDB.Subscribe(ctx, FabricChannel)
}
