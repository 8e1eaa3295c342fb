package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return &Store{RDB: rdb}
}

func TestCachePresenceRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CachePresence(ctx, "alice", true, false))

	online, busy, ok := s.GetCachedPresence(ctx, "alice")
	require.True(t, ok)
	require.True(t, online)
	require.False(t, busy)
}

func TestGetCachedPresenceMissIsNotOK(t *testing.T) {
	s := newTestStore(t)
	_, _, ok := s.GetCachedPresence(context.Background(), "nobody")
	require.False(t, ok)
}

func TestCachePresenceOverwritesPreviousSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CachePresence(ctx, "alice", true, true))
	require.NoError(t, s.CachePresence(ctx, "alice", false, false))

	online, busy, ok := s.GetCachedPresence(ctx, "alice")
	require.True(t, ok)
	require.False(t, online)
	require.False(t, busy)
}

func TestFabricEventPublishSubscribeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub := s.SubscribeFabricEvents(ctx)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err, "subscription confirmation")

	require.NoError(t, s.PublishFabricEvent(ctx, []byte(`{"type":"signedMessage"}`)))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, FabricChannel, msg.Channel)
	require.Equal(t, `{"type":"signedMessage"}`, msg.Payload)
}
