package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// MiniRedis is an in-process Redis server and a client connected to it.
type MiniRedis struct {
	Server *miniredis.Miniredis
	Client *redis.Client
}

// NewMiniRedis starts a server that is shut down with the test.
func NewMiniRedis(t *testing.T) *MiniRedis {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &MiniRedis{Server: srv, Client: client}
}
