package redisx

import (
	"github.com/redis/go-redis/v9"
)

// New создаёт Redis-клиент для быстрой дедупликации webhook-событий.
func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}
