// Package ratelimit provides the counter storage behind the listing rate limiter.
package ratelimit

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/memory/v2"
	"github.com/rs/zerolog/log"
)

// Storage backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// NewStorage returns limiter storage for the named backend.
//
// Backend options:
//   - "memory": in-process counters (default, single instance)
//   - "redis": counters shared by every instance through a Redis-compatible server
func NewStorage(backend, redisURL string) (fiber.Storage, error) {
	switch backend {
	case BackendMemory, "":
		log.Info().Msg("Using in-memory rate limit storage (single instance mode)")
		return memory.New(memory.Config{GCInterval: 10 * time.Minute}), nil

	case BackendRedis:
		if redisURL == "" {
			return nil, fmt.Errorf("redis_url is required for redis rate limit storage")
		}
		store, err := NewRedisStorage(redisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown rate limit storage: %s (valid options: memory, redis)", backend)
	}
}
