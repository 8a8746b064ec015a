package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/memory/v2"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	Max        int                     // Maximum number of requests per window
	Expiration time.Duration           // Window length
	KeyFunc    func(*fiber.Ctx) string // Defaults to the client IP
	Message    string
	Storage    fiber.Storage // Defaults to in-process memory
}

// NewRateLimiter creates a rate limiter. Without a Storage, counters live in
// process memory. A Max of zero or less disables limiting.
func NewRateLimiter(config RateLimiterConfig) fiber.Handler {
	if config.Max <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	storage := config.Storage
	if storage == nil {
		storage = memory.New(memory.Config{
			GCInterval: 10 * time.Minute,
		})
	}

	if config.KeyFunc == nil {
		config.KeyFunc = func(c *fiber.Ctx) string {
			return c.IP()
		}
	}
	if config.Message == "" {
		config.Message = fmt.Sprintf("Rate limit exceeded. Maximum %d requests per %s allowed.",
			config.Max, config.Expiration.String())
	}

	return limiter.New(limiter.Config{
		Max:          config.Max,
		Expiration:   config.Expiration,
		KeyGenerator: config.KeyFunc,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Rate limit exceeded",
				"code":        "RATE_LIMITED",
				"message":     config.Message,
				"retry_after": int(config.Expiration.Seconds()),
				"request_id":  RequestID(c),
			})
		},
		Storage: storage,
	})
}

// TableListLimiter limits listing requests per client and resource, so one
// expensive table cannot starve the others.
func TableListLimiter(max int, window time.Duration, storage fiber.Storage) fiber.Handler {
	return NewRateLimiter(RateLimiterConfig{
		Max:        max,
		Expiration: window,
		Storage:    storage,
		KeyFunc: func(c *fiber.Ctx) string {
			return "tables:" + c.Params("resource") + ":" + c.IP()
		},
	})
}
