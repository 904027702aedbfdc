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
	Max        int                     // Maximum number of requests
	Expiration time.Duration           // Time window for the rate limit
	KeyFunc    func(*fiber.Ctx) string // Function to generate the key for rate limiting
	Message    string                  // Custom error message
}

// NewRateLimiter creates a rate limiter middleware backed by in-process storage
func NewRateLimiter(config RateLimiterConfig) fiber.Handler {
	storage := memory.New(memory.Config{
		GCInterval: 10 * time.Minute,
	})

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
				"message":     config.Message,
				"retry_after": int(config.Expiration.Seconds()),
			})
		},
		Storage: storage,
	})
}

// BundleLimiter limits synchronous bundle requests per IP. Each request can
// fan out into many registry fetches.
func BundleLimiter(perMinute int) fiber.Handler {
	return NewRateLimiter(RateLimiterConfig{
		Max:        perMinute,
		Expiration: time.Minute,
		KeyFunc: func(c *fiber.Ctx) string {
			return "bundle:" + c.IP()
		},
	})
}
