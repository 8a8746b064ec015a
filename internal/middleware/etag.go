package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ETagConfig configures listing response validators
type ETagConfig struct {
	// Weak marks validators as W/"..." (semantic, not byte, equality)
	Weak bool
	// SkipPaths are path prefixes that get no validator
	SkipPaths []string
	// CacheControl is sent alongside the validator when set
	CacheControl string
}

// DefaultETagConfig returns the default configuration. Listings change with
// the underlying rows, so clients must always revalidate.
func DefaultETagConfig() ETagConfig {
	return ETagConfig{
		Weak:         true,
		SkipPaths:    []string{"/health", "/metrics"},
		CacheControl: "private, no-cache",
	}
}

// ETag hashes successful GET and HEAD bodies into an ETag header and answers
// a matching If-None-Match with 304 Not Modified.
func ETag(config ...ETagConfig) fiber.Handler {
	cfg := DefaultETagConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodGet && c.Method() != fiber.MethodHead {
			return c.Next()
		}
		for _, prefix := range cfg.SkipPaths {
			if strings.HasPrefix(c.Path(), prefix) {
				return c.Next()
			}
		}

		if err := c.Next(); err != nil {
			return err
		}

		resp := c.Response()
		if resp.StatusCode() != fiber.StatusOK || len(resp.Body()) == 0 {
			return nil
		}

		etag := generateETag(resp.Body(), cfg.Weak)
		c.Set(fiber.HeaderETag, etag)
		if cfg.CacheControl != "" {
			c.Set(fiber.HeaderCacheControl, cfg.CacheControl)
		}

		if etagMatches(etag, c.Get(fiber.HeaderIfNoneMatch)) {
			c.Status(fiber.StatusNotModified)
			resp.ResetBody()
		}
		return nil
	}
}

// generateETag uses the first 16 bytes of the body's SHA-256
func generateETag(body []byte, weak bool) string {
	sum := sha256.Sum256(body)
	tag := `"` + hex.EncodeToString(sum[:16]) + `"`
	if weak {
		return "W/" + tag
	}
	return tag
}

// etagMatches applies the weak comparison of RFC 7232 to each candidate in an
// If-None-Match list, including the * wildcard.
func etagMatches(etag, ifNoneMatch string) bool {
	ifNoneMatch = strings.TrimSpace(ifNoneMatch)
	if ifNoneMatch == "" {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}

	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == want {
			return true
		}
	}
	return false
}
