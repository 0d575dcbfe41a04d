package http

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control on GET responses that did not set
// their own, and answers If-None-Match with 304 using a weak body ETag.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := c.Next(); err != nil {
			return err
		}
		if c.Method() != fiber.MethodGet {
			return nil
		}

		if c.GetRespHeader(fiber.HeaderCacheControl) == "" {
			if ttl := cacheControlFor(c.Path()); ttl != "" {
				c.Set(fiber.HeaderCacheControl, ttl)
			}
		}

		body := c.Response().Body()
		if c.Response().StatusCode() != fiber.StatusOK || len(body) == 0 {
			return nil
		}
		sum := sha256.Sum256(body)
		etag := `W/"` + hex.EncodeToString(sum[:8]) + `"`
		c.Set(fiber.HeaderETag, etag)
		if c.Get(fiber.HeaderIfNoneMatch) == etag {
			c.Status(fiber.StatusNotModified)
			c.Response().ResetBody()
		}
		return nil
	}
}

func cacheControlFor(path string) string {
	switch {
	case path == "/metrics", strings.HasPrefix(path, "/v1/progress/"):
		return "no-cache"
	case path == "/v1/health" || path == "/v1/ready":
		return "public, max-age=5"
	case strings.HasPrefix(path, "/v1/runs"):
		return "public, max-age=10"
	case strings.HasPrefix(path, "/v1/"):
		return "public, max-age=30"
	}
	return ""
}
