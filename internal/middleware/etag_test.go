package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateETag(t *testing.T) {
	body := []byte(`{"data":[{"id":1}]}`)

	t.Run("weak", func(t *testing.T) {
		etag := generateETag(body, true)
		assert.True(t, strings.HasPrefix(etag, `W/"`))
		assert.Len(t, etag, len(`W/""`)+32)
	})

	t.Run("strong", func(t *testing.T) {
		etag := generateETag(body, false)
		assert.True(t, strings.HasPrefix(etag, `"`))
		assert.Len(t, etag, len(`""`)+32)
	})

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, generateETag(body, true), generateETag(body, true))
		assert.NotEqual(t, generateETag(body, true), generateETag([]byte(`{"data":[]}`), true))
	})
}

func TestETagMatches(t *testing.T) {
	tests := []struct {
		name        string
		etag        string
		ifNoneMatch string
		want        bool
	}{
		{"exact", `"abc"`, `"abc"`, true},
		{"weak against strong", `W/"abc"`, `"abc"`, true},
		{"strong against weak", `"abc"`, `W/"abc"`, true},
		{"in list", `W/"abc"`, `"x", W/"abc" , "y"`, true},
		{"wildcard", `"abc"`, "*", true},
		{"mismatch", `"abc"`, `"abd"`, false},
		{"empty header", `"abc"`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, etagMatches(tt.etag, tt.ifNoneMatch))
		})
	}
}

func TestETag(t *testing.T) {
	app := fiber.New()
	app.Use(ETag())
	app.Get("/api/v1/tables/users", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"data": []int{1, 2}})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/broken", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusBadRequest).SendString("bad")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/tables/users", nil))
	require.NoError(t, err)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, "private, no-cache", resp.Header.Get("Cache-Control"))

	t.Run("matching If-None-Match yields 304", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/tables/users", nil)
		req.Header.Set("If-None-Match", etag)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotModified, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Empty(t, body)
	})

	t.Run("stale If-None-Match yields 200", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/tables/users", nil)
		req.Header.Set("If-None-Match", `W/"stale"`)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("skipped path", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
		require.NoError(t, err)
		assert.Empty(t, resp.Header.Get("ETag"))
	})

	t.Run("error responses get no validator", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/broken", nil))
		require.NoError(t, err)
		assert.Empty(t, resp.Header.Get("ETag"))
	})
}
