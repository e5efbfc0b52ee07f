package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	idempotencyKeyPrefix = "idempotency:"
	// stored alongside the body so a replay keeps the original status
	idempotencyStatusField = "status"
	idempotencyBodyField   = "body"

	defaultIdempotencyTTL = 24 * time.Hour
)

// IdempotencyMiddleware replays the stored response of a mutating request
// whose X-Correlation-ID was already seen within ttl. Keys are scoped to the
// authenticated user, so it must run after VerifyToken.
func IdempotencyMiddleware(redisClient *redis.Client, ttl time.Duration) fiber.Handler {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPatch && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		correlationID := c.Get("X-Correlation-ID")
		if correlationID == "" {
			return c.Next()
		}

		key := fmt.Sprintf("%s%s:%s:%s", idempotencyKeyPrefix, UserID(c), c.Path(), correlationID)
		ctx := c.UserContext()

		cached, err := redisClient.HGetAll(ctx, key).Result()
		if err == nil && cached[idempotencyBodyField] != "" {
			status := fiber.StatusOK
			fmt.Sscanf(cached[idempotencyStatusField], "%d", &status)
			c.Set("X-Idempotent-Replay", "true")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(status).SendString(cached[idempotencyBodyField])
		}

		if err := c.Next(); err != nil {
			return err
		}

		// only successful responses are replayed
		statusCode := c.Response().StatusCode()
		if statusCode < 200 || statusCode >= 300 {
			return nil
		}
		body := c.Response().Body()
		if len(body) == 0 {
			return nil
		}

		// the body buffer is reused by fasthttp once the handler returns
		bodyCopy := string(body)
		go func() {
			bgCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			pipe := redisClient.TxPipeline()
			pipe.HSet(bgCtx, key, idempotencyStatusField, statusCode, idempotencyBodyField, bodyCopy)
			pipe.Expire(bgCtx, key, ttl)
			if _, err := pipe.Exec(bgCtx); err != nil {
				log.WithField("key", key).Warnf("failed to store idempotent response: %s", err)
			}
		}()

		return nil
	}
}
