// README: Idempotency-Key middleware backed by Redis; replays the first response.
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderIdempotencyHit = "X-Idempotency-Hit"

	idempotencyPending = "PROCESSING"
	lockTTL            = 30 * time.Second
	maxIdempotencyKey  = 128
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// captureWriter tees the response body so it can be stored.
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency makes requests carrying an Idempotency-Key run at most once
// per caller. A repeat while the first is running gets 409; a repeat after
// it finished gets the stored response. 5xx outcomes release the key so the
// client may try again. Requests without the header pass through.
func Idempotency(client redis.Cmdable, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKey {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "idempotency key too long"})
			return
		}

		ctx := c.Request.Context()
		redisKey := fmt.Sprintf("idempotency:%s:%s:%s", CallerID(c), c.FullPath(), key)

		acquired, err := client.SetNX(ctx, redisKey, idempotencyPending, lockTTL).Result()
		if err != nil {
			logrus.WithError(err).Warn("idempotency store unavailable, processing without key")
			c.Next()
			return
		}
		if !acquired {
			replay(c, client, redisKey)
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		bg := context.WithoutCancel(ctx)
		if w.Status() >= 500 {
			client.Del(bg, redisKey)
			return
		}
		stored, _ := json.Marshal(storedResponse{
			Status:      w.Status(),
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		})
		if err := client.Set(bg, redisKey, stored, ttl).Err(); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("failed to store idempotent response")
		}
	}
}

func replay(c *gin.Context, client redis.Cmdable, redisKey string) {
	val, err := client.Get(c.Request.Context(), redisKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request with this idempotency key just finished, retry"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "idempotency store unavailable"})
		return
	case val == idempotencyPending:
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request with this idempotency key is in progress"})
		return
	}

	var resp storedResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request already processed"})
		return
	}
	c.Header(HeaderIdempotencyHit, "true")
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json; charset=utf-8"
	}
	c.Data(resp.Status, contentType, resp.Body)
	c.Abort()
}
