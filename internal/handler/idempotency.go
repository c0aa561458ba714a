package handler

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"time"

	"merchantpay/internal/idempotency"
	"merchantpay/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	HeaderIdempotencyKey      = "Idempotency-Key"
	HeaderIdempotencyReplayed = "Idempotency-Replayed"
)

// bodyRecorder 记录写出的响应体，用于缓存
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// IdempotencyMiddleware POST 请求按 Idempotency-Key 去重
//
// 没有带 key 的请求不去重。命中缓存时直接回放响应，handler 不会执行；
// 同一个 key 的请求还在处理时返回 409；key 被用于不同内容的请求返回 422。
// 只缓存 2xx 响应。
func IdempotencyMiddleware(store idempotency.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.ParamError(c, "读取请求体失败")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		fingerprint := idempotency.Fingerprint(c.Request.Method, c.Request.URL.Path, body)
		ctx := c.Request.Context()

		if replayed := replay(c, store, key, fingerprint); replayed {
			return
		}

		release, err := store.Acquire(ctx, key)
		if err != nil {
			writeError(c, err)
			return
		}
		defer release()

		// 拿到锁之前上一个请求可能刚好完成
		if replayed := replay(c, store, key, fingerprint); replayed {
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		status := recorder.Status()
		if status < 200 || status >= 300 {
			return
		}

		cached := &idempotency.CachedResponse{
			StatusCode:  status,
			ContentType: recorder.Header().Get("Content-Type"),
			Body:        recorder.body.Bytes(),
			Fingerprint: fingerprint,
			CreatedAt:   time.Now().UTC(),
		}
		if err := store.Store(ctx, key, cached); err != nil {
			log.Printf("[Idempotency] [ERROR] 保存响应失败: key=%s, err=%v", key, err)
		}
	}
}

// replay 命中缓存时写出缓存的响应并返回 true
func replay(c *gin.Context, store idempotency.Store, key, fingerprint string) bool {
	cached, err := store.Lookup(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return true
	}
	if cached == nil {
		return false
	}
	if cached.Fingerprint != "" && cached.Fingerprint != fingerprint {
		writeError(c, idempotency.ErrFingerprintMismatch)
		return true
	}

	log.Printf("[Idempotency] 命中缓存，回放响应: key=%s, status=%d", key, cached.StatusCode)
	c.Header(HeaderIdempotencyReplayed, "true")
	c.Data(cached.StatusCode, cached.ContentType, cached.Body)
	c.Abort()
	return true
}

