package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/gowebpki/jcs"
)

// DefaultTTL 缓存响应保留时间
const DefaultTTL = 24 * time.Hour

var (
	// ErrInFlight 相同幂等键的请求还没处理完
	ErrInFlight = errors.New("相同幂等键的请求正在处理中")
	// ErrFingerprintMismatch 幂等键被用于内容不同的请求
	ErrFingerprintMismatch = errors.New("幂等键已被不同的请求使用")
)

// CachedResponse 缓存的成功响应
type CachedResponse struct {
	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store 幂等记录存储
//
// Lookup 未命中返回 (nil, nil)；Acquire 在键处理中时返回 ErrInFlight，
// 成功时返回的 release 必须调用。
type Store interface {
	Lookup(ctx context.Context, key string) (*CachedResponse, error)
	Store(ctx context.Context, key string, resp *CachedResponse) error
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Fingerprint 请求指纹：method、path 和规范化后的 JSON body
//
// 字段顺序、空白不同的同一个 JSON 得到相同指纹；body 不是 JSON 时按原始字节计算
func Fingerprint(method, path string, body []byte) string {
	canonical := body
	if len(body) > 0 {
		if c, err := jcs.Transform(body); err == nil {
			canonical = c
		}
	}

	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}
