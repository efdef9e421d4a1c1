// Package middleware provides HTTP middleware for authentication, logging, and request processing.
package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	pkglog "RelayLane/pkg/log"

	kratoserrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// tokenMaskedContextKey is the context key for storing the masked token
const tokenMaskedContextKey contextKey = "token_masked"

// Auth 返回一个 HTTP 认证中间件
// 校验管理 API 的 Bearer Token,并记录认证日志
// expectedToken 为空时认证关闭,仅记录请求来源
//
// 日志输出示例:
//
//	🔒 authenticated request (relay-12***) in 0ms | {"type":"security","token_masked":"relay-12***"}
func Auth(expectedToken string, logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			startTime := time.Now()

			var token string

			// 提取 Authorization header,支持 "Bearer {token}" 格式
			if tr, ok := transport.FromServerContext(ctx); ok {
				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()

					authHeader := httpReq.Header.Get("Authorization")
					if authHeader != "" {
						token = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
					}

					// Authorization header 为空时,尝试 X-API-Key header
					if token == "" {
						token = httpReq.Header.Get("X-API-Key")
					}
				}
			}

			// 认证开启时要求 Token 完全匹配
			if expectedToken != "" {
				if token == "" {
					logger.Security("management request without token rejected")
					return nil, kratoserrors.Unauthorized("UNAUTHORIZED", "missing bearer token")
				}
				if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
					logger.Security("management request with invalid token rejected",
						"token_masked", maskToken(token))
					return nil, kratoserrors.Unauthorized("UNAUTHORIZED", "invalid bearer token")
				}
			}

			// 记录认证日志并将脱敏后的 Token 注入上下文
			if token != "" {
				authDuration := time.Since(startTime).Milliseconds()
				maskedToken := maskToken(token)

				logger.Security(
					"authenticated request ("+maskedToken+") in "+formatDuration(authDuration),
					"token_masked", maskedToken,
					"duration_ms", authDuration,
				)

				ctx = context.WithValue(ctx, tokenMaskedContextKey, maskedToken)
			}

			return handler(ctx, req)
		}
	}
}

// maskToken 脱敏 Token,仅显示前 8 位
// 示例: "relay-1234567890abcdef" -> "relay-12***"
func maskToken(token string) string {
	if len(token) <= 8 {
		// Token 太短时全部脱敏
		return strings.Repeat("*", len(token))
	}

	return token[:8] + "***"
}

// formatDuration 格式化持续时间为易读格式
// 示例: 5ms, 150ms, 2.5s
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	seconds := float64(ms) / 1000.0
	return fmt.Sprintf("%.1fs", seconds)
}
