package log

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// contextKey 是用于存储 RequestContext 的私有 key 类型
type contextKey string

const requestContextKey contextKey = "relaylane_request_context"

// RequestContext 存储一次管理请求的追踪信息
// 通过 Context 传递，实现跨模块的请求追踪
type RequestContext struct {
	RequestID   string    // 唯一请求 ID (10 位 base36 短 ID)
	OperationID string    // 关联的桥接操作 ID（如有）
	Channel     string    // 承载该操作的通道名（如有）
	StartTime   time.Time // 请求开始时间
}

var (
	randSource = rand.NewSource(time.Now().UnixNano())
	randMutex  sync.Mutex
	// base36 字符集（小写字母 + 数字）
	base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// GenerateRequestID 生成 10 位随机请求 ID，例如 mgrn0zfqda
func GenerateRequestID() string {
	randMutex.Lock()
	defer randMutex.Unlock()

	b := make([]byte, 10)
	for i := range b {
		b[i] = base36Chars[randSource.Int63()%36]
	}
	return string(b)
}

// WithRequestContext 将 RequestContext 注入 Context
// 通常由请求日志中间件调用
func WithRequestContext(ctx context.Context, requestID, operationID, channel string) context.Context {
	reqCtx := &RequestContext{
		RequestID:   requestID,
		OperationID: operationID,
		Channel:     channel,
		StartTime:   time.Now(),
	}
	return context.WithValue(ctx, requestContextKey, reqCtx)
}

// GetRequestContext 从 Context 中提取 RequestContext
// 不存在时返回默认值，避免调用方做 nil 检查
func GetRequestContext(ctx context.Context) *RequestContext {
	if ctx == nil {
		return &RequestContext{RequestID: "unknown"}
	}
	if reqCtx, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
		return reqCtx
	}
	return &RequestContext{RequestID: "unknown"}
}

// GetRequestID 从 Context 中提取 Request ID
func GetRequestID(ctx context.Context) string {
	return GetRequestContext(ctx).RequestID
}

// GetElapsedTime 获取请求已执行时间（毫秒）
func GetElapsedTime(ctx context.Context) int64 {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(reqCtx.StartTime).Milliseconds()
}
