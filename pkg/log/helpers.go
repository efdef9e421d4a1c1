package log

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// LogHelper 扩展 Kratos log.Helper，提供桥接域的便捷日志方法
// 每个方法自动附加 "type" 字段，触发 EmojiConsoleEncoder 的表情符号映射
type LogHelper struct {
	*log.Helper
}

// NewLogHelper 创建增强的日志辅助器
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{
		Helper: log.NewHelper(logger),
	}
}

// typed 附加 msg 与 type 字段后输出
func (h *LogHelper) typed(logType, msg string, kvs ...interface{}) []interface{} {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	return append(allKvs, "type", logType)
}

// Startup 记录启动相关日志（🚀）
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	h.Infow(h.typed("startup", msg, kvs...)...)
}

// Channel 记录通道状态变化日志（🔌）
func (h *LogHelper) Channel(msg string, kvs ...interface{}) {
	h.Infow(h.typed("channel", msg, kvs...)...)
}

// Heartbeat 记录心跳探测日志（💓）
func (h *LogHelper) Heartbeat(msg string, kvs ...interface{}) {
	h.Debugw(h.typed("heartbeat", msg, kvs...)...)
}

// Queue 记录离线队列操作日志（📮）
func (h *LogHelper) Queue(msg string, kvs ...interface{}) {
	h.Infow(h.typed("queue", msg, kvs...)...)
}

// Replay 记录队列重放日志（🔁）
func (h *LogHelper) Replay(msg string, kvs ...interface{}) {
	h.Infow(h.typed("replay", msg, kvs...)...)
}

// Breaker 记录熔断器状态日志（⚡）
func (h *LogHelper) Breaker(msg string, kvs ...interface{}) {
	h.Warnw(h.typed("breaker", msg, kvs...)...)
}

// Dispatch 记录操作分发日志（📨）
func (h *LogHelper) Dispatch(msg string, kvs ...interface{}) {
	h.Infow(h.typed("dispatch", msg, kvs...)...)
}

// Correlate 记录请求关联日志（🧭）
func (h *LogHelper) Correlate(msg string, kvs ...interface{}) {
	h.Debugw(h.typed("correlate", msg, kvs...)...)
}

// Success 记录成功操作日志（✅）
func (h *LogHelper) Success(msg string, kvs ...interface{}) {
	h.Infow(h.typed("success", msg, kvs...)...)
}

// Security 记录安全相关日志（🔒）
func (h *LogHelper) Security(msg string, kvs ...interface{}) {
	h.Warnw(h.typed("security", msg, kvs...)...)
}

// Audit 记录审计日志（📋）
func (h *LogHelper) Audit(msg string, kvs ...interface{}) {
	h.Infow(h.typed("audit", msg, kvs...)...)
}

// Performance 记录性能相关日志（⏱️）
func (h *LogHelper) Performance(msg string, kvs ...interface{}) {
	h.Infow(h.typed("performance", msg, kvs...)...)
}

// Request 记录管理接口 HTTP 请求日志（🌐 或按状态码着色）
func (h *LogHelper) Request(method, url string, status int, durationMs int64, kvs ...interface{}) {
	msg := fmt.Sprintf("%s %s - %d (%dms)", method, url, status, durationMs)
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"type", "request",
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(allKvs...)
}

// ========== Context-Aware 日志方法 ==========

// RequestWithContext 记录带 Context 的 HTTP 请求日志
// 自动提取 Request ID 并检测慢请求（阈值 1000ms）
func (h *LogHelper) RequestWithContext(ctx context.Context, method, url string, status int, durationMs int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("%s %s - %d (%dms) | RequestID: %s",
		method, url, status, durationMs, reqCtx.RequestID)

	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"type", "request",
		"request_id", reqCtx.RequestID,
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(allKvs...)

	if durationMs > 1000 {
		h.SlowRequest(ctx, method, url, durationMs, 1000)
	}
}

// SlowRequest 记录慢请求警告（🐌）
func (h *LogHelper) SlowRequest(ctx context.Context, method, url string, duration, threshold int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("[%s] Slow request detected | %s %s | %dms (threshold: %dms)",
		reqCtx.RequestID, method, url, duration, threshold)

	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"type", "slow_request",
		"request_id", reqCtx.RequestID,
		"method", method,
		"url", url,
		"duration_ms", duration,
		"threshold_ms", threshold,
	)
	h.Warnw(allKvs...)
}

// DispatchWithContext 记录带 Context 的分发日志
func (h *LogHelper) DispatchWithContext(ctx context.Context, msg string, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	fullMsg := fmt.Sprintf("[%s] %s", reqCtx.RequestID, msg)

	allKvs := append([]interface{}{"msg", fullMsg}, kvs...)
	allKvs = append(allKvs,
		"type", "dispatch",
		"request_id", reqCtx.RequestID,
	)
	h.Infow(allKvs...)
}

// DrainReport 记录一次队列重放的汇总（🔁）
func (h *LogHelper) DrainReport(channel string, delivered, requeued, exhausted int, durationMs int64, kvs ...interface{}) {
	msg := fmt.Sprintf("Drain finished on %s | delivered: %d, requeued: %d, exhausted: %d (%dms)",
		channel, delivered, requeued, exhausted, durationMs)

	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"type", "replay",
		"channel", channel,
		"delivered", delivered,
		"requeued", requeued,
		"exhausted", exhausted,
		"duration_ms", durationMs,
	)
	h.Infow(allKvs...)
}
