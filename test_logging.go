//go:build ignore
// +build ignore

package main

import (
	"context"

	"RelayLane/internal/conf"
	pkglog "RelayLane/pkg/log"
)

func main() {
	// 创建日志配置
	logConf := &conf.Log{
		Level:  "debug",
		Format: "console", // 使用 console 格式以启用 Emoji Encoder
		Env:    "development",
	}

	// 创建 Zap logger
	zapLogger, err := pkglog.NewZapLogger(logConf)
	if err != nil {
		panic(err)
	}

	// 创建 Kratos adapter
	kratosLogger := pkglog.NewKratosAdapter(zapLogger)

	// 创建 LogHelper
	helper := pkglog.NewLogHelper(kratosLogger)

	// 测试各种日志类型
	println("=== 测试日志输出格式 ===\n")

	helper.Startup("RelayLane service starting", "version", "1.0.0", "port", 8080)
	helper.Channel("Primary channel connected", "channel", "primary", "endpoint", "ws://127.0.0.1:9100/bridge")
	helper.Heartbeat("Heartbeat acknowledged", "channel", "primary", "rtt_ms", 12)
	helper.Queue("Operation enqueued", "operation_id", "op-123", "queue_size", 4)
	helper.Replay("Replay cycle started", "queue_size", 4, "channel", "primary")
	helper.Breaker("Circuit breaker opened", "channel", "secondary", "failures", 3)
	helper.Dispatch("Operation routed", "operation_id", "op-123", "route", "primary")
	helper.Correlate("Outcome resolved", "operation_id", "op-123", "state", "success")
	helper.Performance("Drain completed", "operation", "drain", "duration_ms", 250)
	helper.Audit("Admin action", "admin", "root", "action", "reset_breaker")
	helper.Security("Suspicious activity detected", "ip", "10.0.0.1", "reason", "invalid bearer token")
	helper.Success("Operation delivered", "operation_id", "op-123")
	helper.Request("POST", "/v1/operations", 200, 42, "ip", "192.168.1.100", "user_agent", "RelayLane/1.0")

	// 测试便捷方法
	ctx := pkglog.WithRequestContext(context.Background(), pkglog.GenerateRequestID(), "op-456", "primary")
	helper.RequestWithContext(ctx, "POST", "/v1/queue/drain", 200, 1280)
	helper.DispatchWithContext(ctx, "Operation queued for replay", "operation_id", "op-456")
	helper.DrainReport("primary", 3, 1, 0, 845)

	println("\n=== 日志输出完成 ===")
}
