package server

import (
	"context"
	"strconv"

	"RelayLane/internal/conf"
	"RelayLane/internal/server/middleware"
	"RelayLane/internal/service"
	pkglog "RelayLane/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// Operation names seen by middlewares; one per management route.
const (
	OperationBridgeSubmitOperation   = "/relaylane.v1.Bridge/SubmitOperation"
	OperationBridgeGetStatus         = "/relaylane.v1.Bridge/GetStatus"
	OperationBridgeGetQueue          = "/relaylane.v1.Bridge/GetQueue"
	OperationBridgeTriggerDrain      = "/relaylane.v1.Bridge/TriggerDrain"
	OperationBridgeReconnectChannel  = "/relaylane.v1.Bridge/ReconnectChannel"
	OperationBridgeDisconnectChannel = "/relaylane.v1.Bridge/DisconnectChannel"
	OperationBridgeResetBreaker      = "/relaylane.v1.Bridge/ResetBreaker"
	OperationBridgeGetHealth         = "/relaylane.v1.Bridge/GetHealth"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Server, auth *conf.Auth, svc *service.BridgeService, logger log.Logger) *http.Server {
	// 创建增强的日志辅助器
	logHelper := pkglog.NewLogHelper(logger)

	token := ""
	if auth != nil {
		token = auth.Token
	}

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Auth(token, logHelper), // 认证中间件：校验 Bearer Token
			middleware.Logging(logHelper),     // 请求日志中间件：记录请求方法、路径、耗时
		),
	}
	if c.Http.Network != "" {
		opts = append(opts, http.Network(c.Http.Network))
	}
	if c.Http.Addr != "" {
		opts = append(opts, http.Address(c.Http.Addr))
	}
	if c.Http.Timeout != nil {
		opts = append(opts, http.Timeout(c.Http.Timeout.AsDuration()))
	}
	srv := http.NewServer(opts...)

	registerBridgeRoutes(srv, svc)

	return srv
}

// registerBridgeRoutes wires the management API. Routes are registered by
// hand; the handler shape mirrors what protoc-gen-go-http would emit, so
// middlewares see real operation names.
func registerBridgeRoutes(srv *http.Server, svc *service.BridgeService) {
	r := srv.Route("/v1")

	r.POST("/operations", func(ctx http.Context) error {
		var req service.SubmitOperationRequest
		if err := ctx.Bind(&req); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationBridgeSubmitOperation)
		h := ctx.Middleware(func(c context.Context, in interface{}) (interface{}, error) {
			return svc.SubmitOperation(c, in.(*service.SubmitOperationRequest))
		})
		out, err := h(ctx, &req)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.GET("/status", func(ctx http.Context) error {
		http.SetOperation(ctx, OperationBridgeGetStatus)
		h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
			return svc.GetStatus(c)
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.GET("/queue", func(ctx http.Context) error {
		limit, _ := strconv.Atoi(ctx.Query().Get("limit"))
		http.SetOperation(ctx, OperationBridgeGetQueue)
		h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
			return svc.GetQueue(c, limit)
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.POST("/queue/drain", func(ctx http.Context) error {
		http.SetOperation(ctx, OperationBridgeTriggerDrain)
		h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
			return svc.TriggerDrain(c)
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.POST("/channels/{channel}/reconnect", func(ctx http.Context) error {
		channel := ctx.Vars().Get("channel")
		http.SetOperation(ctx, OperationBridgeReconnectChannel)
		h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
			return svc.ReconnectChannel(c, channel)
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.POST("/channels/{channel}/disconnect", func(ctx http.Context) error {
		channel := ctx.Vars().Get("channel")
		http.SetOperation(ctx, OperationBridgeDisconnectChannel)
		h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
			return svc.DisconnectChannel(c, channel)
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.POST("/breaker/reset", func(ctx http.Context) error {
		http.SetOperation(ctx, OperationBridgeResetBreaker)
		h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
			return svc.ResetBreaker(c)
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.GET("/health", func(ctx http.Context) error {
		http.SetOperation(ctx, OperationBridgeGetHealth)
		h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
			return svc.GetHealth(c)
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})
}
