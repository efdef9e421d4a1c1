package server

import (
	"context"

	"RelayLane/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

// BridgeRunner adapts the bridge use case to the kratos server lifecycle:
// channels come up when the application starts and are torn down when it
// stops.
type BridgeRunner struct {
	uc     *biz.BridgeUseCase
	logger *log.Helper
}

// NewBridgeRunner creates a new BridgeRunner instance.
func NewBridgeRunner(uc *biz.BridgeUseCase, logger log.Logger) *BridgeRunner {
	return &BridgeRunner{
		uc:     uc,
		logger: log.NewHelper(logger),
	}
}

// Start brings both channels up. Initial connection failures are not fatal;
// the reconnect machinery keeps retrying in the background.
func (r *BridgeRunner) Start(ctx context.Context) error {
	return r.uc.Start(ctx)
}

// Stop disconnects both channels.
func (r *BridgeRunner) Stop(ctx context.Context) error {
	r.logger.Info("stopping bridge channels")
	return r.uc.Stop(ctx)
}
