// Package biz contains business logic layer implementations.
// This layer holds the bridge's core state machines and routing rules.
package biz

import (
	"RelayLane/internal/data"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewCorrelator,
	NewOfflineQueue,
	NewBridgeUseCase,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(Transport), new(*data.WebSocketTransport)),
	wire.Bind(new(CallTransport), new(*data.HTTPCallTransport)),
	wire.Bind(new(DeliveryAuditor), new(*data.DeliveryAuditLogger)),
	wire.Bind(new(StatusNotifier), new(*data.LogStatusNotifier)),
)
