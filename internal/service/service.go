// Package service exposes the bridge management surface consumed by the
// HTTP server. It translates between transport DTOs and the biz layer.
package service

import "github.com/google/wire"

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewBridgeService)
