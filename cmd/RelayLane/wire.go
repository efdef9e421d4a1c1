//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"RelayLane/internal/biz"
	"RelayLane/internal/conf"
	"RelayLane/internal/data"
	"RelayLane/internal/server"
	"RelayLane/internal/service"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Server, *conf.Data, *conf.Bridge, *conf.Auth, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		newCryptoService,
		newBridgeOptions,
		newQueueOptions,
		newQueueMaintenance,
		newApp,
	))
}
