//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/replica/internal/config"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/world"
	"github.com/zeusync/replica/internal/server"
)

func InitializeServer(c config.Config, logger *log.Logger) (*server.Server, error) {
	wire.Build(ServerSet)
	return nil, nil
}

func InitializeWorld(c config.Config, logger *log.Logger) (*world.World, error) {
	wire.Build(WorldSet)
	return nil, nil
}

func InitializeLogger(c config.Config) *log.Logger {
	wire.Build(ProvideLogger)
	return nil
}
