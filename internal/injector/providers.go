package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/replica/internal/config"
	"github.com/zeusync/replica/internal/core/events/bus"
	"github.com/zeusync/replica/internal/core/models"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/schema"
	"github.com/zeusync/replica/internal/core/systems"
	"github.com/zeusync/replica/internal/core/systems/physics"
	"github.com/zeusync/replica/internal/core/world"
	"github.com/zeusync/replica/internal/server"
)

// WorldSet builds a world from configuration and the process logger.
var WorldSet = wire.NewSet(
	wire.Bind(new(log.Log), new(*log.Logger)),
	ProvideSchema,
	ProvideSystems,
	ProvideWorld,
)

// ServerSet builds the canonical server on top of WorldSet.
var ServerSet = wire.NewSet(
	WorldSet,
	ProvideServerConfig,
	server.NewServer,
)

func ProvideLogger(c config.Config) *log.Logger {
	return log.New(c.Log.Level)
}

func ProvideSchema(c config.Config) (*schema.Schema, error) {
	return schema.LoadFile(c.SchemaFile)
}

// ProvideSystems registers the transform and squad systems for the types the
// schema declares; every other type is passive. All of them are instrumented.
func ProvideSystems(s *schema.Schema, logger log.Log) *world.Systems {
	reg := world.NewSystems(systems.Instrument(systems.Passive{}, logger))
	known := map[models.TypeID]world.System{
		physics.TransformType: physics.Transforms{},
		physics.SquadType:     physics.Squads(),
	}
	for id, sys := range known {
		if _, ok := s.Lookup(id); ok {
			_ = reg.Register(id, systems.Instrument(sys, logger))
		}
	}
	return reg
}

// ProvideWorld creates a world publishing on a fresh event bus.
func ProvideWorld(c config.Config, s *schema.Schema, reg *world.Systems, logger log.Log) *world.World {
	return world.New(s,
		world.WithLogger(logger),
		world.WithSystems(reg),
		world.WithEventBus(bus.New()),
		world.WithMaxCascadeSteps(c.World.MaxCascadeSteps),
	)
}

func ProvideServerConfig(c config.Config) server.Config {
	return c.Server
}
