package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zeusync/replica/internal/core/events/bus"
	"github.com/zeusync/replica/internal/core/fields"
	"github.com/zeusync/replica/internal/core/models"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/replica"
	"github.com/zeusync/replica/internal/core/schema"
	"github.com/zeusync/replica/internal/core/systems"
	"github.com/zeusync/replica/internal/core/world"
)

const (
	typeStat   models.TypeID = "stat"
	typeFollow models.TypeID = "follow"

	statHP       schema.FieldID = 0
	followTarget schema.FieldID = 0
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s := schema.New()
	require.NoError(t, s.Register(schema.MustComponentType(typeStat,
		schema.ValueField("hp", fields.KindInt, false),
	)))
	require.NoError(t, s.Register(schema.MustComponentType(typeFollow,
		schema.DependencyField("target", typeStat, false, false),
	)))
	return s
}

func newWorld(t *testing.T, withBus bool) *world.World {
	t.Helper()
	opts := []world.Option{world.WithSystems(world.NewSystems(systems.Passive{}))}
	if withBus {
		opts = append(opts, world.WithEventBus(bus.New()))
	}
	return world.New(testSchema(t), opts...)
}

func testConfig() Config {
	config := DefaultServerConfig()
	config.HTTPAddr = ""
	config.TickInterval = time.Millisecond
	return config
}

func startServer(t *testing.T, config Config) *Server {
	t.Helper()
	srv, err := NewServer(config, newWorld(t, true), log.NewNop())
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

// connect attaches a loopback replica and returns its session.
func connect(t *testing.T, srv *Server, grants ...models.Key) (*replica.Session, string) {
	t.Helper()
	serverEnd, clientEnd := protocol.Pipe()
	id, err := srv.Attach(serverEnd, grants...)
	require.NoError(t, err)
	return replica.NewSession(clientEnd, newWorld(t, false), log.NewNop()), id
}

// eventually polls the session until cond holds.
func eventually(t *testing.T, s *replica.Session, cond func(w *world.World) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		s.Poll()
		return cond(s.World())
	}, 2*time.Second, time.Millisecond)
}

func hp(t *testing.T, w *world.World, id models.EntityID) int32 {
	t.Helper()
	c, ok := w.Component(id, typeStat)
	if !ok {
		return -1
	}
	v, _ := fields.As[fields.Int](c.Value(statHP))
	return int32(v)
}

// spawn adds a stat component with the given hp on the canonical world and
// activates it.
func spawn(id models.EntityID, value int32) func(w *world.World) error {
	return func(w *world.World) error {
		if err := w.AddEntity(id); err != nil {
			return err
		}
		return spawnComponent(w, id, value)
	}
}

func spawnComponent(w *world.World, id models.EntityID, value int32) error {
	c, err := w.AddComponent(id, typeStat)
	if err != nil {
		return err
	}
	if err = c.UpdateField(statHP, fields.Of(fields.Int(value)), true); err != nil {
		return err
	}
	return c.Activate()
}

var errBoom = errors.New("boom")
