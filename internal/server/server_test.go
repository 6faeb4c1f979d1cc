package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/replica/internal/core/fields"
	"github.com/zeusync/replica/internal/core/models"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/world"
)

func TestNewServerNeedsEventBus(t *testing.T) {
	_, err := NewServer(testConfig(), newWorld(t, false), log.NewNop())
	assert.ErrorIs(t, err, ErrNoEventBus)

	config := testConfig()
	config.MaxClients = 0
	_, err = NewServer(config, newWorld(t, true), log.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLifecycle(t *testing.T) {
	srv, err := NewServer(testConfig(), newWorld(t, true), log.NewNop())
	require.NoError(t, err)

	assert.ErrorIs(t, srv.Do(func(*world.World) error { return nil }), ErrServerNotRunning)
	require.NoError(t, srv.Start(context.Background()))
	assert.ErrorIs(t, srv.Start(context.Background()), ErrServerAlreadyRunning)
	require.NoError(t, srv.Stop(context.Background()))
	assert.ErrorIs(t, srv.Stop(context.Background()), ErrServerNotRunning)
	require.NoError(t, srv.Close())
	assert.ErrorIs(t, srv.Start(context.Background()), ErrServerClosed)
}

func TestLateJoinerReceivesSnapshot(t *testing.T) {
	srv := startServer(t, testConfig())
	require.NoError(t, srv.Do(spawn(1, 5)))
	require.NoError(t, srv.Do(func(w *world.World) error {
		require.NoError(t, w.AddEntity(2))
		c, err := w.AddComponent(2, typeFollow)
		require.NoError(t, err)
		require.NoError(t, c.UpdateField(followTarget, fields.Of(fields.Entity(1)), true))
		return c.Activate()
	}))

	client, _ := connect(t, srv)
	eventually(t, client, func(w *world.World) bool {
		c, ok := w.Component(2, typeFollow)
		return ok && c.IsActive()
	})
	assert.Equal(t, int32(5), hp(t, client.World(), 1))
	target, _ := client.World().Component(1, typeStat)
	assert.True(t, target.IsActive())
	assert.Zero(t, client.Stats().Failed)
}

func TestChangesAreBroadcast(t *testing.T) {
	srv := startServer(t, testConfig())
	one, _ := connect(t, srv)
	two, _ := connect(t, srv)
	assert.Equal(t, 2, srv.ClientCount())

	require.NoError(t, srv.Do(spawn(1, 3)))
	require.NoError(t, srv.Do(func(w *world.World) error {
		c, _ := w.Component(1, typeStat)
		return c.UpdateField(statHP, fields.Of(fields.Int(4)), true)
	}))
	eventually(t, one, func(w *world.World) bool { return hp(t, w, 1) == 4 })
	eventually(t, two, func(w *world.World) bool { return hp(t, w, 1) == 4 })

	require.NoError(t, srv.Do(func(w *world.World) error { return w.RemoveEntity(1) }))
	eventually(t, one, func(w *world.World) bool { return !w.HasEntity(1) })
}

func TestClientUpdatesNeedGrant(t *testing.T) {
	srv := startServer(t, testConfig())
	require.NoError(t, srv.Do(spawn(1, 10)))
	author, authorID := connect(t, srv)
	watcher, _ := connect(t, srv)
	eventually(t, author, func(w *world.World) bool { return hp(t, w, 1) == 10 })

	// Without a grant the replica refuses locally, so forge the op.
	require.NoError(t, author.Send(protocol.UpdateComponent(1, typeStat, statHP, fields.Of(fields.Int(99)))))
	require.Eventually(t, func() bool {
		stats, err := srv.ClientStats(authorID)
		return err == nil && stats.Rejected == 1
	}, 2*time.Second, time.Millisecond)

	key := models.Key{Entity: 1, Type: typeStat}
	require.NoError(t, srv.Grant(authorID, key))
	eventually(t, author, func(w *world.World) bool { return w.IsDelegated(1, typeStat) })

	require.NoError(t, author.Update(1, typeStat, statHP, fields.Of(fields.Int(11))))
	eventually(t, watcher, func(w *world.World) bool { return hp(t, w, 1) == 11 })
	require.NoError(t, srv.Do(func(w *world.World) error {
		assert.Equal(t, int32(11), hp(t, w, 1))
		return nil
	}))
	stats, err := srv.ClientStats(authorID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Applied)

	require.NoError(t, srv.Revoke(authorID, key))
	eventually(t, author, func(w *world.World) bool { return !w.IsDelegated(1, typeStat) })
	assert.ErrorIs(t, srv.Grant("nobody", key), ErrClientNotFound)
	assert.ErrorIs(t, srv.Grant(authorID, models.Key{Entity: 7, Type: typeStat}), world.ErrEntityNotFound)
}

func TestServerOnlyOpsAreRejected(t *testing.T) {
	srv := startServer(t, testConfig())
	client, id := connect(t, srv)
	require.NoError(t, client.Send(protocol.AddEntity(5)))
	require.NoError(t, client.Send(protocol.NoOp()))

	require.Eventually(t, func() bool {
		stats, err := srv.ClientStats(id)
		return err == nil && stats.Rejected == 1
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, srv.Do(func(w *world.World) error {
		assert.False(t, w.HasEntity(5))
		return nil
	}))
}

func TestGrantsAreSnapshotted(t *testing.T) {
	srv := startServer(t, testConfig())
	require.NoError(t, srv.Do(spawn(1, 1)))
	client, _ := connect(t, srv,
		models.Key{Entity: 1, Type: typeStat},
		models.Key{Entity: 9, Type: typeStat},
	)
	eventually(t, client, func(w *world.World) bool { return w.IsDelegated(1, typeStat) })
	assert.Zero(t, client.Stats().Failed, "grants on missing entities are not sent")
}

func TestDisconnectDetachesClient(t *testing.T) {
	srv := startServer(t, testConfig())
	client, _ := connect(t, srv)
	require.Equal(t, 1, srv.ClientCount())

	require.NoError(t, client.Close())
	require.Eventually(t, func() bool { return srv.ClientCount() == 0 }, 2*time.Second, time.Millisecond)
}

func TestMaxClients(t *testing.T) {
	config := testConfig()
	config.MaxClients = 1
	srv := startServer(t, config)
	connect(t, srv)

	serverEnd, clientEnd := protocol.Pipe()
	_, err := srv.Attach(serverEnd)
	assert.ErrorIs(t, err, ErrMaxClientsReached)

	var last protocol.Event
	record := func(ev protocol.Event) { last = ev }
	for clientEnd.ReceiveEvent(record) {
		continue
	}
	assert.Equal(t, protocol.EventDisconnected, last.Kind, "rejected transport is closed")
}

func TestRateLimitedFramesAreDropped(t *testing.T) {
	config := testConfig()
	config.MaxMessagesPerSecond = 2
	srv := startServer(t, config)
	client, id := connect(t, srv)
	for i := 0; i < 5; i++ {
		require.NoError(t, client.Send(protocol.NoOp()))
	}
	require.Eventually(t, func() bool {
		stats, err := srv.ClientStats(id)
		return err == nil && stats.Throttled == 3
	}, 2*time.Second, time.Millisecond)
}

func TestSpawnAllocatesAndRecyclesIDs(t *testing.T) {
	srv := startServer(t, testConfig())
	populate := func(w *world.World, id models.EntityID) error {
		return spawnComponent(w, id, 5)
	}

	first, err := srv.Spawn(populate)
	require.NoError(t, err)
	second, err := srv.Spawn(nil)
	require.NoError(t, err)
	assert.Equal(t, models.EntityID(1), first)
	assert.Equal(t, models.EntityID(2), second)

	require.NoError(t, srv.Do(func(w *world.World) error { return w.RemoveEntity(first) }))
	again, err := srv.Spawn(populate)
	require.NoError(t, err)
	assert.Equal(t, first, again, "freed ids are reused")

	require.NoError(t, srv.Do(func(w *world.World) error { return w.AddEntity(3) }))
	next, err := srv.Spawn(nil)
	require.NoError(t, err)
	assert.Equal(t, models.EntityID(4), next, "ids taken outside the allocator are skipped")

	_, err = srv.Spawn(func(*world.World, models.EntityID) error { return errBoom })
	assert.ErrorIs(t, err, errBoom)
	require.NoError(t, srv.Do(func(w *world.World) error {
		assert.Equal(t, []models.EntityID{1, 2, 3, 4}, w.Entities())
		return nil
	}))
	recycled, err := srv.Spawn(nil)
	require.NoError(t, err)
	assert.Equal(t, models.EntityID(5), recycled, "a failed spawn frees its id")
}
