package systems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/replica/internal/core/fields"
	"github.com/zeusync/replica/internal/core/models"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/schema"
	"github.com/zeusync/replica/internal/core/world"
)

const (
	typeSprite models.TypeID = "sprite"
	typeLabel  models.TypeID = "label"
)

func newWorld(t *testing.T, sprite, label world.System) *world.World {
	t.Helper()
	s := schema.New()
	require.NoError(t, s.Register(schema.MustComponentType(typeSprite,
		schema.ValueField("image", fields.KindString, false),
		schema.ValueField("tint", fields.KindVector4, true),
	)))
	require.NoError(t, s.Register(schema.MustComponentType(typeLabel,
		schema.DependencyField("sprite", typeSprite, false, false),
		schema.ValueField("text", fields.KindString, false),
	)))
	reg := world.NewSystems(nil)
	require.NoError(t, reg.Register(typeSprite, sprite))
	require.NoError(t, reg.Register(typeLabel, label))
	return world.New(s, world.WithSystems(reg))
}

func add(t *testing.T, w *world.World, id models.EntityID, typeID models.TypeID) *world.Component {
	t.Helper()
	if !w.HasEntity(id) {
		require.NoError(t, w.AddEntity(id))
	}
	c, err := w.AddComponent(id, typeID)
	require.NoError(t, err)
	return c
}

func TestPassive(t *testing.T) {
	w := newWorld(t, Passive{Authority: true, Frozen: []schema.FieldID{0}}, Passive{})
	sprite := add(t, w, 1, typeSprite)

	assert.ErrorIs(t, sprite.Activate(), world.ErrNotAuthoritative)
	sprite.Delegate()
	require.NoError(t, sprite.Activate())
	assert.Equal(t, Marker{}, sprite.Resource())

	p := Passive{Frozen: []schema.FieldID{0}}
	assert.False(t, p.CanLiveUpdateField(0))
	assert.True(t, p.CanLiveUpdateField(1))
}

func TestFuncSystem(t *testing.T) {
	var built, released, redrawn int
	sprite := Func{
		OnActivate: func(c *world.Component) (any, error) {
			built++
			return c.Key().String(), nil
		},
		OnDeactivate: func(*world.Component, any) { released++ },
		OnLiveUpdate: func(*world.Component, schema.FieldID) bool { return true },
	}
	label := Func{
		OnActivate: func(c *world.Component) (any, error) { return "label", nil },
		OnDependencyUpdate: func(*world.Component, schema.FieldID) bool {
			redrawn++
			return false
		},
	}
	w := newWorld(t, sprite, label)
	s := add(t, w, 1, typeSprite)
	l := add(t, w, 2, typeLabel)
	require.NoError(t, l.UpdateField(0, fields.Of(fields.Entity(1)), true))
	require.NoError(t, s.Activate())
	require.True(t, l.IsActive())

	require.NoError(t, s.UpdateField(1, fields.Of(fields.Vector4{1, 1, 1, 1}), true))
	assert.Equal(t, 1, redrawn)
	assert.Equal(t, 1, built)

	// label text has no live update hook: reactivated in place
	require.NoError(t, l.UpdateField(1, fields.Of(fields.String("hi")), true))
	assert.True(t, l.IsActive())

	s.Deactivate()
	assert.Equal(t, 1, released)
	assert.False(t, l.IsActive())
}

func TestFuncWithoutConstructor(t *testing.T) {
	w := newWorld(t, Func{}, Passive{})
	err := add(t, w, 1, typeSprite).Activate()
	assert.ErrorIs(t, err, world.ErrActivationFailure)
	assert.ErrorIs(t, err, ErrNoConstructor)
}

func TestInstrumentedMetrics(t *testing.T) {
	failing := Func{OnActivate: func(*world.Component) (any, error) { return nil, ErrNoConstructor }}
	sprite := Instrument(Passive{}, log.NewNop())
	label := Instrument(failing, log.NewNop())
	w := newWorld(t, sprite, label)

	s := add(t, w, 1, typeSprite)
	l := add(t, w, 2, typeLabel)
	require.NoError(t, l.UpdateField(0, fields.Of(fields.Entity(1)), true))
	require.NoError(t, s.Activate())
	require.NoError(t, s.UpdateField(0, fields.Of(fields.String("a.png")), true))
	s.Deactivate()

	m := sprite.GetMetrics()
	assert.Equal(t, uint64(1), m.Activations)
	assert.Equal(t, uint64(1), m.Deactivations)
	assert.Equal(t, uint64(1), m.LiveUpdates)
	assert.False(t, m.LastActivationTime.IsZero())

	lm := label.GetMetrics()
	assert.Equal(t, uint64(1), lm.ActivationErrors, "cascade tried the label once")
	assert.ErrorIs(t, lm.LastError, ErrNoConstructor)
}
