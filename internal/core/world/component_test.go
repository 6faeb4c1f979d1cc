package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeusync/replica/internal/core/fields"
	"github.com/zeusync/replica/internal/core/models"
)

func TestDefaultsAndDefaultEdges(t *testing.T) {
	f := newFixture(t)
	user := f.add(t, 1, typeUser)

	target, ok := fields.As[fields.Entity](user.Value(userTarget))
	require.True(t, ok, "required fields start set")
	assert.Equal(t, fields.Entity(0), target)
	assert.Equal(t, []models.Key{{Entity: 0, Type: typeTarget}}, user.Dependencies())

	peer := f.add(t, 2, typePeer)
	assert.False(t, peer.Value(peerOther).IsSet(), "optional fields start unset")
	assert.Empty(t, peer.Dependencies())

	assert.Equal(t, 1, f.world.DependencyCount())
}

func TestDependencyGating(t *testing.T) {
	f := newFixture(t)
	user := f.add(t, 1, typeUser)

	err := user.Activate()
	assert.ErrorIs(t, err, ErrDependenciesInactive)
	assert.False(t, user.IsActive())
	assert.Zero(t, f.sys[typeUser].activations[user.Key()])
}

func TestActivateAfterDependencyAppears(t *testing.T) {
	f := newFixture(t)
	f.sys[typeTarget].requiresAuthority = true

	a := f.user(t, 1, 2)
	require.ErrorIs(t, a.Activate(), ErrDependenciesInactive)

	b := f.add(t, 2, typeTarget)
	require.ErrorIs(t, b.Activate(), ErrNotAuthoritative)
	require.NoError(t, f.world.DelegateComponent(2, typeTarget))
	require.NoError(t, b.Activate())

	require.NoError(t, a.Activate())
	assert.True(t, a.IsActive())
	assert.Equal(t, 1, f.sys[typeUser].activations[a.Key()])
}

func TestActivateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	b := f.add(t, 2, typeTarget)
	require.NoError(t, b.Activate())
	require.NoError(t, b.Activate())
	assert.Equal(t, 1, f.sys[typeTarget].activations[b.Key()])
	assert.Equal(t, b.Key().String(), b.Resource())
}

func TestDeactivateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	b := f.add(t, 2, typeTarget)
	b.Deactivate()
	assert.Zero(t, f.sys[typeTarget].deactivations[b.Key()])

	require.NoError(t, b.Activate())
	b.Deactivate()
	b.Deactivate()
	assert.Equal(t, 1, f.sys[typeTarget].deactivations[b.Key()])
	assert.Nil(t, b.Resource())
}

func TestActivationFailures(t *testing.T) {
	f := newFixture(t)
	b := f.add(t, 2, typeTarget)

	f.sys[typeTarget].fail = errBoom
	err := b.Activate()
	assert.ErrorIs(t, err, ErrActivationFailure)
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, b.IsActive())

	f.sys[typeTarget].fail = nil
	f.sys[typeTarget].nilResource = true
	assert.ErrorIs(t, b.Activate(), ErrActivationFailure)
	assert.False(t, b.IsActive())
	assert.Zero(t, f.world.Stats().Active)
}

func TestCascadeActivatesOnlyEligibleDependents(t *testing.T) {
	f := newFixture(t)
	b := f.add(t, 2, typeTarget)

	ok := f.user(t, 10, 2)

	// depends on the target and on a missing one
	missing := f.add(t, 11, typeList)
	require.NoError(t, missing.UpdateField(listTargets, fields.Of(fields.Entities{2, 99}), true))

	f.sys[typeList].requiresAuthority = true
	unauthorized := f.add(t, 12, typeList)
	require.NoError(t, unauthorized.UpdateField(listTargets, fields.Of(fields.Entities{2}), true))

	require.NoError(t, b.Activate())

	assert.True(t, ok.IsActive())
	assert.False(t, missing.IsActive())
	assert.False(t, unauthorized.IsActive())
	assert.Zero(t, f.sys[typeList].activations[missing.Key()])
	assert.Zero(t, f.sys[typeList].activations[unauthorized.Key()])
}

func TestCascadeRetriesDependentWithSeveralTargets(t *testing.T) {
	f := newFixture(t)
	first := f.add(t, 1, typeTarget)
	second := f.add(t, 2, typeTarget)
	both := f.add(t, 3, typeList)
	require.NoError(t, both.UpdateField(listTargets, fields.Of(fields.Entities{1, 2}), true))

	require.NoError(t, first.Activate())
	assert.False(t, both.IsActive())

	require.NoError(t, second.Activate())
	assert.True(t, both.IsActive())
}

func TestCascadeReachesTransitiveDependents(t *testing.T) {
	f := newFixture(t)
	root := f.add(t, 1, typePeer)
	mid := f.add(t, 2, typePeer)
	leaf := f.add(t, 3, typePeer)
	require.NoError(t, mid.UpdateField(peerOther, fields.Of(fields.Entity(1)), true))
	require.NoError(t, leaf.UpdateField(peerOther, fields.Of(fields.Entity(2)), true))

	require.NoError(t, root.Activate())
	assert.True(t, mid.IsActive())
	assert.True(t, leaf.IsActive())
	assert.Equal(t, 3, f.world.Stats().Active)
}

func TestDeactivateTearsDownDependentsFirst(t *testing.T) {
	f := newFixture(t)
	root := f.add(t, 1, typePeer)
	mid := f.add(t, 2, typePeer)
	leaf := f.add(t, 3, typePeer)
	require.NoError(t, mid.UpdateField(peerOther, fields.Of(fields.Entity(1)), true))
	require.NoError(t, leaf.UpdateField(peerOther, fields.Of(fields.Entity(2)), true))
	require.NoError(t, root.Activate())

	f.resetJournal()
	root.Deactivate()
	assert.Equal(t, []string{"deactivate 3/peer", "deactivate 2/peer", "deactivate 1/peer"}, f.journal)
	assert.Zero(t, f.world.Stats().Active)
}

func TestUpdateFieldRejectsWrongKind(t *testing.T) {
	f := newFixture(t)
	b := f.add(t, 2, typeTarget)
	err := b.UpdateField(targetSize, fields.Of(fields.Int(1)), true)
	assert.ErrorIs(t, err, ErrInvalidFieldType)
	assert.True(t, fields.Equal(fields.Zero(fields.KindFloat), b.Value(targetSize)))
}

func TestUpdateFieldOutOfRangePanics(t *testing.T) {
	f := newFixture(t)
	b := f.add(t, 2, typeTarget)
	assert.Panics(t, func() { _ = b.UpdateField(5, fields.Of(fields.Float(1)), true) })
}

func TestAuthorityEnforcement(t *testing.T) {
	f := newFixture(t)
	b := f.add(t, 2, typeTarget)

	err := b.UpdateField(targetSize, fields.Of(fields.Float(3)), false)
	assert.ErrorIs(t, err, ErrNotAuthoritative)
	assert.True(t, fields.Equal(fields.Zero(fields.KindFloat), b.Value(targetSize)))

	b.Delegate()
	require.NoError(t, b.UpdateField(targetSize, fields.Of(fields.Float(3)), false))
	assert.True(t, fields.Equal(fields.Of(fields.Float(3)), b.Value(targetSize)))
}

func TestUnsetValueClearsField(t *testing.T) {
	f := newFixture(t)
	p := f.add(t, 1, typePeer)
	require.NoError(t, p.UpdateField(peerLabel, fields.Of(fields.String("x")), true))
	require.NoError(t, p.UpdateField(peerLabel, fields.Unset(fields.KindString), true))
	assert.False(t, p.Value(peerLabel).IsSet())
}

func TestUnsetValueMustMatchKind(t *testing.T) {
	f := newFixture(t)
	p := f.add(t, 1, typePeer)
	require.NoError(t, p.UpdateField(peerLabel, fields.Of(fields.String("x")), true))

	err := p.UpdateField(peerLabel, fields.Unset(fields.KindBytes), true)
	assert.ErrorIs(t, err, ErrInvalidFieldType)
	assert.True(t, fields.Equal(fields.Of(fields.String("x")), p.Value(peerLabel)), "rejected update keeps the value")
}

func TestLiveUpdateKeepsComponentActive(t *testing.T) {
	f := newFixture(t)
	b := f.add(t, 2, typeTarget)
	require.NoError(t, b.Activate())

	require.NoError(t, b.UpdateField(targetSize, fields.Of(fields.Float(2)), true))
	assert.True(t, b.IsActive())
	assert.Equal(t, 1, f.sys[typeTarget].activations[b.Key()])
	assert.Equal(t, 1, f.sys[typeTarget].liveUpdates[b.Key()])
}

func TestFrozenFieldForcesReactivation(t *testing.T) {
	f := newFixture(t)
	f.sys[typeTarget].frozen[targetSize] = true
	b := f.add(t, 2, typeTarget)
	require.NoError(t, b.Activate())

	f.resetJournal()
	require.NoError(t, b.UpdateField(targetSize, fields.Of(fields.Float(2)), true))
	assert.True(t, b.IsActive())
	assert.Equal(t, []string{"deactivate 2/target", "activate 2/target"}, f.journal)
	assert.Zero(t, f.sys[typeTarget].liveUpdates[b.Key()])
}

func TestFrozenFieldOnInactiveComponentStaysInactive(t *testing.T) {
	f := newFixture(t)
	f.sys[typeTarget].frozen[targetSize] = true
	b := f.add(t, 2, typeTarget)

	require.NoError(t, b.UpdateField(targetSize, fields.Of(fields.Float(2)), true))
	assert.False(t, b.IsActive())
	assert.Zero(t, f.sys[typeTarget].activations[b.Key()])
}

func TestFailedReactivationLeavesComponentInactive(t *testing.T) {
	f := newFixture(t)
	f.sys[typeTarget].frozen[targetSize] = true
	b := f.add(t, 2, typeTarget)
	require.NoError(t, b.Activate())

	f.sys[typeTarget].fail = errBoom
	require.NoError(t, b.UpdateField(targetSize, fields.Of(fields.Float(2)), true))
	assert.False(t, b.IsActive())
}

func TestRetargetingToInactiveDependencyDeactivates(t *testing.T) {
	f := newFixture(t)
	b := f.add(t, 2, typeTarget)
	f.add(t, 3, typeTarget)
	require.NoError(t, b.Activate())
	user := f.user(t, 1, 2)
	require.NoError(t, user.Activate())

	require.NoError(t, user.UpdateField(userTarget, fields.Of(fields.Entity(3)), true))
	assert.False(t, user.IsActive())
	assert.Equal(t, []models.Key{{Entity: 3, Type: typeTarget}}, user.Dependencies())
	assert.Empty(t, f.world.Dependents(b.Key()))
	assert.Len(t, f.world.Dependents(models.Key{Entity: 3, Type: typeTarget}), 1)
}

func TestLiveUpdatePropagatesToDependents(t *testing.T) {
	f := newFixture(t)
	f.sys[typeTarget].propagate = true
	b := f.add(t, 2, typeTarget)
	require.NoError(t, b.Activate())
	user := f.user(t, 1, 2)
	require.NoError(t, user.Activate())

	require.NoError(t, b.UpdateField(targetSize, fields.Of(fields.Float(5)), true))
	assert.Equal(t, 1, f.sys[typeUser].depUpdates[user.Key()])
	assert.True(t, user.IsActive())

	f.sys[typeTarget].propagate = false
	require.NoError(t, b.UpdateField(targetSize, fields.Of(fields.Float(6)), true))
	assert.Equal(t, 1, f.sys[typeUser].depUpdates[user.Key()], "no propagation requested")
}

func TestPropagationReactivatesFrozenDependents(t *testing.T) {
	f := newFixture(t)
	f.sys[typeTarget].propagate = true
	f.sys[typeUser].frozenDeps[userTarget] = true
	b := f.add(t, 2, typeTarget)
	require.NoError(t, b.Activate())
	user := f.user(t, 1, 2)
	require.NoError(t, user.Activate())

	f.resetJournal()
	require.NoError(t, b.UpdateField(targetSize, fields.Of(fields.Float(5)), true))
	assert.Equal(t, []string{"live 2/target", "deactivate 1/user", "activate 1/user"}, f.journal)
	assert.True(t, user.IsActive())
}

func TestPropagationCycleTerminates(t *testing.T) {
	f := newFixture(t)
	f.sys[typePeer].propagate = true
	f.sys[typePeer].propagateDeps = true

	one := f.add(t, 1, typePeer)
	two := f.add(t, 2, typePeer)
	require.NoError(t, one.Activate())
	require.NoError(t, two.UpdateField(peerOther, fields.Of(fields.Entity(1)), true))
	require.NoError(t, two.Activate())
	// close the loop while both are active
	require.NoError(t, one.UpdateField(peerOther, fields.Of(fields.Entity(2)), true))
	require.True(t, one.IsActive())

	before := f.world.Stats().Cycles
	require.NoError(t, one.UpdateField(peerLabel, fields.Of(fields.String("go")), true))
	assert.Greater(t, f.world.Stats().Cycles, before)
	assert.True(t, one.IsActive())
	assert.True(t, two.IsActive())
}

func TestDeactivateCycleTerminates(t *testing.T) {
	f := newFixture(t)
	one := f.add(t, 1, typePeer)
	two := f.add(t, 2, typePeer)
	require.NoError(t, one.Activate())
	require.NoError(t, two.UpdateField(peerOther, fields.Of(fields.Entity(1)), true))
	require.NoError(t, two.Activate())
	require.NoError(t, one.UpdateField(peerOther, fields.Of(fields.Entity(2)), true))
	require.True(t, one.IsActive())
	require.True(t, two.IsActive())

	one.Deactivate()
	assert.False(t, one.IsActive())
	assert.False(t, two.IsActive())
	assert.Equal(t, 1, f.sys[typePeer].deactivations[one.Key()])
	assert.Equal(t, 1, f.sys[typePeer].deactivations[two.Key()])
}

func TestUndelegateDeactivatesWhenAuthorityRequired(t *testing.T) {
	f := newFixture(t)
	f.sys[typeTarget].requiresAuthority = true
	b := f.add(t, 2, typeTarget)
	b.Delegate()
	require.NoError(t, b.Activate())

	b.Undelegate()
	assert.False(t, b.IsAuthoritative())
	assert.False(t, b.IsActive())

	f.sys[typeTarget].requiresAuthority = false
	b.Delegate()
	require.NoError(t, b.Activate())
	b.Undelegate()
	assert.True(t, b.IsActive(), "authority not required to stay active")
}

func TestCascadeLimit(t *testing.T) {
	f := newFixture(t, WithMaxCascadeSteps(2))
	root := f.add(t, 1, typePeer)
	prev := models.EntityID(1)
	for id := models.EntityID(2); id <= 5; id++ {
		p := f.add(t, id, typePeer)
		require.NoError(t, p.UpdateField(peerOther, fields.Of(fields.Entity(prev)), true))
		prev = id
	}

	require.NoError(t, root.Activate())
	stats := f.world.Stats()
	assert.Equal(t, uint64(1), stats.CascadeLimits)
	assert.Equal(t, 3, stats.Active)
}
