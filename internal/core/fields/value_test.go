package fields

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsetValuesCompareEqual(t *testing.T) {
	assert.True(t, Equal(Unset(KindFloat), Unset(KindFloat)))
	assert.False(t, Equal(Unset(KindFloat), Zero(KindFloat)))
	assert.True(t, Equal(Zero(KindEntities), Of(Entities(nil))))
}

func TestEqualPanicsOnKindMismatch(t *testing.T) {
	assert.Panics(t, func() { Equal(Zero(KindInt), Zero(KindFloat)) })
}

func TestAssignDeepCopies(t *testing.T) {
	src := Of(Bytes{1, 2, 3})
	dst := Unset(KindBytes)
	dst.Assign(src)
	require.True(t, Equal(src, dst))

	raw, _ := As[Bytes](src)
	raw[0] = 9
	assert.False(t, Equal(src, dst), "assign must not alias the source buffer")

	dst.Assign(dst)
	got, _ := As[Bytes](dst)
	assert.Equal(t, Bytes{1, 2, 3}, got)
}

func TestAssignKeepsKind(t *testing.T) {
	dst := Zero(KindInt)
	assert.Panics(t, func() { dst.Assign(Zero(KindString)) })
	assert.Panics(t, func() { dst.Set(String("x")) })

	dst.Assign(Unset(KindInt))
	assert.False(t, dst.IsSet())
	assert.Equal(t, KindInt, dst.Kind())
}

func TestClearReleasesPayload(t *testing.T) {
	v := Of(Entities{1, 2})
	v.Clear()
	assert.False(t, v.IsSet())
	assert.Equal(t, KindEntities, v.Kind())
	assert.Nil(t, v.Payload())
}

func TestCloneIsIndependent(t *testing.T) {
	v := Of(Entities{1, 2})
	c := v.Clone()
	ids, _ := As[Entities](v)
	ids[0] = 5
	got, _ := As[Entities](c)
	assert.Equal(t, Entities{1, 2}, got)
}

func TestVectorPayloads(t *testing.T) {
	v := Of(Vector3(mgl32.Vec3{1, 2, 3}))
	p, ok := As[Vector3](v)
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, p.Vec())
	assert.InDelta(t, 3.7416, p.Vec().Len(), 1e-3)

	_, ok = As[Vector2](v)
	assert.False(t, ok)
}

func TestParseKind(t *testing.T) {
	for k := Kind(0); k < kindCount; k++ {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("quaternion")
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Equal(t, "kind(200)", Kind(200).String())
}
