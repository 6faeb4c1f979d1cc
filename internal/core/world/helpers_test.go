package world

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeusync/replica/internal/core/fields"
	"github.com/zeusync/replica/internal/core/models"
	"github.com/zeusync/replica/internal/core/schema"
)

const (
	typeTarget models.TypeID = "target"
	typeUser   models.TypeID = "user"
	typeList   models.TypeID = "list"
	typePeer   models.TypeID = "peer"
)

// field ids
const (
	targetSize schema.FieldID = 0

	userTarget schema.FieldID = 0
	userSpeed  schema.FieldID = 1

	listTargets schema.FieldID = 0

	peerOther schema.FieldID = 0
	peerLabel schema.FieldID = 1
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s := schema.New()
	require.NoError(t, s.Register(schema.MustComponentType(typeTarget,
		schema.ValueField("size", fields.KindFloat, false),
	)))
	require.NoError(t, s.Register(schema.MustComponentType(typeUser,
		schema.DependencyField("target", typeTarget, false, false),
		schema.ValueField("speed", fields.KindFloat, false),
	)))
	require.NoError(t, s.Register(schema.MustComponentType(typeList,
		schema.DependencyField("targets", typeTarget, true, false),
	)))
	require.NoError(t, s.Register(schema.MustComponentType(typePeer,
		schema.DependencyField("other", typePeer, false, true),
		schema.ValueField("label", fields.KindString, true),
	)))
	return s
}

// recorder is a System that records every callback into a shared journal.
type recorder struct {
	journal *[]string

	requiresAuthority bool
	frozen            map[schema.FieldID]bool // fields that cannot live update
	frozenDeps        map[schema.FieldID]bool
	propagate         bool
	propagateDeps     bool
	fail              error
	nilResource       bool

	activations   map[models.Key]int
	deactivations map[models.Key]int
	liveUpdates   map[models.Key]int
	depUpdates    map[models.Key]int
}

func newRecorder(journal *[]string) *recorder {
	return &recorder{
		journal:       journal,
		frozen:        make(map[schema.FieldID]bool),
		frozenDeps:    make(map[schema.FieldID]bool),
		activations:   make(map[models.Key]int),
		deactivations: make(map[models.Key]int),
		liveUpdates:   make(map[models.Key]int),
		depUpdates:    make(map[models.Key]int),
	}
}

func (r *recorder) note(what string, c *Component) {
	*r.journal = append(*r.journal, what+" "+c.Key().String())
}

func (r *recorder) Activate(c *Component) (any, error) {
	r.activations[c.Key()]++
	r.note("activate", c)
	if r.fail != nil {
		return nil, r.fail
	}
	if r.nilResource {
		return nil, nil
	}
	return c.Key().String(), nil
}

func (r *recorder) Deactivate(c *Component, resource any) {
	if resource == nil {
		panic("deactivate without resource")
	}
	r.deactivations[c.Key()]++
	r.note("deactivate", c)
}

func (r *recorder) CanLiveUpdateField(f schema.FieldID) bool { return !r.frozen[f] }

func (r *recorder) LiveUpdateField(c *Component, _ schema.FieldID) bool {
	r.liveUpdates[c.Key()]++
	r.note("live", c)
	return r.propagate
}

func (r *recorder) CanLiveUpdateDependencyField(f schema.FieldID) bool { return !r.frozenDeps[f] }

func (r *recorder) LiveUpdateDependencyField(c *Component, _ schema.FieldID) bool {
	r.depUpdates[c.Key()]++
	r.note("dep", c)
	return r.propagateDeps
}

func (r *recorder) RequiresAuthority() bool { return r.requiresAuthority }

type fixture struct {
	world   *World
	journal []string
	sys     map[models.TypeID]*recorder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{sys: make(map[models.TypeID]*recorder)}
	systems := NewSystems(nil)
	for _, id := range []models.TypeID{typeTarget, typeUser, typeList, typePeer} {
		r := newRecorder(&f.journal)
		f.sys[id] = r
		require.NoError(t, systems.Register(id, r))
	}
	f.world = New(testSchema(t), append([]Option{WithSystems(systems)}, opts...)...)
	return f
}

func (f *fixture) add(t *testing.T, id models.EntityID, typeID models.TypeID) *Component {
	t.Helper()
	if !f.world.HasEntity(id) {
		require.NoError(t, f.world.AddEntity(id))
	}
	c, err := f.world.AddComponent(id, typeID)
	require.NoError(t, err)
	return c
}

// user adds a user component on entity id pointing at the target on entity to.
func (f *fixture) user(t *testing.T, id, to models.EntityID) *Component {
	t.Helper()
	c := f.add(t, id, typeUser)
	require.NoError(t, c.UpdateField(userTarget, fields.Of(fields.Entity(to)), true))
	return c
}

func (f *fixture) resetJournal() {
	f.journal = f.journal[:0]
}

var errBoom = errors.New("boom")
