package world

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/zeusync/replica/internal/core/events/bus"
	"github.com/zeusync/replica/internal/core/models"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/schema"
)

// DefaultMaxCascadeSteps bounds activation and propagation traversals.
const DefaultMaxCascadeSteps = 1 << 16

// Stats is a snapshot of world counters.
type Stats struct {
	Entities      int
	Components    int
	Active        int
	Dependencies  int
	Activations   uint64
	Deactivations uint64
	Cycles        uint64
	CascadeLimits uint64
}

type entity struct {
	id         models.EntityID
	components map[models.TypeID]handle
	// authority holds the types this replica may author on the entity,
	// including ones without a component yet.
	authority map[models.TypeID]struct{}
}

// World owns entities, their components and the dependency graph between
// components. It is not safe for concurrent use; every call must come from
// the goroutine owning the world.
type World struct {
	schema   *schema.Schema
	systems  *Systems
	logger   log.Log
	bus      bus.EventBus
	maxSteps int

	entities map[models.EntityID]*entity
	arena    arena
	graph    graph
	stats    Stats
}

type Option func(*World)

func WithLogger(l log.Log) Option {
	return func(w *World) {
		w.logger = l
	}
}

// WithEventBus publishes world events on b.
func WithEventBus(b bus.EventBus) Option {
	return func(w *World) {
		w.bus = b
	}
}

func WithSystems(s *Systems) Option {
	return func(w *World) {
		w.systems = s
	}
}

func WithMaxCascadeSteps(n int) Option {
	return func(w *World) {
		if n > 0 {
			w.maxSteps = n
		}
	}
}

// New creates an empty world over s.
func New(s *schema.Schema, opts ...Option) *World {
	w := &World{
		schema:   s,
		maxSteps: DefaultMaxCascadeSteps,
		entities: make(map[models.EntityID]*entity),
		graph:    newGraph(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = log.NewNop()
	}
	if w.systems == nil {
		w.systems = NewSystems(nil)
	}
	w.logger = w.logger.With(log.String("component", "world"))
	return w
}

func (w *World) Schema() *schema.Schema {
	return w.schema
}

// Events returns the bus the world publishes on, or nil.
func (w *World) Events() bus.EventBus {
	return w.bus
}

func (w *World) AddEntity(id models.EntityID) error {
	if _, exists := w.entities[id]; exists {
		return fmt.Errorf("%w: %d", ErrEntityExists, id)
	}
	w.entities[id] = &entity{
		id:         id,
		components: make(map[models.TypeID]handle),
		authority:  make(map[models.TypeID]struct{}),
	}
	w.publish(EntityEvent{Kind: EventEntityAdded, Entity: id})
	return nil
}

// RemoveEntity releases every component of the entity, in type id order,
// and then the entity itself.
func (w *World) RemoveEntity(id models.EntityID) error {
	e, ok := w.entities[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrEntityNotFound, id)
	}
	for _, typeID := range slices.Sorted(maps.Keys(e.components)) {
		w.release(w.arena.get(e.components[typeID]))
	}
	delete(w.entities, id)
	w.publish(EntityEvent{Kind: EventEntityRemoved, Entity: id})
	return nil
}

func (w *World) HasEntity(id models.EntityID) bool {
	_, ok := w.entities[id]
	return ok
}

// Entities returns every entity id in ascending order.
func (w *World) Entities() []models.EntityID {
	return slices.Sorted(maps.Keys(w.entities))
}

// Components returns the components of an entity ordered by type id.
func (w *World) Components(id models.EntityID) []*Component {
	e, ok := w.entities[id]
	if !ok {
		return nil
	}
	out := make([]*Component, 0, len(e.components))
	for _, h := range e.components {
		out = append(out, w.arena.get(h))
	}
	slices.SortFunc(out, func(a, b *Component) int { return cmp.Compare(a.key.Type, b.key.Type) })
	return out
}

// AddComponent attaches a new component of type typeID to an entity. Fields
// start at their defaults. When the entity already carries an authority mark
// for the type, the component starts delegated.
func (w *World) AddComponent(id models.EntityID, typeID models.TypeID) (*Component, error) {
	e, ok := w.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrEntityNotFound, id)
	}
	ct, ok := w.schema.Lookup(typeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownComponentType, typeID)
	}
	if _, exists := e.components[typeID]; exists {
		return nil, fmt.Errorf("%w: %d/%s", ErrComponentExists, id, typeID)
	}

	c := newComponent(w, id, ct)
	c.handle = w.arena.insert(c)
	e.components[typeID] = c.handle
	w.publish(ComponentEvent{Kind: EventComponentAdded, Key: c.key})

	for i := 0; i < ct.NumFields(); i++ {
		if ct.Field(schema.FieldID(i)).IsDependency() {
			w.addEdges(c, schema.FieldID(i))
		}
	}
	if _, marked := e.authority[typeID]; marked {
		c.Delegate()
	}
	return c, nil
}

func (w *World) RemoveComponent(id models.EntityID, typeID models.TypeID) error {
	c, err := w.mustComponent(id, typeID)
	if err != nil {
		return err
	}
	w.release(c)
	return nil
}

// Component returns the component of type typeID on entity id.
func (w *World) Component(id models.EntityID, typeID models.TypeID) (*Component, bool) {
	c := w.lookup(models.Key{Entity: id, Type: typeID})
	return c, c != nil
}

func (w *World) mustComponent(id models.EntityID, typeID models.TypeID) (*Component, error) {
	e, ok := w.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrEntityNotFound, id)
	}
	h, ok := e.components[typeID]
	if !ok {
		return nil, fmt.Errorf("%w: %d/%s", ErrComponentNotFound, id, typeID)
	}
	return w.arena.get(h), nil
}

// DelegateComponent marks the type as authored by this replica on the entity
// and delegates the existing component, if any.
func (w *World) DelegateComponent(id models.EntityID, typeID models.TypeID) error {
	e, err := w.authorityTarget(id, typeID)
	if err != nil {
		return err
	}
	e.authority[typeID] = struct{}{}
	if h, ok := e.components[typeID]; ok {
		w.arena.get(h).Delegate()
	}
	return nil
}

// UndelegateComponent clears the authority mark and undelegates the existing
// component, if any.
func (w *World) UndelegateComponent(id models.EntityID, typeID models.TypeID) error {
	e, err := w.authorityTarget(id, typeID)
	if err != nil {
		return err
	}
	delete(e.authority, typeID)
	if h, ok := e.components[typeID]; ok {
		w.arena.get(h).Undelegate()
	}
	return nil
}

func (w *World) authorityTarget(id models.EntityID, typeID models.TypeID) (*entity, error) {
	e, ok := w.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrEntityNotFound, id)
	}
	if _, ok = w.schema.Lookup(typeID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownComponentType, typeID)
	}
	return e, nil
}

// IsDelegated reports whether the entity carries an authority mark for the type.
func (w *World) IsDelegated(id models.EntityID, typeID models.TypeID) bool {
	e, ok := w.entities[id]
	if !ok {
		return false
	}
	_, marked := e.authority[typeID]
	return marked
}

// DependencyCount returns the number of edges in the dependency graph.
func (w *World) DependencyCount() int {
	return w.graph.count
}

// Dependents returns the live components with a dependency edge to key, in
// edge order. A component depending on key through several edges is listed
// once per edge.
func (w *World) Dependents(key models.Key) []*Component {
	var out []*Component
	w.forEachReverseDependency(key, func(c *Component, _ schema.FieldID) {
		out = append(out, c)
	})
	return out
}

func (w *World) Stats() Stats {
	s := w.stats
	s.Entities = len(w.entities)
	s.Components = w.arena.len()
	s.Dependencies = w.graph.count
	return s
}

// release deactivates c, drops its edges and detaches it from its entity.
func (w *World) release(c *Component) {
	w.deactivate(c)
	for i := 0; i < c.ctype.NumFields(); i++ {
		if c.ctype.Field(schema.FieldID(i)).IsDependency() {
			w.removeEdges(c, schema.FieldID(i))
		}
	}
	if len(w.graph.forward[c.handle]) != 0 {
		panic(fmt.Sprintf("world: %s released with %d edges", c.key, len(w.graph.forward[c.handle])))
	}
	delete(w.entities[c.key.Entity].components, c.key.Type)
	w.arena.remove(c.handle)
	c.values = nil
	c.released = true
	w.publish(ComponentEvent{Kind: EventComponentRemoved, Key: c.key})
}

func (w *World) lookup(key models.Key) *Component {
	e, ok := w.entities[key.Entity]
	if !ok {
		return nil
	}
	h, ok := e.components[key.Type]
	if !ok {
		return nil
	}
	return w.arena.get(h)
}

func (w *World) addDependency(src *Component, f schema.FieldID, target models.Key) {
	w.graph.add(src.handle, edge{field: f, target: target})
	w.publish(DependencyEvent{Kind: EventDependencyAdded, Source: src.key, Field: f, Target: target})
}

func (w *World) removeDependency(src *Component, f schema.FieldID, target models.Key) {
	w.graph.remove(src.handle, edge{field: f, target: target})
	w.publish(DependencyEvent{Kind: EventDependencyRemoved, Source: src.key, Field: f, Target: target})
}

// forEachReverseDependency visits the live components with an edge to key.
// Edges whose source no longer exists are skipped.
func (w *World) forEachReverseDependency(key models.Key, visit func(*Component, schema.FieldID)) {
	// visit may change the graph; iterate over a snapshot
	edges := slices.Clone(w.graph.incoming(key))
	for _, re := range edges {
		if c := w.arena.get(re.source); c != nil {
			visit(c, re.field)
		}
	}
}

func (w *World) onActivate(c *Component) {
	w.stats.Active++
	w.stats.Activations++
	w.publish(ComponentEvent{Kind: EventComponentActivated, Key: c.key})
}

func (w *World) onDeactivate(c *Component) {
	w.stats.Active--
	w.stats.Deactivations++
	w.publish(ComponentEvent{Kind: EventComponentDeactivated, Key: c.key})
}

func (w *World) onUpdateField(c *Component, f schema.FieldID, canonical bool) {
	w.publish(FieldEvent{Key: c.key, Field: f, Value: c.values[f].Clone(), Canonical: canonical})
}
