package world

import (
	"fmt"

	"github.com/zeusync/replica/internal/core/models"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/schema"
	"github.com/zeusync/replica/pkg/sequence"
)

// activate activates root and then walks its dependents breadth first,
// activating each one that passes its own guards. Only the root's outcome is
// returned; dependents fail independently.
func (w *World) activate(root *Component) error {
	if root.IsActive() {
		return nil
	}
	if err := root.activateSelf(); err != nil {
		return err
	}

	// A component is enqueued once per dependency that became active, so a
	// dependent failing early is retried when its next dependency comes up.
	queue := sequence.NewQueue[*Component](8)
	w.enqueueDependents(queue, root)

	steps := 0
	for !queue.IsEmpty() {
		c, _ := queue.Dequeue()
		if c.IsActive() {
			continue
		}
		if steps++; steps > w.maxSteps {
			w.cascadeLimit("activate", root)
			break
		}
		if err := c.activateSelf(); err != nil {
			w.logger.Debug("Dependent stayed inactive",
				log.Stringer("component", c.key),
				log.Stringer("trigger", root.key),
				log.Error(err),
			)
			continue
		}
		w.enqueueDependents(queue, c)
	}
	return nil
}

func (w *World) enqueueDependents(queue *sequence.Queue[*Component], c *Component) {
	w.forEachReverseDependency(c.key, func(dep *Component, _ schema.FieldID) {
		queue.Enqueue(dep)
	})
}

// deactivate tears down root after every active component that depends on it,
// directly or transitively. Dependents are torn down before the components
// they depend on; each component is torn down once.
func (w *World) deactivate(root *Component) {
	if !root.IsActive() {
		return
	}

	type frame struct {
		c    *Component
		deps []*Component
		next int
	}

	visited := map[handle]struct{}{root.handle: {}}
	var order []*Component
	stack := []*frame{{c: root, deps: w.activeDependents(root)}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next == len(top.deps) {
			order = append(order, top.c)
			stack = stack[:len(stack)-1]
			continue
		}
		dep := top.deps[top.next]
		top.next++
		if _, seen := visited[dep.handle]; seen {
			continue
		}
		visited[dep.handle] = struct{}{}
		stack = append(stack, &frame{c: dep, deps: w.activeDependents(dep)})
	}

	for _, c := range order {
		c.deactivateSelf()
	}
}

func (w *World) activeDependents(c *Component) []*Component {
	var out []*Component
	w.forEachReverseDependency(c.key, func(dep *Component, _ schema.FieldID) {
		if dep.IsActive() {
			out = append(out, dep)
		}
	})
	return out
}

// notice is one pending dependency notification: c must react to a change
// behind its dependency field.
type notice struct {
	c      *Component
	field  schema.FieldID
	parent *notice
}

func (n *notice) onPath(h handle) bool {
	for p := n.parent; p != nil; p = p.parent {
		if p.c.handle == h {
			return true
		}
	}
	return false
}

func (n *notice) path() []models.Key {
	var keys []models.Key
	for p := n; p != nil; p = p.parent {
		keys = append(keys, p.c.key)
	}
	for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
		keys[i], keys[j] = keys[j], keys[i]
	}
	return keys
}

// propagate notifies the dependents of root after a live update asked for it.
// Each active dependent absorbs the change in place when its System can,
// otherwise it is deactivated and activated again. A dependent reached twice
// over the same field is notified once; one reached again through its own
// downstream chain is a cycle and is not notified again.
func (w *World) propagate(root *Component) {
	type seenKey struct {
		h     handle
		field schema.FieldID
	}

	start := &notice{c: root}
	queue := sequence.NewQueue[*notice](8)
	w.enqueueNotices(queue, start)

	visited := make(map[seenKey]struct{})
	steps := 0
	for !queue.IsEmpty() {
		n, _ := queue.Dequeue()
		if n.onPath(n.c.handle) {
			w.dependencyCycle(n)
			continue
		}
		k := seenKey{h: n.c.handle, field: n.field}
		if _, seen := visited[k]; seen {
			continue
		}
		visited[k] = struct{}{}
		if steps++; steps > w.maxSteps {
			w.cascadeLimit("propagate", root)
			return
		}

		c := n.c
		if !c.IsActive() {
			continue
		}
		if c.system.CanLiveUpdateDependencyField(n.field) {
			if c.system.LiveUpdateDependencyField(c, n.field) {
				w.enqueueNotices(queue, n)
			}
			continue
		}
		w.deactivate(c)
		if err := w.activate(c); err != nil {
			w.logger.Debug("Dependent stayed inactive after reactivation",
				log.Stringer("component", c.key),
				log.Stringer("trigger", root.key),
				log.Error(err),
			)
		}
	}
}

func (w *World) enqueueNotices(queue *sequence.Queue[*notice], from *notice) {
	w.forEachReverseDependency(from.c.key, func(dep *Component, field schema.FieldID) {
		queue.Enqueue(&notice{c: dep, field: field, parent: from})
	})
}

func (w *World) dependencyCycle(n *notice) {
	path := n.path()
	w.stats.Cycles++
	w.logger.Warn("Dependency cycle during propagation",
		log.Stringer("component", n.c.key),
		log.Int("length", len(path)),
		log.Error(fmt.Errorf("%w: %v", ErrDependencyCycle, path)),
	)
	w.publish(CycleEvent{Path: path})
}

func (w *World) cascadeLimit(kind string, root *Component) {
	w.stats.CascadeLimits++
	w.logger.Error("Cascade stopped",
		log.String("cascade", kind),
		log.Stringer("component", root.key),
		log.Int("max_steps", w.maxSteps),
		log.Error(ErrCascadeLimit),
	)
}

// addEdges registers the edges implied by the current value of dependency
// field f. An active component whose new target is missing or inactive is
// deactivated.
func (w *World) addEdges(c *Component, f schema.FieldID) {
	field := c.ctype.Field(f)
	satisfied := true
	for _, id := range c.values[f].EntityIDs() {
		target := models.Key{Entity: id, Type: field.Dependency}
		w.addDependency(c, f, target)
		if t := w.lookup(target); t == nil || !t.IsActive() {
			satisfied = false
		}
	}
	if !satisfied && c.IsActive() {
		w.deactivate(c)
	}
}

// removeEdges drops every edge owned by dependency field f.
func (w *World) removeEdges(c *Component, f schema.FieldID) {
	for _, e := range w.graph.outgoing(c.handle, f) {
		w.removeDependency(c, e.field, e.target)
	}
}
