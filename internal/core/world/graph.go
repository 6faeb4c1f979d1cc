package world

import (
	"fmt"

	"github.com/zeusync/replica/internal/core/models"
	"github.com/zeusync/replica/internal/core/schema"
)

// edge is an outgoing dependency of a component: field refers to target.
type edge struct {
	field  schema.FieldID
	target models.Key
}

// reverseEdge is the mirror of an edge, stored under the target key.
type reverseEdge struct {
	source handle
	field  schema.FieldID
}

// graph indexes dependency edges by source handle and by target key. Targets
// are keys because a dependency may name a component that does not exist yet.
type graph struct {
	forward map[handle][]edge
	reverse map[models.Key][]reverseEdge
	count   int
}

func newGraph() graph {
	return graph{
		forward: make(map[handle][]edge),
		reverse: make(map[models.Key][]reverseEdge),
	}
}

func (g *graph) add(src handle, e edge) {
	g.forward[src] = append(g.forward[src], e)
	g.reverse[e.target] = append(g.reverse[e.target], reverseEdge{source: src, field: e.field})
	g.count++
}

// remove deletes one occurrence of the edge. Removing an edge that was never
// added is a bookkeeping bug.
func (g *graph) remove(src handle, e edge) {
	out := g.forward[src]
	i := indexOf(out, e)
	if i < 0 {
		panic(fmt.Sprintf("world: removing unknown dependency field %d -> %s", e.field, e.target))
	}
	out = append(out[:i], out[i+1:]...)
	if len(out) == 0 {
		delete(g.forward, src)
	} else {
		g.forward[src] = out
	}

	in := g.reverse[e.target]
	j := indexOf(in, reverseEdge{source: src, field: e.field})
	if j < 0 {
		panic(fmt.Sprintf("world: reverse index missing field %d -> %s", e.field, e.target))
	}
	in = append(in[:j], in[j+1:]...)
	if len(in) == 0 {
		delete(g.reverse, e.target)
	} else {
		g.reverse[e.target] = in
	}
	g.count--
}

// outgoing returns the edges of src for one field, in insertion order.
func (g *graph) outgoing(src handle, field schema.FieldID) []edge {
	var out []edge
	for _, e := range g.forward[src] {
		if e.field == field {
			out = append(out, e)
		}
	}
	return out
}

func (g *graph) incoming(target models.Key) []reverseEdge {
	return g.reverse[target]
}

func indexOf[T comparable](list []T, v T) int {
	for i, item := range list {
		if item == v {
			return i
		}
	}
	return -1
}
