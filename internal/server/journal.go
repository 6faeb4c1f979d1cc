package server

import (
	"github.com/zeusync/replica/internal/core/events/bus"
	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/world"
)

// entry is one journaled op. origin names the session whose op caused it,
// empty for changes made by the server itself.
type entry struct {
	op     protocol.Op
	origin string
}

// Journal records canonical world changes as ops for replicas. It is fed
// synchronously by the world's event bus, so it lives on the goroutine that
// owns the world.
type Journal struct {
	entries []entry
	origin  string
	subs    []bus.Subscription
}

var journaled = []string{
	world.EventEntityAdded,
	world.EventEntityRemoved,
	world.EventComponentAdded,
	world.EventComponentRemoved,
	world.EventComponentUpdated,
	world.EventComponentActivated,
	world.EventComponentDeactivated,
}

// NewJournal subscribes a journal to b.
func NewJournal(b bus.EventBus) (*Journal, error) {
	j := &Journal{}
	for _, eventType := range journaled {
		sub, err := b.Subscribe(eventType, j.record)
		if err != nil {
			j.Close(b)
			return nil, err
		}
		j.subs = append(j.subs, sub)
	}
	return j, nil
}

// Close unsubscribes the journal from b.
func (j *Journal) Close(b bus.EventBus) {
	for _, sub := range j.subs {
		_ = b.Unsubscribe(sub)
	}
	j.subs = nil
}

func (j *Journal) record(ev bus.Event) error {
	var op protocol.Op
	switch e := ev.(type) {
	case world.EntityEvent:
		if e.Kind == world.EventEntityAdded {
			op = protocol.AddEntity(e.Entity)
		} else {
			op = protocol.RemoveEntity(e.Entity)
		}
	case world.ComponentEvent:
		switch e.Kind {
		case world.EventComponentAdded:
			op = protocol.AddComponent(e.Key.Entity, e.Key.Type)
		case world.EventComponentRemoved:
			op = protocol.RemoveComponent(e.Key.Entity, e.Key.Type)
		case world.EventComponentActivated:
			op = protocol.ActivateComponent(e.Key.Entity, e.Key.Type)
		case world.EventComponentDeactivated:
			op = protocol.DeactivateComponent(e.Key.Entity, e.Key.Type)
		default:
			return nil
		}
	case world.FieldEvent:
		j.entries = append(j.entries, entry{
			op:     protocol.UpdateComponent(e.Key.Entity, e.Key.Type, e.Field, e.Value),
			origin: j.origin,
		})
		return nil
	default:
		return nil
	}
	j.entries = append(j.entries, entry{op: op})
	return nil
}

// attribute runs fn with the field updates it causes credited to origin, so
// they are not echoed back to it. Cascades fn triggers are still sent.
func (j *Journal) attribute(origin string, fn func()) {
	j.origin = origin
	defer func() { j.origin = "" }()
	fn()
}

// Len returns the number of pending ops.
func (j *Journal) Len() int {
	return len(j.entries)
}

// drain returns the pending entries and empties the journal.
func (j *Journal) drain() []entry {
	out := j.entries
	j.entries = nil
	return out
}
