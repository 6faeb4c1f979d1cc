package server

import (
	"time"

	"github.com/zeusync/replica/internal/core/models"
	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/schema"
	"github.com/zeusync/replica/internal/core/world"
)

// ClientSession represents a connected replica. Everything but Transport is
// owned by the server loop.
type ClientSession struct {
	ID          string
	Transport   protocol.Transport
	ConnectedAt time.Time

	// grants are the components this client may author.
	grants map[models.Key]struct{}
	gone   bool
	reason string
	// sendErr is set by the broadcast goroutine serving this session.
	sendErr error

	stats ClientStats
}

// ClientStats counts the ops one client sent.
type ClientStats struct {
	Applied   uint64
	Rejected  uint64
	Malformed uint64
	Throttled uint64
}

func newClientSession(id string, t protocol.Transport, grants []models.Key) *ClientSession {
	cs := &ClientSession{
		ID:          id,
		Transport:   t,
		ConnectedAt: time.Now(),
		grants:      make(map[models.Key]struct{}, len(grants)),
	}
	for _, key := range grants {
		cs.grants[key] = struct{}{}
	}
	return cs
}

func (cs *ClientSession) send(ops ...protocol.Op) error {
	for _, op := range ops {
		if err := cs.Transport.SendMessage(protocol.MarshalOp(op)); err != nil {
			return err
		}
	}
	return nil
}

// sendEntries sends journaled ops, leaving out the echo of this client's own
// field updates.
func (cs *ClientSession) sendEntries(entries []entry) error {
	for _, e := range entries {
		if e.origin == cs.ID {
			continue
		}
		if err := cs.send(e.op); err != nil {
			return err
		}
	}
	return nil
}

// snapshot returns the ops that rebuild w on an empty replica: every entity
// with its components and their current values, the client's grants, and
// finally the activations.
func snapshot(w *world.World, grants map[models.Key]struct{}) []protocol.Op {
	var ops, activations []protocol.Op
	for _, id := range w.Entities() {
		ops = append(ops, protocol.AddEntity(id))
		for _, c := range w.Components(id) {
			values := make([]protocol.FieldValue, 0, c.ComponentType().NumFields())
			for i, v := range c.Values() {
				values = append(values, protocol.FieldValue{Field: schema.FieldID(i), Value: v})
			}
			ops = append(ops, protocol.AddComponent(id, c.TypeID(), values...))
			if c.IsActive() {
				activations = append(activations, protocol.ActivateComponent(id, c.TypeID()))
			}
		}
	}
	for _, key := range sortedKeys(grants) {
		ops = append(ops, protocol.DelegateComponent(key.Entity, key.Type))
	}
	return append(ops, activations...)
}
