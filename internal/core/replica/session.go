package replica

import (
	"context"
	"fmt"
	"time"

	"github.com/zeusync/replica/internal/core/fields"
	"github.com/zeusync/replica/internal/core/models"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/schema"
	"github.com/zeusync/replica/internal/core/world"
)

// DefaultPollInterval is the Run tick when none is given.
const DefaultPollInterval = 10 * time.Millisecond

// SessionStats counts the ops a session processed.
type SessionStats struct {
	Applied   uint64
	Failed    uint64
	Malformed uint64
	Sent      uint64
}

// Session drives a replica world from a transport. It owns the world: Poll,
// Run, and Update must all be called from one goroutine.
type Session struct {
	transport protocol.Transport
	world     *world.World
	logger    log.Log

	connected bool
	finished  bool
	reason    string
	stats     SessionStats

	// OnStatus, when set, sees every applied op with its outcome.
	OnStatus func(op protocol.Op, status protocol.Status)
}

func NewSession(t protocol.Transport, w *world.World, logger log.Log) *Session {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Session{
		transport: t,
		world:     w,
		logger:    logger.With(log.String("component", "replica")),
	}
}

func (s *Session) World() *world.World {
	return s.world
}

func (s *Session) Stats() SessionStats {
	return s.stats
}

func (s *Session) Connected() bool {
	return s.connected
}

// Finished reports whether the transport disconnected. DisconnectReason
// then tells why.
func (s *Session) Finished() bool {
	return s.finished
}

func (s *Session) DisconnectReason() string {
	return s.reason
}

// Poll handles every pending transport event and returns how many it
// handled.
func (s *Session) Poll() int {
	n := 0
	for !s.finished && s.transport.ReceiveEvent(s.handle) {
		n++
	}
	return n
}

func (s *Session) handle(ev protocol.Event) {
	switch ev.Kind {
	case protocol.EventConnected:
		s.connected = true
		s.logger.Info("Connected")
	case protocol.EventDisconnected:
		s.connected = false
		s.finished = true
		s.reason = ev.Reason
		s.logger.Info("Disconnected", log.String("reason", ev.Reason))
	case protocol.EventMessage:
		s.receive(ev.Data)
	}
}

func (s *Session) receive(data []byte) {
	op, err := protocol.UnmarshalOp(data)
	if err != nil {
		s.stats.Malformed++
		s.logger.Warn("Discarding malformed op", log.Int("size", len(data)), log.Error(err))
		return
	}

	status := Apply(s.world, op)
	if status.Ok() {
		s.stats.Applied++
	} else {
		s.stats.Failed++
		s.logger.Debug("Op not applied",
			log.Stringer("op", op),
			log.Stringer("status", status),
		)
	}
	if s.OnStatus != nil {
		s.OnStatus(op, status)
	}
}

// Run polls every interval until ctx is done or the transport disconnects.
// A disconnect is reported as ErrDisconnected carrying the reason.
func (s *Session) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.Poll()
		if s.finished {
			return fmt.Errorf("%w: %s", ErrDisconnected, s.reason)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Update changes a field of a component delegated to this replica and
// forwards the change to the server. The local world is updated first; a
// change it rejects is not sent.
func (s *Session) Update(id models.EntityID, typeID models.TypeID, f schema.FieldID, value fields.Value) error {
	c, ok := s.world.Component(id, typeID)
	if !ok {
		return fmt.Errorf("%w: %s", world.ErrComponentNotFound, models.Key{Entity: id, Type: typeID})
	}
	if !c.ComponentType().HasField(f) {
		return fmt.Errorf("%w: %s has no field %d", world.ErrInvalidFieldType, c.Key(), f)
	}
	if err := c.UpdateField(f, value, false); err != nil {
		return err
	}
	return s.Send(protocol.UpdateComponent(id, typeID, f, value))
}

// Send encodes op and writes it to the transport.
func (s *Session) Send(op protocol.Op) error {
	if s.finished {
		return fmt.Errorf("%w: %s", ErrDisconnected, s.reason)
	}
	if err := s.transport.SendMessage(protocol.MarshalOp(op)); err != nil {
		return err
	}
	s.stats.Sent++
	return nil
}

func (s *Session) Close() error {
	return s.transport.Close()
}
