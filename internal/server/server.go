package server

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/replica/internal/core/models"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/protocol/quic"
	"github.com/zeusync/replica/internal/core/replica"
	"github.com/zeusync/replica/internal/core/world"
	"github.com/zeusync/replica/pkg/concurrent"
	"github.com/zeusync/replica/pkg/sequence"
)

// Server owns the canonical world and keeps every connected replica in step
// with it. A single loop goroutine touches the world; everything else hands
// work to it.
type Server struct {
	config      Config
	logger      log.Log
	world       *world.World
	journal     *Journal
	fingerprint uint64
	limiter     *rateLimiter
	ids         *models.IDAllocator

	// Client management, owned by the loop
	sessions    map[string]*ClientSession
	clientCount int64 // atomic

	tasks chan task

	// Server state
	running int32 // atomic bool
	closed  int32 // atomic bool

	httpServer   *http.Server
	httpAddr     atomic.Value // net.Addr
	quicListener *quic.Listener

	// Background workers
	workerGroup sync.WaitGroup
	stopChan    chan struct{}
}

type task struct {
	fn   func() error
	done chan error
}

// NewServer creates a server around w. The world must publish on an event
// bus; the server journals its changes from there.
func NewServer(config Config, w *world.World, logger log.Log) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if w.Events() == nil {
		return nil, ErrNoEventBus
	}
	if logger == nil {
		logger = log.Provide()
	}
	logger = logger.With(log.String("component", "server"))

	journal, err := NewJournal(w.Events())
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe journal: %w", err)
	}

	server := &Server{
		config:      config,
		logger:      logger,
		world:       w,
		journal:     journal,
		fingerprint: w.Schema().Fingerprint(),
		limiter:     newRateLimiter(config.MaxMessagesPerSecond, time.Second, logger),
		ids:         models.NewIDAllocator(),
		sessions:    make(map[string]*ClientSession),
		tasks:       make(chan task),
		stopChan:    make(chan struct{}),
	}

	server.logger.Info("Server created",
		log.String("http_addr", config.HTTPAddr),
		log.String("quic_addr", config.QUICAddr),
		log.String("fingerprint", protocol.FormatFingerprint(server.fingerprint)),
		log.Int("max_clients", config.MaxClients))

	return server, nil
}

// Fingerprint returns the schema fingerprint clients must present.
func (s *Server) Fingerprint() uint64 {
	return s.fingerprint
}

// Start starts the loop and the configured listeners.
func (s *Server) Start(ctx context.Context) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	s.logger.Info("Starting server")

	s.workerGroup.Add(1)
	go s.loop()

	if s.config.HTTPAddr != "" {
		if err := s.startHTTP(); err != nil {
			_ = s.Stop(ctx)
			return err
		}
	}
	if s.config.QUICAddr != "" {
		if err := s.startQUIC(); err != nil {
			_ = s.Stop(ctx)
			return err
		}
	}

	s.logger.Info("Server started successfully")
	return nil
}

// Stop stops the listeners and the loop and disconnects every client.
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}

	s.logger.Info("Stopping server")

	close(s.stopChan)

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("HTTP shutdown incomplete", log.Error(err))
		}
	}
	if s.quicListener != nil {
		_ = s.quicListener.Close()
	}

	s.workerGroup.Wait()

	// The loop is gone; the sessions are ours now.
	for _, cs := range s.sessions {
		s.detach(cs, "server stopped")
	}

	s.logger.Info("Server stopped")
	return nil
}

// Close closes the server and releases all resources
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}

	if atomic.LoadInt32(&s.running) == 1 {
		_ = s.Stop(context.Background())
	}
	s.journal.Close(s.world.Events())

	s.logger.Info("Server closed")
	return nil
}

// Do runs fn on the loop goroutine with the canonical world and broadcasts
// whatever it changed. It must not be called from inside fn.
func (s *Server) Do(fn func(w *world.World) error) error {
	return s.run(func() error {
		return fn(s.world)
	})
}

// Spawn adds an entity under an allocated id and lets fn populate it on the
// loop goroutine. Ids already taken in the world are skipped. If fn fails
// the entity is removed again and its id freed.
func (s *Server) Spawn(fn func(w *world.World, id models.EntityID) error) (models.EntityID, error) {
	var id models.EntityID
	err := s.run(func() error {
		id = s.ids.Allocate()
		for s.world.HasEntity(id) {
			id = s.ids.Allocate()
		}
		if err := s.world.AddEntity(id); err != nil {
			return err
		}
		if fn == nil {
			return nil
		}
		if err := fn(s.world, id); err != nil {
			_ = s.world.RemoveEntity(id)
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Server) run(fn func() error) error {
	if atomic.LoadInt32(&s.running) == 0 {
		return ErrServerNotRunning
	}
	t := task{fn: fn, done: make(chan error, 1)}
	select {
	case s.tasks <- t:
	case <-s.stopChan:
		return ErrServerNotRunning
	}
	select {
	case err := <-t.done:
		return err
	case <-s.stopChan:
		return ErrServerNotRunning
	}
}

// Attach connects a replica over t. The client first receives a snapshot of
// the world and from then on every change. grants are the components it may
// author from the start; grants on missing entities are ignored.
func (s *Server) Attach(t protocol.Transport, grants ...models.Key) (string, error) {
	id := uuid.NewString()
	if identified, ok := t.(interface{ ID() string }); ok {
		id = identified.ID()
	}

	err := s.run(func() error {
		if len(s.sessions) >= s.config.MaxClients {
			return ErrMaxClientsReached
		}
		s.flush()

		live := slices.DeleteFunc(slices.Clone(grants), func(key models.Key) bool {
			return !s.world.HasEntity(key.Entity)
		})
		cs := newClientSession(id, t, live)
		if err := cs.send(snapshot(s.world, cs.grants)...); err != nil {
			return fmt.Errorf("failed to send snapshot: %w", err)
		}
		s.sessions[id] = cs
		atomic.AddInt64(&s.clientCount, 1)

		s.logger.Info("Client connected",
			log.String("client_id", id),
			log.Int("grants", len(cs.grants)),
			log.Int64("total_clients", atomic.LoadInt64(&s.clientCount)))
		return nil
	})
	if err != nil {
		s.logger.Warn("Rejected client", log.String("client_id", id), log.Error(err))
		_ = t.Close()
		return "", err
	}
	return id, nil
}

// Grant lets a client author the component at key.
func (s *Server) Grant(clientID string, key models.Key) error {
	return s.run(func() error {
		cs, ok := s.sessions[clientID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
		}
		if !s.world.HasEntity(key.Entity) {
			return fmt.Errorf("%w: %d", world.ErrEntityNotFound, key.Entity)
		}
		if _, known := s.world.Schema().Lookup(key.Type); !known {
			return fmt.Errorf("%w: %s", world.ErrUnknownComponentType, key.Type)
		}
		cs.grants[key] = struct{}{}
		s.logger.Info("Granted authority", log.String("client_id", clientID), log.Stringer("component", key))
		return cs.send(protocol.DelegateComponent(key.Entity, key.Type))
	})
}

// Revoke takes back a grant.
func (s *Server) Revoke(clientID string, key models.Key) error {
	return s.run(func() error {
		cs, ok := s.sessions[clientID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
		}
		if _, granted := cs.grants[key]; !granted {
			return nil
		}
		delete(cs.grants, key)
		s.logger.Info("Revoked authority", log.String("client_id", clientID), log.Stringer("component", key))
		return cs.send(protocol.UndelegateComponent(key.Entity, key.Type))
	})
}

// ClientStats returns the counters of one client.
func (s *Server) ClientStats(clientID string) (ClientStats, error) {
	var stats ClientStats
	err := s.run(func() error {
		cs, ok := s.sessions[clientID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
		}
		stats = cs.stats
		return nil
	})
	return stats, err
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	return int(atomic.LoadInt64(&s.clientCount))
}

func (s *Server) loop() {
	defer s.workerGroup.Done()
	s.logger.Debug("Server loop started")
	defer s.logger.Debug("Server loop stopped")

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case t := <-s.tasks:
			t.done <- t.fn()
			s.flush()
		case <-ticker.C:
			s.step()
		}
	}
}

// step handles every pending client event and broadcasts the result.
func (s *Server) step() {
	now := time.Now()
	for _, cs := range s.sessions {
		s.poll(cs, now)
	}
	for _, cs := range s.sessions {
		if cs.gone {
			s.detach(cs, cs.reason)
		}
	}
	s.flush()
}

func (s *Server) poll(cs *ClientSession, now time.Time) {
	handle := func(ev protocol.Event) {
		switch ev.Kind {
		case protocol.EventDisconnected:
			cs.gone = true
			cs.reason = ev.Reason
		case protocol.EventMessage:
			s.receive(cs, ev.Data, now)
		}
	}
	for !cs.gone {
		if !cs.Transport.ReceiveEvent(handle) {
			return
		}
	}
}

func (s *Server) receive(cs *ClientSession, data []byte, now time.Time) {
	if !s.limiter.allow(cs.ID, now) {
		cs.stats.Throttled++
		return
	}
	op, err := protocol.UnmarshalOp(data)
	if err != nil {
		cs.stats.Malformed++
		s.logger.Warn("Discarding malformed op", log.String("client_id", cs.ID), log.Error(err))
		return
	}
	s.handleOp(cs, op)
}

// handleOp applies a client op. Clients may only update fields of components
// they were granted; anything else is rejected and the client is sent the
// canonical value back.
func (s *Server) handleOp(cs *ClientSession, op protocol.Op) {
	clientLogger := s.logger.With(log.String("client_id", cs.ID))

	switch op.Kind {
	case protocol.OpNoOp:
		return
	case protocol.OpUpdateComponent:
	default:
		cs.stats.Rejected++
		clientLogger.Warn("Client sent a server-only op", log.Stringer("op", op))
		return
	}

	if _, granted := cs.grants[op.Key()]; !granted {
		cs.stats.Rejected++
		clientLogger.Warn("Rejected update without authority", log.Stringer("op", op))
		s.resync(cs, op)
		return
	}

	var status protocol.Status
	s.journal.attribute(cs.ID, func() {
		status = replica.Apply(s.world, op)
	})
	if !status.Ok() {
		cs.stats.Rejected++
		clientLogger.Debug("Client update not applied", log.Stringer("op", op), log.Stringer("status", status))
		s.resync(cs, op)
		return
	}
	cs.stats.Applied++
}

// resync sends a client the canonical value of the field its op touched.
func (s *Server) resync(cs *ClientSession, op protocol.Op) {
	f, _, ok := op.Update()
	if !ok {
		return
	}
	c, exists := s.world.Component(op.Entity, op.Type)
	if !exists || !c.ComponentType().HasField(f) {
		return
	}
	if err := cs.send(protocol.UpdateComponent(op.Entity, op.Type, f, c.Value(f))); err != nil {
		cs.gone, cs.reason = true, "send failed"
	}
}

// flush broadcasts the journal to every client.
func (s *Server) flush() {
	entries := s.journal.drain()
	if len(entries) == 0 {
		return
	}
	s.forgetEntities(entries)
	if len(s.sessions) == 0 {
		return
	}

	targets := sequence.FromMap(s.sessions).Filter(func(cs *ClientSession) bool { return !cs.gone })
	err := concurrent.ForEach(targets, s.config.BroadcastConcurrency, func(cs *ClientSession) error {
		cs.sendErr = cs.sendEntries(entries)
		return cs.sendErr
	})
	if err == nil {
		return
	}
	for _, cs := range s.sessions {
		if cs.sendErr != nil {
			s.logger.Warn("Broadcast failed", log.String("client_id", cs.ID), log.Error(cs.sendErr))
			cs.sendErr = nil
			s.detach(cs, "send failed")
		}
	}
}

// forgetEntities drops grants on entities the journal saw removed and frees
// their ids.
func (s *Server) forgetEntities(entries []entry) {
	for _, e := range entries {
		if e.op.Kind != protocol.OpRemoveEntity {
			continue
		}
		// entities added through Do hold no allocated id
		_ = s.ids.Deallocate(e.op.Entity)
		for _, cs := range s.sessions {
			maps.DeleteFunc(cs.grants, func(key models.Key, _ struct{}) bool {
				return key.Entity == e.op.Entity
			})
		}
	}
}

func (s *Server) detach(cs *ClientSession, reason string) {
	delete(s.sessions, cs.ID)
	s.limiter.forget(cs.ID)
	atomic.AddInt64(&s.clientCount, -1)
	_ = cs.Transport.Close()

	s.logger.Info("Client disconnected",
		log.String("client_id", cs.ID),
		log.String("reason", reason),
		log.Int64("total_clients", atomic.LoadInt64(&s.clientCount)))
}

func sortedKeys(set map[models.Key]struct{}) []models.Key {
	return slices.SortedFunc(maps.Keys(set), func(a, b models.Key) int {
		if c := cmp.Compare(a.Entity, b.Entity); c != 0 {
			return c
		}
		return cmp.Compare(a.Type, b.Type)
	})
}
