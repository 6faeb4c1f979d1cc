package protocol

import (
	"strconv"
	"sync"

	"github.com/zeusync/replica/pkg/sequence"
)

// FingerprintHeader carries the schema fingerprint on websocket upgrades.
const FingerprintHeader = "X-Replica-Schema"

// DefaultInboxSize bounds the events buffered per connection.
const DefaultInboxSize = 4096

type EventKind uint8

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventMessage:
		return "message"
	default:
		return "event(" + strconv.Itoa(int(k)) + ")"
	}
}

// Event is something that happened on a connection.
type Event struct {
	Kind EventKind
	// Reason explains a disconnect.
	Reason string
	// Data holds one serialized op for message events.
	Data []byte
}

// Transport delivers serialized ops over one connection. Reads are polled:
// the owner of a world drains events on its own goroutine.
type Transport interface {
	// SendMessage queues one message for delivery.
	SendMessage(data []byte) error
	// ReceiveEvent hands the next pending event to fn and reports whether
	// there was one.
	ReceiveEvent(fn func(Event)) bool
	Close() error
}

// FormatFingerprint renders a schema fingerprint for handshakes.
func FormatFingerprint(fp uint64) string {
	return strconv.FormatUint(fp, 16)
}

func ParseFingerprint(s string) (uint64, error) {
	return strconv.ParseUint(s, 16, 64)
}

// Inbox is a bounded FIFO of events shared between a connection's reader
// goroutine and the goroutine polling it. After a disconnect event is pushed
// the inbox accepts nothing else.
type Inbox struct {
	mu       sync.Mutex
	events   sequence.Queue[Event]
	limit    int
	finished bool
}

func NewInbox(limit int) *Inbox {
	if limit <= 0 {
		limit = DefaultInboxSize
	}
	return &Inbox{limit: limit}
}

// Push appends ev. Disconnect events are always accepted, once.
func (in *Inbox) Push(ev Event) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.finished {
		return ErrTransportClosed
	}
	if ev.Kind == EventDisconnected {
		in.finished = true
	} else if in.events.Len() >= in.limit {
		return ErrInboxFull
	}
	in.events.Enqueue(ev)
	return nil
}

// Pop removes the oldest event and hands it to fn outside the lock.
func (in *Inbox) Pop(fn func(Event)) bool {
	in.mu.Lock()
	ev, ok := in.events.Dequeue()
	in.mu.Unlock()
	if !ok {
		return false
	}
	fn(ev)
	return true
}

func (in *Inbox) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.events.Len()
}

// Loopback is an in-process Transport. Messages sent on one end of a Pipe
// are received on the other.
type Loopback struct {
	inbox *Inbox
	peer  *Loopback
	once  sync.Once
}

// Pipe returns two connected loopback transports. Both start with a
// Connected event pending.
func Pipe() (*Loopback, *Loopback) {
	a := &Loopback{inbox: NewInbox(0)}
	b := &Loopback{inbox: NewInbox(0)}
	a.peer, b.peer = b, a
	_ = a.inbox.Push(Event{Kind: EventConnected})
	_ = b.inbox.Push(Event{Kind: EventConnected})
	return a, b
}

func (l *Loopback) SendMessage(data []byte) error {
	msg := make([]byte, len(data))
	copy(msg, data)
	return l.peer.inbox.Push(Event{Kind: EventMessage, Data: msg})
}

func (l *Loopback) ReceiveEvent(fn func(Event)) bool {
	return l.inbox.Pop(fn)
}

// Close disconnects both ends.
func (l *Loopback) Close() error {
	l.once.Do(func() {
		_ = l.inbox.Push(Event{Kind: EventDisconnected, Reason: "closed locally"})
		_ = l.peer.inbox.Push(Event{Kind: EventDisconnected, Reason: "closed by peer"})
	})
	return nil
}
