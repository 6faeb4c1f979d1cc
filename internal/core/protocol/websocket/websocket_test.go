package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
)

const fingerprint uint64 = 0xfeedface

func startServer(t *testing.T) (string, <-chan *Connection) {
	t.Helper()
	accepted := make(chan *Connection, 1)
	srv := httptest.NewServer(NewHandler(fingerprint, DefaultConfig(), log.NewNop(), func(c *Connection) {
		accepted <- c
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), accepted
}

// next waits for the next transport event.
func next(t *testing.T, tr protocol.Transport) protocol.Event {
	t.Helper()
	var got protocol.Event
	require.Eventually(t, func() bool {
		return tr.ReceiveEvent(func(ev protocol.Event) { got = ev })
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestMessagesFlowBothWays(t *testing.T) {
	url, accepted := startServer(t)
	client, err := Dial(context.Background(), url, fingerprint, DefaultConfig(), log.NewNop())
	require.NoError(t, err)
	defer client.Close()

	var server *Connection
	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the client")
	}
	defer server.Close()

	assert.Equal(t, protocol.EventConnected, next(t, client).Kind)
	assert.Equal(t, protocol.EventConnected, next(t, server).Kind)

	require.NoError(t, client.SendMessage([]byte{1, 2, 3}))
	ev := next(t, server)
	assert.Equal(t, protocol.EventMessage, ev.Kind)
	assert.Equal(t, []byte{1, 2, 3}, ev.Data)

	require.NoError(t, server.SendMessage([]byte{4}))
	ev = next(t, client)
	assert.Equal(t, []byte{4}, ev.Data)

	sent, received := client.Stats()
	assert.Equal(t, uint64(1), sent)
	assert.Equal(t, uint64(1), received)
	assert.NotEqual(t, client.ID(), server.ID())
}

func TestCloseDisconnectsPeer(t *testing.T) {
	url, accepted := startServer(t)
	client, err := Dial(context.Background(), url, fingerprint, DefaultConfig(), log.NewNop())
	require.NoError(t, err)
	server := <-accepted
	next(t, server)

	require.NoError(t, client.CloseWithReason("bye"))
	assert.True(t, client.IsClosed())
	assert.ErrorIs(t, client.SendMessage([]byte{1}), protocol.ErrTransportClosed)

	ev := next(t, server)
	assert.Equal(t, protocol.EventDisconnected, ev.Kind)
	assert.Equal(t, "bye", ev.Reason)

	select {
	case <-server.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("server reader did not stop")
	}
	assert.True(t, server.IsClosed())
}

func TestSchemaMismatchIsRefused(t *testing.T) {
	url, accepted := startServer(t)
	_, err := Dial(context.Background(), url, fingerprint+1, DefaultConfig(), log.NewNop())
	assert.ErrorIs(t, err, protocol.ErrSchemaMismatch)
	assert.Empty(t, accepted)
}
