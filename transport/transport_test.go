package transport

import (
	"context"
	"testing"
	"time"

	"github.com/gompi/gompi/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startPeer(t *testing.T) (plan.PeerID, *Server, *Mailbox, *Client) {
	t.Helper()
	mailbox := NewMailbox()
	server := NewServer(plan.PeerID{IPv4: plan.MustParseIPv4(`127.0.0.1`), Port: 0}, mailbox)
	id, err := server.Listen()
	require.NoError(t, err)
	go server.Serve()
	client := NewClient(id)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return id, server, mailbox, client
}

func TestSendRecv(t *testing.T) {
	a, _, amb, ac := startPeer(t)
	b, _, bmb, bc := startPeer(t)

	require.NoError(t, ac.Send(b.WithName(`x:1`), []byte(`ping`)))
	m := bmb.Recv(a.WithName(`x:1`))
	assert.Equal(t, `ping`, string(m.Data))

	require.NoError(t, bc.Send(a.WithName(`x:1`), []byte(`pong`)))
	m = amb.Recv(b.WithName(`x:1`))
	assert.Equal(t, `pong`, string(m.Data))
}

// Channels with different names must not steal each other's messages,
// even when sender and receiver are the same pair of peers.
func TestChannelIsolation(t *testing.T) {
	a, _, _, ac := startPeer(t)
	b, _, bmb, _ := startPeer(t)

	require.NoError(t, ac.Send(b.WithName(`x:1`), []byte(`one`)))
	require.NoError(t, ac.Send(b.WithName(`y:1`), []byte(`two`)))

	m := bmb.Recv(a.WithName(`y:1`))
	assert.Equal(t, `two`, string(m.Data))
	m = bmb.Recv(a.WithName(`x:1`))
	assert.Equal(t, `one`, string(m.Data))
}

// A receiver blocked before the sender connects must still get the
// message.
func TestRecvBeforeSend(t *testing.T) {
	a, _, _, ac := startPeer(t)
	b, _, bmb, _ := startPeer(t)

	got := make(chan Message, 1)
	go func() { got <- bmb.Recv(a.WithName(`z:0`)) }()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, ac.Send(b.WithName(`z:0`), []byte(`late`)))
	select {
	case m := <-got:
		assert.Equal(t, `late`, string(m.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("receiver never woke up")
	}
}

func TestPing(t *testing.T) {
	_, _, _, ac := startPeer(t)
	b, _, _, _ := startPeer(t)

	d, err := ac.Ping(b)
	require.NoError(t, err)
	assert.True(t, d > 0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, ok := ac.Wait(ctx, b)
	assert.True(t, ok)
}
