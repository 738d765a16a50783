package directory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestServerClientRoundTrip exercises the real QUIC transport end to
// end: a Server listening on loopback, a Client performing all four
// actions against it.
func TestServerClientRoundTrip(t *testing.T) {
	const addr = "127.0.0.1:37281"

	srv := NewServer()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe(ctx, addr) }()
	time.Sleep(100 * time.Millisecond) // let the listener bind

	client := NewClient(addr)
	callCtx, cancelCall := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelCall()

	rec := testRecord("G1", 1, 1)
	require.NoError(t, client.Register(callCtx, rec))

	list, err := client.List(callCtx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "G1", list[0].Name)

	moved := testRecord("G1", 9, 9)
	require.NoError(t, client.Update(callCtx, moved))

	list, err = client.List(callCtx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 9.0, list[0].X)

	require.NoError(t, client.Deregister(callCtx, "G1"))

	list, err = client.List(callCtx)
	require.NoError(t, err)
	assert.Empty(t, list)

	cancel()
	select {
	case err := <-serveErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ListenAndServe did not return after context cancellation")
	}
}
