package transport

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orbitmesh/metrics"
	"orbitmesh/model"
	"orbitmesh/routing"
	"orbitmesh/wire"
)

// newLoopbackEngine binds an Engine to an OS-assigned loopback port and
// returns it with self.Port already corrected to the bound value.
func newLoopbackEngine(t *testing.T, name string) (*Engine, model.PeerRecord) {
	t.Helper()
	self := model.PeerRecord{
		Name:  name,
		Class: model.ClassGround,
		Addr:  net.ParseIP("127.0.0.1"),
		Port:  0,
	}
	router := routing.NewRouter(name)
	e, err := NewEngine(self, router, nil, metrics.NewRegistry(), t.TempDir())
	require.NoError(t, err)
	return e, e.self
}

func TestSendMessageToSelfDeliversLocally(t *testing.T) {
	e, self := newLoopbackEngine(t, "G1")
	e.Router.Recompute([]model.PeerRecord{self})

	stop := make(chan struct{})
	defer close(stop)
	go e.ReceiveLoop(stop)

	require.NoError(t, e.SendMessage("G1", "hello fleet"))

	select {
	case d := <-e.Deliveries:
		assert.Equal(t, wire.TypeText, d.Kind)
		assert.Equal(t, "hello fleet", d.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("message never arrived")
	}
}

func TestSendMessageUnknownTargetFails(t *testing.T) {
	e, self := newLoopbackEngine(t, "G1")
	e.Router.Recompute([]model.PeerRecord{self})

	err := e.SendMessage("ghost", "hi")
	assert.Error(t, err)
}

func TestSendFileFragmentAccounting(t *testing.T) {
	e, self := newLoopbackEngine(t, "G1")
	e.Router.Recompute([]model.PeerRecord{self})

	stop := make(chan struct{})
	defer close(stop)
	go e.ReceiveLoop(stop)

	data := make([]byte, 3*wire.MaxPayload+123) // forces ceil(S/MAX_PAYLOAD) = 4
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, e.SendFile("G1", data))

	select {
	case d := <-e.Deliveries:
		assert.Equal(t, wire.TypeFile, d.Kind)
		got, err := os.ReadFile(d.Path)
		require.NoError(t, err)
		assert.Equal(t, data, got[:len(data)], "reassembled file must match the source bit-for-bit up to its real length")
	case <-time.After(5 * time.Second):
		t.Fatal("file never reassembled")
	}
}
