package peerlifecycle

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orbitmesh/directory"
	"orbitmesh/metrics"
	"orbitmesh/model"
	"orbitmesh/routing"
	"orbitmesh/transport"
)

// TestSupervisorRegistersAndDeregisters exercises one peer's full
// lifecycle against a real directory server: register on start,
// deregister on clean shutdown (§5's cancellation contract).
func TestSupervisorRegistersAndDeregisters(t *testing.T) {
	const dirAddr = "127.0.0.1:37381"

	srv := directory.NewServer()
	srvCtx, stopSrv := context.WithCancel(context.Background())
	defer stopSrv()
	go srv.ListenAndServe(srvCtx, dirAddr)
	time.Sleep(100 * time.Millisecond)

	self := model.PeerRecord{
		Name:  "G1",
		Class: model.ClassGround,
		Addr:  net.ParseIP("127.0.0.1"),
		Port:  0,
	}
	router := routing.NewRouter(self.Name)
	engine, err := transport.NewEngine(self, router, nil, metrics.NewRegistry(), t.TempDir())
	require.NoError(t, err)
	defer engine.Close()
	self = engine.Self()

	sup := &Supervisor{
		Self:         self,
		Engine:       engine,
		Router:       router,
		DirClient:    directory.NewClient(dirAddr),
		PollInterval: 200 * time.Millisecond,
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(runCtx) }()

	time.Sleep(300 * time.Millisecond)

	checkCtx, cancelCheck := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelCheck()
	client := directory.NewClient(dirAddr)
	list, err := client.List(checkCtx)
	require.NoError(t, err)
	assert.Len(t, list, 1, "peer must be registered shortly after Run starts")

	cancelRun()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Supervisor.Run did not return after cancellation")
	}

	list, err = client.List(checkCtx)
	require.NoError(t, err)
	assert.Empty(t, list, "peer must deregister on clean shutdown")
}

// TestSupervisorCommandQuitStopsAllActivities exercises the bug where a
// Commands callback returning plain nil left receive/pollDirectory
// blocked forever: a callback must return ErrQuit to cancel the shared
// context and let Run return.
func TestSupervisorCommandQuitStopsAllActivities(t *testing.T) {
	const dirAddr = "127.0.0.1:37382"

	srv := directory.NewServer()
	srvCtx, stopSrv := context.WithCancel(context.Background())
	defer stopSrv()
	go srv.ListenAndServe(srvCtx, dirAddr)
	time.Sleep(100 * time.Millisecond)

	self := model.PeerRecord{
		Name:  "G2",
		Class: model.ClassGround,
		Addr:  net.ParseIP("127.0.0.1"),
		Port:  0,
	}
	router := routing.NewRouter(self.Name)
	engine, err := transport.NewEngine(self, router, nil, metrics.NewRegistry(), t.TempDir())
	require.NoError(t, err)
	defer engine.Close()
	self = engine.Self()

	quit := make(chan struct{})
	sup := &Supervisor{
		Self:         self,
		Engine:       engine,
		Router:       router,
		DirClient:    directory.NewClient(dirAddr),
		PollInterval: 200 * time.Millisecond,
		Commands: func(ctx context.Context) error {
			select {
			case <-quit:
				return ErrQuit
			case <-ctx.Done():
				return nil
			}
		},
	}

	done := make(chan error, 1)
	go func() { done <- sup.Run(context.Background()) }()
	time.Sleep(200 * time.Millisecond)

	close(quit)
	select {
	case err := <-done:
		assert.NoError(t, err, "a quitting command driver must not surface as a failure")
	case <-time.After(3 * time.Second):
		t.Fatal("Supervisor.Run did not return after the command driver quit")
	}
}

// TestUpdateMobilityAdvancesLinearly verifies the fixed-vector position
// advance: no orbital motion, just x += SpeedX, y += SpeedY each tick,
// each step rounded to two decimals.
func TestUpdateMobilityAdvancesLinearly(t *testing.T) {
	const dirAddr = "127.0.0.1:37383"

	srv := directory.NewServer()
	srvCtx, stopSrv := context.WithCancel(context.Background())
	defer stopSrv()
	go srv.ListenAndServe(srvCtx, dirAddr)
	time.Sleep(100 * time.Millisecond)

	self := model.PeerRecord{
		Name:  "S1",
		Class: model.ClassSatellite,
		Addr:  net.ParseIP("127.0.0.1"),
		Port:  0,
	}
	self.SetPosition(model.Position{X: 1, Y: 2})
	router := routing.NewRouter(self.Name)
	engine, err := transport.NewEngine(self, router, nil, metrics.NewRegistry(), t.TempDir())
	require.NoError(t, err)
	defer engine.Close()
	self = engine.Self()

	sup := &Supervisor{
		Self:             self,
		Engine:           engine,
		Router:           router,
		DirClient:        directory.NewClient(dirAddr),
		PollInterval:     time.Second,
		MobilityInterval: 50 * time.Millisecond,
		SpeedX:           defaultSpeedX,
		SpeedY:           defaultSpeedY,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.updateMobility(ctx)

	time.Sleep(170 * time.Millisecond)
	cancel()

	pos := sup.Self.Position()
	assert.Greater(t, pos.X, 1.0, "position must have advanced by a positive x step, not orbited")
	ticks := int((pos.X-1.0)/defaultSpeedX + 0.5)
	want := model.Position{X: 1, Y: 2}
	for i := 0; i < ticks; i++ {
		want = model.Position{X: want.X + defaultSpeedX, Y: want.Y + defaultSpeedY}.Quantize()
	}
	assert.InDelta(t, want.Y, pos.Y, 1e-6,
		"y must advance by SpeedY on every tick that x advances by SpeedX, rounded to two decimals")
}
