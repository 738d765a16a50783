// Package peerlifecycle runs the four long-lived activities a peer
// process supervises — receiver, directory poller, mobility updater,
// command driver — and unwinds all of them cleanly when any one fails
// or the process is asked to stop.
//
// Grounded on fbclock/daemon.go's runLinearizabilityTests/Run: an
// errgroup.Group collecting goroutines that share one cancellable
// context, so a fatal error in any one of them cancels the rest
// instead of leaking goroutines.
package peerlifecycle

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"orbitmesh/directory"
	"orbitmesh/model"
	"orbitmesh/routing"
	"orbitmesh/transport"
)

// defaultSpeedX and defaultSpeedY are the per-tick position deltas a
// SATELLITE peer advances by, matching SatelliteNode::updatePosition's
// defaults in the original source.
const (
	defaultSpeedX = 0.05
	defaultSpeedY = 0.075
)

// errQuit is returned by a command driver to signal a clean, requested
// shutdown rather than a failure; Run treats it the same as context
// cancellation.
var errQuit = errors.New("peerlifecycle: quit requested")

// ErrQuit is errQuit, exported so a Commands callback (e.g. the peer's
// stdin command loop) can return it on a user-requested quit.
var ErrQuit = errQuit

// Supervisor wires the collaborators one running peer needs and owns
// their shared lifetime.
type Supervisor struct {
	Self      model.PeerRecord
	Engine    *transport.Engine
	Router    *routing.Router
	DirClient *directory.Client

	PollInterval     time.Duration
	MobilityInterval time.Duration

	// SpeedX/SpeedY are the per-tick position deltas a SATELLITE peer
	// advances by. Zero means defaultSpeedX/defaultSpeedY.
	SpeedX float64
	SpeedY float64

	// Deliver is invoked for every completed local delivery (text or
	// finished file); the command driver normally prints it.
	Deliver func(transport.Delivery)

	// Commands, when non-nil, is run as the fourth activity; it should
	// block reading stdin commands until ctx is done or the user quits.
	// A user-requested quit must be signalled by returning ErrQuit, not
	// nil — errgroup only cancels the shared context when a goroutine
	// returns a non-nil error, so a plain nil return would leave
	// receive and pollDirectory blocked forever.
	Commands func(ctx context.Context) error
}

// defaultPollInterval matches §4.5's "seconds, not sub-second" polling
// cadence description without pinning a single magic number in the CLI.
const defaultPollInterval = 3 * time.Second
const defaultMobilityInterval = 2 * time.Second

// Run registers with the directory, then runs all activities until one
// fails or ctx is cancelled, then deregisters on the way out.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.PollInterval <= 0 {
		s.PollInterval = defaultPollInterval
	}
	if s.MobilityInterval <= 0 {
		s.MobilityInterval = defaultMobilityInterval
	}
	if s.SpeedX == 0 {
		s.SpeedX = defaultSpeedX
	}
	if s.SpeedY == 0 {
		s.SpeedY = defaultSpeedY
	}

	if err := s.DirClient.Register(ctx, s.Self); err != nil {
		return err
	}
	defer func() {
		deregisterCtx, cancel := context.WithTimeout(context.Background(), directory.CallTimeout)
		defer cancel()
		if err := s.DirClient.Deregister(deregisterCtx, s.Self.Name); err != nil {
			log.Warnf("peerlifecycle: deregister on shutdown failed: %v", err)
		}
	}()

	// Prime the router before anything tries to use it.
	if snapshot, err := s.DirClient.List(ctx); err == nil {
		s.Router.Recompute(snapshot)
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return s.receive(egCtx)
	})
	eg.Go(func() error {
		return s.pollDirectory(egCtx)
	})
	if s.Self.Class == model.ClassSatellite {
		eg.Go(func() error {
			return s.updateMobility(egCtx)
		})
	}
	if s.Commands != nil {
		eg.Go(func() error {
			return s.Commands(egCtx)
		})
	}

	err := eg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errQuit) {
		return err
	}
	return nil
}

func (s *Supervisor) receive(ctx context.Context) error {
	go func() {
		for d := range s.Engine.Deliveries {
			if s.Deliver != nil {
				s.Deliver(d)
			}
		}
	}()

	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()
	return s.Engine.ReceiveLoop(stop)
}

func (s *Supervisor) pollDirectory(ctx context.Context) error {
	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snapshot, err := s.DirClient.List(ctx)
			if err != nil {
				log.Warnf("peerlifecycle: directory poll failed, keeping last snapshot: %v", err)
				continue
			}
			s.Router.Recompute(snapshot)
		}
	}
}

// updateMobility advances a SATELLITE peer's position by (SpeedX,
// SpeedY) every tick and pushes the change to the directory. GROUND
// peers never run this activity, per §4's "stationary" class
// contract.
func (s *Supervisor) updateMobility(ctx context.Context) error {
	ticker := time.NewTicker(s.MobilityInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pos := s.Self.Position()
			s.Self.SetPosition(model.Position{
				X: pos.X + s.SpeedX,
				Y: pos.Y + s.SpeedY,
			})
			if err := s.DirClient.Update(ctx, s.Self); err != nil {
				log.Debugf("peerlifecycle: mobility update failed: %v", err)
			}
		}
	}
}
