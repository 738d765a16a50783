// Command registry runs the directory server: the authoritative,
// in-memory registry of peer records that every peer polls for
// membership and topology.
//
// Grounded on main.go's NewLocal/Start shape, generalized from a peer
// host's self-listen demo to the directory's dedicated ListenAndServe
// loop with no payload-plane responsibilities.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"orbitmesh/directory"
	"orbitmesh/metrics"
)

func main() {
	metricsPort := pflag.Int("metrics-port", 0, "if nonzero, serve /metrics on this port")
	pflag.Parse()

	addr, err := resolveAddr(pflag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "usage: registry <ip> <port>  |  registry <port>")
		os.Exit(1)
	}

	log.SetLevel(log.InfoLevel)

	srv := directory.NewServer()
	if *metricsPort != 0 {
		go srv.Metrics.Serve(*metricsPort)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.ListenAndServe(ctx, addr); err != nil {
		log.Fatalf("registry: %v", err)
	}
}

// resolveAddr accepts both invocation forms named in §6: "registry <ip>
// <port>" binds that interface; "registry <port>" binds all
// interfaces.
func resolveAddr(args []string) (string, error) {
	switch len(args) {
	case 1:
		return fmt.Sprintf(":%s", args[0]), nil
	case 2:
		return fmt.Sprintf("%s:%s", args[0], args[1]), nil
	default:
		return "", fmt.Errorf("registry: expected 1 or 2 positional arguments, got %d", len(args))
	}
}
