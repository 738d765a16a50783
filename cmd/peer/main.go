// Command peer runs one fleet participant: it registers with the
// directory, polls membership, binds the datagram socket, forwards and
// reassembles traffic, and drives an interactive command loop.
//
// Grounded on main.go's NewLocal/Start/Recv-loop shape, generalized
// from a single self-send demo to the full register/poll/forward/
// command-loop lifecycle the peer runtime specifies.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"orbitmesh/directory"
	"orbitmesh/identity"
	"orbitmesh/metrics"
	"orbitmesh/model"
	"orbitmesh/peerlifecycle"
	"orbitmesh/routing"
	"orbitmesh/transport"
)

// Exit codes per §6: missing/unknown flags, invalid node type, bind failure.
const (
	exitBadFlags   = 1
	exitBadNode    = 3
	exitBindFailed = 4
)

func main() {
	var (
		nodeType   = pflag.String("node", "", "node class: ground or satellite (required)")
		name       = pflag.String("name", "", "peer name (required)")
		ip         = pflag.String("ip", "", "peer IPv4 address (required)")
		port       = pflag.Uint16("port", 0, "peer UDP port (required)")
		x          = pflag.Float64("x", 0, "initial X coordinate (required)")
		y          = pflag.Float64("y", 0, "initial Y coordinate (required)")
		dirAddr    = pflag.String("directory", "127.0.0.1:5001", "directory address")
		metricsOn  = pflag.Int("metrics-port", 0, "if nonzero, serve /metrics on this port")
		scratchDir = pflag.String("scratch-dir", "", "directory for file reassembly scratch artefacts (default: OS temp dir)")
	)
	pflag.CommandLine.Init(os.Args[0], pflag.ContinueOnError)
	if err := pflag.CommandLine.Parse(os.Args[1:]); err != nil {
		os.Exit(exitBadFlags)
	}

	if *nodeType == "" || *name == "" || *ip == "" || *port == 0 ||
		!pflag.CommandLine.Changed("x") || !pflag.CommandLine.Changed("y") {
		fmt.Fprintln(os.Stderr, "peer: -node, -name, -ip, -port, -x, and -y are required")
		os.Exit(exitBadFlags)
	}

	class, err := model.ParseNodeClass(*nodeType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "peer: %v\n", err)
		os.Exit(exitBadNode)
	}

	addr := net.ParseIP(*ip)
	if addr == nil || addr.To4() == nil {
		fmt.Fprintln(os.Stderr, "peer: -ip is not a valid IPv4 address")
		os.Exit(exitBadFlags)
	}

	log.SetLevel(log.InfoLevel)

	self := model.PeerRecord{
		Name:  model.NormalizeName(*name),
		Class: class,
		Addr:  addr,
		Port:  *port,
	}
	self.SetPosition(model.Position{X: *x, Y: *y})

	keys, err := identity.NewKeyManager()
	if err != nil {
		log.Fatalf("peer: key generation failed: %v", err)
	}
	pubPEM, err := keys.PublicKeyPEM()
	if err != nil {
		log.Fatalf("peer: encoding public key failed: %v", err)
	}
	self.PublicKey = pubPEM

	m := metrics.NewRegistry()
	if *metricsOn != 0 {
		go m.Serve(*metricsOn)
	}

	router := routing.NewRouter(self.Name)

	if *scratchDir == "" {
		*scratchDir = os.TempDir()
	}

	engine, err := transport.NewEngine(self, router, keys, m, *scratchDir)
	if err != nil {
		log.Errorf("peer: %v", err)
		os.Exit(exitBindFailed)
	}
	defer engine.Close()

	dirClient := directory.NewClient(*dirAddr)

	sup := &peerlifecycle.Supervisor{
		Self:      self,
		Engine:    engine,
		Router:    router,
		DirClient: dirClient,
		Deliver:   printDelivery,
		Commands:  commandLoop(engine, router),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := sup.Run(ctx); err != nil {
		log.Errorf("peer: %v", err)
		os.Exit(1)
	}
}

func printDelivery(d transport.Delivery) {
	switch d.Kind.String() {
	case "TEXT":
		fmt.Printf("[%s] %s\n", d.From, d.Text)
	case "FILE":
		fmt.Printf("[%s] file received: %s\n", d.From, d.Path)
	}
}

// commandLoop implements the peer CLI's stdin grammar: message/file/
// list/help/q, exactly per §6.
func commandLoop(engine *transport.Engine, router *routing.Router) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		scanner := bufio.NewScanner(os.Stdin)
		printHelp()
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				return peerlifecycle.ErrQuit
			}
			cmd := strings.TrimSpace(scanner.Text())

			switch cmd {
			case "message":
				target := prompt(scanner, "target name: ")
				text := prompt(scanner, "text: ")
				if err := engine.SendMessage(target, text); err != nil {
					fmt.Printf("failed: %v\n", err)
				} else {
					fmt.Println("sent")
				}

			case "file":
				target := prompt(scanner, "target name: ")
				path := prompt(scanner, "file path: ")
				data, err := os.ReadFile(path)
				if err != nil {
					fmt.Printf("failed: %v\n", err)
					continue
				}
				if err := engine.SendFile(target, data); err != nil {
					fmt.Printf("failed: %v\n", err)
				} else {
					fmt.Println("sent")
				}

			case "list":
				for _, rec := range router.Snapshot() {
					fmt.Printf("%-16s %-10s %s:%d (%.2f,%.2f)\n", rec.Name, rec.Class, rec.Addr, rec.Port, rec.X, rec.Y)
				}

			case "help":
				printHelp()

			case "q":
				return peerlifecycle.ErrQuit

			case "":
				// ignore blank lines between prompts

			default:
				fmt.Println("unknown command, try 'help'")
			}

			select {
			case <-ctx.Done():
				return nil
			default:
			}
		}
	}
}

func prompt(scanner *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}

func printHelp() {
	fmt.Println("commands: message, file, list, help, q")
}
