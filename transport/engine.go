// Package transport runs the datagram plane: sending text/file
// messages as fixed-size Packet fragments, receiving them off a shared
// UDP socket, delivering what has arrived and forwarding what has not.
//
// Grounded on netquic/node.go's ListenAndServe/handleConn/handleStream
// read-decode-dispatch loop and netquic/peermanager.go's
// resolve-then-send shape, re-expressed over a single net.UDPConn
// instead of per-peer QUIC connections: the wire format must appear on
// the socket unmodified, which rules out a stream transport for this
// plane (see SPEC_FULL.md's System Overview). The Send*/Deliveries
// split mirrors socket/EnvelopSocket.go's Send()/Recv()-channel facade,
// minus its onion-strategy layer: there is exactly one forwarding rule
// here, so no EnvelopeStrategy/EnvelopeSender indirection is needed.
package transport

import (
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"orbitmesh/identity"
	"orbitmesh/metrics"
	"orbitmesh/model"
	"orbitmesh/routing"
	"orbitmesh/wire"
)

// fragmentDelay is the pacing gap between successive file fragments
// sent on the same UDP socket, per §4.4's send_file contract.
const fragmentDelay = 100 * time.Millisecond

// maxPlaintextForOAEP bounds the TEXT payload a 2048-bit OAEP(SHA-256)
// key can wrap in one RSA operation: k - 2*hLen - 2, k=256, hLen=32.
// FILE fragments never go through this path — see DESIGN.md.
const maxPlaintextForOAEP = 256 - 2*32 - 2

// ErrMessageTooLong is returned by SendMessage when text exceeds what a
// single RSA-OAEP(2048,SHA-256) operation can wrap.
var ErrMessageTooLong = fmt.Errorf("transport: message exceeds the single-fragment encrypted size limit")

// Delivery is handed to the engine's owner for every locally-addressed
// packet it finishes delivering.
type Delivery struct {
	From    string
	Kind    wire.Type
	Text    string // populated for TypeText
	Path    string // populated for TypeFile, once reassembly completes
}

// Engine owns the peer's UDP socket and moves Packets across it:
// fragmenting outbound sends, decoding inbound reads, delivering what
// is addressed here and forwarding what is not.
type Engine struct {
	conn *net.UDPConn
	self model.PeerRecord

	Router      *routing.Router
	Reassembler *Reassembler
	Keys        *identity.KeyManager
	Metrics     *metrics.Registry

	// Deliveries receives one Delivery per completed local receipt.
	// The owner (the command driver) must keep draining it.
	Deliveries chan Delivery
}

// NewEngine binds a UDP socket at self's address/port and wires the
// routing, reassembly, crypto and metrics collaborators the receive
// loop needs.
func NewEngine(self model.PeerRecord, router *routing.Router, keys *identity.KeyManager, m *metrics.Registry, scratchDir string) (*Engine, error) {
	conn, err := net.ListenUDP("udp", self.UDPAddr())
	if err != nil {
		return nil, fmt.Errorf("transport: bind %s: %w", self.UDPAddr(), err)
	}
	// self.Port may have been 0 (bind to an OS-assigned port); reflect
	// back whatever the kernel actually gave us so every header this
	// engine originates carries the real port.
	self.Port = uint16(conn.LocalAddr().(*net.UDPAddr).Port)

	return &Engine{
		conn:        conn,
		self:        self,
		Router:      router,
		Reassembler: NewReassembler(scratchDir, m),
		Keys:        keys,
		Metrics:     m,
		Deliveries:  make(chan Delivery, 16),
	}, nil
}

// Close releases the UDP socket.
func (e *Engine) Close() error {
	return e.conn.Close()
}

// Self returns the peer record this engine binds as, with Port
// reflecting whatever the kernel actually assigned.
func (e *Engine) Self() model.PeerRecord {
	return e.self
}

func (e *Engine) findPeer(name string) (model.PeerRecord, bool) {
	for _, rec := range e.Router.Snapshot() {
		if rec.Name == name {
			return rec, true
		}
	}
	return model.PeerRecord{}, false
}

// originate builds the constant header fields for a new message sent
// from this peer to target, then sends fragCount fragments produced by
// fill, pacing file fragments by fragmentDelay (text is always one
// fragment, so pacing never applies to it).
func (e *Engine) originate(target model.PeerRecord, typ wire.Type, fragCount uint16, fill func(fragNum uint16) []byte) error {
	nextHop, err := e.Router.GetNextHop(target.Name)
	if err != nil {
		return fmt.Errorf("transport: %w: no route to %s", err, target.Name)
	}

	for n := uint16(1); n <= fragCount; n++ {
		pkt := &wire.Packet{
			Version:        wire.Version,
			SourceAddr:     model.IPToUint32(e.self.Addr),
			SourcePort:     e.self.Port,
			TargetAddr:     model.IPToUint32(target.Addr),
			TargetPort:     target.Port,
			Type:           typ,
			FragmentNumber: n,
			FragmentCount:  fragCount,
		}
		copy(pkt.Payload[:], fill(n))
		wire.SetCRC(pkt)

		if _, err := e.conn.WriteToUDP(wire.Encode(pkt), nextHop.UDPAddr()); err != nil {
			return fmt.Errorf("transport: write to %s: %w", nextHop.Name, err)
		}
		if typ == wire.TypeFile && n < fragCount {
			time.Sleep(fragmentDelay)
		}
	}
	return nil
}

// SendMessage encrypts text for targetName's published public key (if
// any) and sends it as a single TEXT packet. An unknown target or one
// missing a usable route fails immediately, per §4.4's send_message
// contract.
func (e *Engine) SendMessage(targetName, text string) error {
	target, ok := e.findPeer(targetName)
	if !ok {
		return fmt.Errorf("transport: unknown peer %q", targetName)
	}

	plaintext := []byte(text)
	if len(plaintext) > maxPlaintextForOAEP {
		return ErrMessageTooLong
	}

	body := plaintext
	if target.PublicKey != "" {
		pub, err := identity.ParsePublicKeyPEM(target.PublicKey)
		if err != nil {
			return fmt.Errorf("transport: parse %s's public key: %w", targetName, err)
		}
		ciphertext, err := identity.Encrypt(plaintext, pub)
		if err != nil {
			return err
		}
		body = ciphertext
	}

	return e.originate(target, wire.TypeText, 1, func(uint16) []byte { return body })
}

// SendFile fragments data into MaxPayload-sized slices and sends them
// as a run of FILE packets, 100ms apart, per §4.4. File fragments are
// never OAEP-encrypted: a 2048-bit key cannot wrap anywhere close to a
// 50 000-byte fragment, and fragmentation exists precisely so large
// payloads never have to pass through RSA.
func (e *Engine) SendFile(targetName string, data []byte) error {
	target, ok := e.findPeer(targetName)
	if !ok {
		return fmt.Errorf("transport: unknown peer %q", targetName)
	}

	fragCount := (len(data) + wire.MaxPayload - 1) / wire.MaxPayload
	if fragCount == 0 {
		fragCount = 1
	}

	return e.originate(target, wire.TypeFile, uint16(fragCount), func(fragNum uint16) []byte {
		start := int(fragNum-1) * wire.MaxPayload
		end := start + wire.MaxPayload
		if end > len(data) {
			end = len(data)
		}
		if start >= len(data) {
			return nil
		}
		return data[start:end]
	})
}

// ReceiveLoop blocks reading datagrams until stop is closed or the
// socket errors. Every datagram is decoded, CRC-checked, and either
// delivered locally or forwarded one hop, matching §4.4's receive_loop
// contract and the error taxonomy of §7 (malformed/CRC-mismatch
// datagrams are dropped and counted, never fatal).
func (e *Engine) ReceiveLoop(stop <-chan struct{}) error {
	buf := make([]byte, wire.PacketSize)
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		e.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return fmt.Errorf("transport: read: %w", err)
		}

		e.handleDatagram(buf[:n])
	}
}

func (e *Engine) handleDatagram(raw []byte) {
	pkt, err := wire.Decode(raw)
	if err != nil {
		e.countDecodeError(err)
		return
	}
	if !wire.VerifyCRC(pkt) {
		e.countDecodeError(wire.ErrCRCMismatch)
		return
	}

	selfAddr := model.IPToUint32(e.self.Addr)
	if pkt.TargetAddr == selfAddr && pkt.TargetPort == e.self.Port {
		e.deliver(pkt)
		return
	}

	e.forward(pkt)
}

func (e *Engine) countDecodeError(err error) {
	reason := "malformed"
	switch err {
	case wire.ErrVersionMismatch:
		reason = "version_mismatch"
	case wire.ErrUnknownType:
		reason = "unknown_type"
	case wire.ErrCRCMismatch:
		reason = "crc_mismatch"
	}
	if e.Metrics != nil {
		e.Metrics.PacketDecodeErrors.WithLabelValues(reason).Inc()
	}
	log.Debugf("transport: dropped datagram: %v", err)
}

func (e *Engine) deliver(pkt *wire.Packet) {
	fromName, _ := e.Router.ReverseLookup(pkt.SourceAddr, pkt.SourcePort)
	if fromName == "" {
		fromName = model.Uint32ToIP(pkt.SourceAddr).String()
	}

	switch pkt.Type {
	case wire.TypeText:
		text := e.decodeText(pkt)
		e.Deliveries <- Delivery{From: fromName, Kind: wire.TypeText, Text: text}

	case wire.TypeFile:
		path, err := e.Reassembler.Accept(pkt, wire.MaxPayload)
		if err != nil {
			log.Warnf("transport: reassembly failed for %s: %v", fromName, err)
			return
		}
		if path != "" {
			e.Deliveries <- Delivery{From: fromName, Kind: wire.TypeFile, Path: path}
		}
	}
}

// decodeText recovers the text carried by a TEXT packet. The sender
// either OAEP-encrypted it into a fixed identity.CipherLen-byte block
// at the front of the payload (if it knew a recipient public key) or
// left it as raw zero-padded bytes (if it didn't); this peer tries the
// former first since a random raw message practically never happens
// to be valid OAEP ciphertext for this peer's key.
func (e *Engine) decodeText(pkt *wire.Packet) string {
	if e.Keys != nil && len(pkt.Payload) >= identity.CipherLen {
		if pt, err := e.Keys.Decrypt(pkt.Payload[:identity.CipherLen]); err == nil {
			return string(pt)
		}
	}
	return string(trimTrailingZeroes(pkt.Payload[:]))
}

func (e *Engine) forward(pkt *wire.Packet) {
	targetName, ok := e.Router.ReverseLookup(pkt.TargetAddr, pkt.TargetPort)
	if !ok {
		e.dropNoRoute(pkt)
		return
	}

	nextHop, err := e.Router.GetNextHop(targetName)
	if err != nil {
		e.dropNoRoute(pkt)
		return
	}

	if _, err := e.conn.WriteToUDP(wire.Encode(pkt), nextHop.UDPAddr()); err != nil {
		log.Warnf("transport: forward to %s failed: %v", nextHop.Name, err)
	}
}

func (e *Engine) dropNoRoute(pkt *wire.Packet) {
	if e.Metrics != nil {
		e.Metrics.NoRouteDrops.Inc()
	}
	log.Debugf("transport: no route for target %d:%d, dropping", pkt.TargetAddr, pkt.TargetPort)
}

func trimTrailingZeroes(b []byte) []byte {
	i := len(b)
	for i > 0 && b[i-1] == 0 {
		i--
	}
	return b[:i]
}
