// Package model holds the data shared by every layer of the peer
// runtime: the directory's PeerRecord and the NodeClass tag that
// replaces the source's GroundNode/SatelliteNode subclass split.
package model

import (
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"unicode"
)

// NodeClass is the tagged variant that stands in for the
// GroundNode/SatelliteNode inheritance hierarchy in the original
// source. Behaviour that used to live in a subclass override now
// switches on this value at the handful of call sites that care
// (mobility tick, routing weight).
type NodeClass uint8

const (
	ClassUnknown NodeClass = iota
	ClassGround
	ClassSatellite
)

func (c NodeClass) String() string {
	switch c {
	case ClassGround:
		return "GROUND"
	case ClassSatellite:
		return "SATELLITE"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON renders the class using the wire spelling ("GROUND" /
// "SATELLITE") rather than its numeric tag.
func (c NodeClass) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// UnmarshalJSON accepts the wire spelling and rejects anything else,
// per the directory boundary's "unknown classes are rejected" invariant.
func (c *NodeClass) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseNodeClass(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseNodeClass accepts the case-insensitive spellings used on the
// directory wire protocol and the peer CLI's -node flag.
func ParseNodeClass(s string) (NodeClass, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GROUND":
		return ClassGround, nil
	case "SATELLITE":
		return ClassSatellite, nil
	default:
		return ClassUnknown, fmt.Errorf("model: unknown node class %q", s)
	}
}

// Position is an (x,y) coordinate. PeerRecord.SetPosition quantises it
// to two decimals; fields assigned directly are stored as given.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Quantize rounds both coordinates to two decimal places.
func (p Position) Quantize() Position {
	return Position{
		X: math.Round(p.X*100) / 100,
		Y: math.Round(p.Y*100) / 100,
	}
}

// Finite reports whether both coordinates are finite numbers.
func (p Position) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Distance returns the Euclidean distance to another position.
func (p Position) Distance(o Position) float64 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// PeerRecord is the unit stored by the directory and cached by every
// peer. Identity is Name; Addr/Port are routing metadata that may
// change across re-registrations.
type PeerRecord struct {
	Name      string    `json:"name"`
	Class     NodeClass `json:"type"`
	Addr      net.IP    `json:"ip"`
	Port      uint16    `json:"port"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	PublicKey string    `json:"publicKey,omitempty"`
}

// Position extracts the record's (x,y) pair.
func (r PeerRecord) Position() Position {
	return Position{X: r.X, Y: r.Y}
}

// SetPosition quantizes and stores a new (x,y) pair.
func (r *PeerRecord) SetPosition(p Position) {
	q := p.Quantize()
	r.X, r.Y = q.X, q.Y
}

// Validate enforces the directory boundary invariants: a known class,
// finite coordinates, and a non-empty name.
func (r PeerRecord) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("model: peer record name must not be empty")
	}
	if r.Class != ClassGround && r.Class != ClassSatellite {
		return fmt.Errorf("model: unknown node class %v for %q", r.Class, r.Name)
	}
	if !r.Position().Finite() {
		return fmt.Errorf("model: non-finite coordinates for %q", r.Name)
	}
	return nil
}

// UDPAddr returns the peer's transport endpoint as a *net.UDPAddr.
func (r PeerRecord) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: r.Addr, Port: int(r.Port)}
}

// NormalizeName trims whitespace and ASCII NUL together, in any
// interleaving, from both ends — the directory's deregister action
// must strip all of it before comparison.
func NormalizeName(name string) string {
	return strings.TrimFunc(name, func(r rune) bool {
		return r == 0 || unicode.IsSpace(r)
	})
}

// IPToUint32 packs an IPv4 address into the big-endian u32 the wire
// format carries as source/target address. It returns 0 for anything
// that isn't a valid IPv4 address.
func IPToUint32(ip net.IP) uint32 {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0
	}
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
}

// Uint32ToIP unpacks the wire format's address field back into an
// IPv4 net.IP.
func Uint32ToIP(addr uint32) net.IP {
	return net.IPv4(byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr))
}
