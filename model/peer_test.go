package model

import (
	"math"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNodeClassCaseInsensitive(t *testing.T) {
	c, err := ParseNodeClass("ground")
	require.NoError(t, err)
	assert.Equal(t, ClassGround, c)

	c, err = ParseNodeClass("SATELLITE")
	require.NoError(t, err)
	assert.Equal(t, ClassSatellite, c)

	_, err = ParseNodeClass("blimp")
	assert.Error(t, err)
}

func TestPositionQuantize(t *testing.T) {
	p := Position{X: 1.23456, Y: -9.8765}
	q := p.Quantize()
	assert.InDelta(t, 1.23, q.X, 1e-9)
	assert.InDelta(t, -9.88, q.Y, 1e-9)
}

func TestPositionFinite(t *testing.T) {
	assert.True(t, Position{X: 1, Y: 2}.Finite())
	assert.False(t, Position{X: math.NaN(), Y: 0}.Finite())
}

func TestPeerRecordSetPositionQuantizesOnWrite(t *testing.T) {
	r := PeerRecord{Name: "G1", Class: ClassGround}
	r.SetPosition(Position{X: 1.005, Y: 2.0})
	assert.InDelta(t, 1.0, r.X, 0.01) // 1.005 is stored just below 1.005, so it rounds down to 1.00
}

func TestPeerRecordValidate(t *testing.T) {
	r := PeerRecord{Name: "G1", Class: ClassGround, X: 0, Y: 0}
	assert.NoError(t, r.Validate())

	bad := PeerRecord{Name: "", Class: ClassGround}
	assert.Error(t, bad.Validate())

	bad2 := PeerRecord{Name: "X", Class: ClassUnknown}
	assert.Error(t, bad2.Validate())
}

func TestIPRoundTrip(t *testing.T) {
	ip := net.ParseIP("203.0.113.7")
	packed := IPToUint32(ip)
	assert.Equal(t, ip.To4(), Uint32ToIP(packed).To4())
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "G1", NormalizeName("  G1\x00"))
	assert.Equal(t, "foo", NormalizeName("foo \x00"), "whitespace before a trailing NUL must still be trimmed")
	assert.Equal(t, "foo", NormalizeName("\x00 foo \x00\x00"))
}
