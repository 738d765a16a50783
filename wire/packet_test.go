package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDir() *Packet {
	pkt := &Packet{
		Version:        Version,
		SourceAddr:     0x0A000001,
		SourcePort:     9000,
		TargetAddr:     0x0A000002,
		TargetPort:     9001,
		Type:           TypeText,
		FragmentNumber: 1,
		FragmentCount:  1,
	}
	copy(pkt.Payload[:], "hello fleet")
	return pkt
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	pkt := sampleDir()
	SetCRC(pkt)

	buf := Encode(pkt)
	require.Len(t, buf, PacketSize)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, pkt.Version, got.Version)
	assert.Equal(t, pkt.SourceAddr, got.SourceAddr)
	assert.Equal(t, pkt.SourcePort, got.SourcePort)
	assert.Equal(t, pkt.TargetAddr, got.TargetAddr)
	assert.Equal(t, pkt.TargetPort, got.TargetPort)
	assert.Equal(t, pkt.Type, got.Type)
	assert.Equal(t, pkt.FragmentNumber, got.FragmentNumber)
	assert.Equal(t, pkt.FragmentCount, got.FragmentCount)
	assert.Equal(t, pkt.CRC32, got.CRC32)
	assert.Equal(t, pkt.Payload, got.Payload)
	assert.True(t, VerifyCRC(got))
}

func TestEncodeIsBigEndian(t *testing.T) {
	pkt := sampleDir()
	buf := Encode(pkt)

	assert.Equal(t, byte(0x0A), buf[1])
	assert.Equal(t, byte(0x00), buf[2])
	assert.Equal(t, byte(0x00), buf[3])
	assert.Equal(t, byte(0x01), buf[4])

	assert.Equal(t, byte(9000>>8), buf[5])
	assert.Equal(t, byte(9000&0xFF), buf[6])
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	_, err := Decode(make([]byte, PacketSize-1))
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	pkt := sampleDir()
	SetCRC(pkt)
	buf := Encode(pkt)
	buf[0] = Version + 1

	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	pkt := sampleDir()
	SetCRC(pkt)
	buf := Encode(pkt)
	buf[13] = 0xFF

	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestVerifyCRCCatchesSingleBitFlip(t *testing.T) {
	pkt := sampleDir()
	SetCRC(pkt)
	buf := Encode(pkt)

	// flip one bit deep in the payload region
	buf[HeaderSize+100] ^= 0x01

	flipped, err := Decode(buf)
	require.NoError(t, err)
	assert.False(t, VerifyCRC(flipped))
}

func TestCRCFieldIsZeroedDuringComputation(t *testing.T) {
	pkt := sampleDir()
	first := ComputeCRC(pkt)

	pkt.CRC32 = 0xDEADBEEF
	second := ComputeCRC(pkt)

	assert.Equal(t, first, second, "CRC field must not feed into its own checksum")
}
