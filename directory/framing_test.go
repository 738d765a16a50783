package directory

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"action":"list"}`)

	require.NoError(t, writeFrame(&buf, payload))

	got, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, bytes.Repeat([]byte{0}, 0)))
	// Overwrite the length prefix with something past maxFrameLen.
	raw := buf.Bytes()
	raw[0], raw[1], raw[2], raw[3] = 0xFF, 0xFF, 0xFF, 0xFF

	_, err := readFrame(bytes.NewReader(raw))
	assert.Error(t, err)
}

func TestRequestResponseMarshalRoundTrip(t *testing.T) {
	req := &Request{Action: ActionRegister, Record: testRecord("G1", 1, 2)}
	b, err := req.marshal()
	require.NoError(t, err)

	got, err := unmarshalRequest(b)
	require.NoError(t, err)
	assert.Equal(t, req.Action, got.Action)
	assert.Equal(t, req.Record.Name, got.Record.Name)
}
