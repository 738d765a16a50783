package directory

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameLen bounds a single request/response frame; directory
// payloads are small PeerRecords or short lists of them, never
// anything close to this.
const maxFrameLen = 8 << 20

// writeFrame writes a 4-byte big-endian length prefix followed by b,
// the same length-prefixed-JSON-over-a-stream shape frame/frame.go
// uses for its Type+Length+Payload header, minus the type byte (every
// directory frame on a given stream direction is the same kind of
// message, so no type tag is needed).
func writeFrame(w io.Writer, b []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(b)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// readFrame reads one length-prefixed frame written by writeFrame.
func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameLen {
		return nil, fmt.Errorf("directory: frame too large (%d bytes)", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
