// Package directory implements the central registry: the server side
// (§4.2) and the client side (§4.5) of the four-action protocol
// (register, deregister, update, list).
//
// Grounded on rpc/rpc.go's Message{Type,ID,Method,Data,Error} envelope
// and atomic request-ID allocation, re-purposed so Method names one of
// the four directory actions and Data carries a PeerRecord (or, for
// list, an array of them) instead of an opaque RPC payload. The
// envelope is carried over a QUIC stream per call rather than wrapped
// in envelop.Envelope + Frame, since the directory has no routing or
// onion-layering concerns of its own.
package directory

import (
	"encoding/json"
	"sync/atomic"

	"orbitmesh/model"
)

// Action names the four directory operations. Any self-describing
// encoding that carries this field plus the relevant PeerRecord
// attributes is a conforming wire protocol.
type Action string

const (
	ActionRegister   Action = "register"
	ActionDeregister Action = "deregister"
	ActionUpdate     Action = "update"
	ActionList       Action = "list"
)

// Request is one call against the directory.
type Request struct {
	ID     uint64     `json:"id"`
	Action Action     `json:"action"`
	Record model.PeerRecord `json:"record,omitempty"`
	Name   string     `json:"name,omitempty"` // deregister only
}

// Response carries either a success payload or a structured error.
type Response struct {
	ID      uint64             `json:"id"`
	OK      bool               `json:"ok"`
	Error   string             `json:"error,omitempty"`
	Records []model.PeerRecord `json:"records,omitempty"` // list only
}

var globalRequestID uint64

// nextRequestID allocates a monotonically increasing request ID, the
// same atomic-counter shape rpc.go uses for its Message.ID.
func nextRequestID() uint64 {
	return atomic.AddUint64(&globalRequestID, 1)
}

func (r *Request) marshal() ([]byte, error)  { return json.Marshal(r) }
func (r *Response) marshal() ([]byte, error) { return json.Marshal(r) }

func unmarshalRequest(b []byte) (*Request, error) {
	var r Request
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func unmarshalResponse(b []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
