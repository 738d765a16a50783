package directory

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	quic "github.com/quic-go/quic-go"

	"orbitmesh/model"
)

// ErrUnreachable wraps every transport-level failure talking to the
// directory. Callers log it and continue with their last snapshot,
// per §7's DirectoryUnreachable policy — it is never fatal.
var ErrUnreachable = fmt.Errorf("directory: unreachable")

// Client maintains one long-lived QUIC connection to the directory,
// redialing lazily on first use or after a failure.
//
// Grounded on netquic/peermanager.go's getConn: reuse a pooled
// connection while it is alive, dial a fresh one otherwise. Simplified
// from a map of per-target connections to the single directory
// endpoint every peer talks to.
type Client struct {
	addr string

	mu   sync.Mutex
	conn *quic.Conn
}

// NewClient creates a directory client for the given address; it does
// not dial until the first call.
func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

func (c *Client) getConn(ctx context.Context) (*quic.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.Context().Err() == nil {
		return c.conn, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	conn, err := quic.DialAddr(dialCtx, c.addr, selfSignedTLSConfig(), &quic.Config{MaxIdleTimeout: quicIdleTimeout})
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnreachable, c.addr, err)
	}
	c.conn = conn
	return conn, nil
}

// call performs one request/response round trip on a fresh
// bidirectional stream, bounded by CallTimeout.
func (c *Client) call(ctx context.Context, req *Request) (*Response, error) {
	req.ID = nextRequestID()

	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	conn, err := c.getConn(ctx)
	if err != nil {
		return nil, err
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: open stream: %v", ErrUnreachable, err)
	}
	defer stream.Close()

	reqBytes, err := req.marshal()
	if err != nil {
		return nil, fmt.Errorf("directory: marshal request: %w", err)
	}
	if err := writeFrame(stream, reqBytes); err != nil {
		return nil, fmt.Errorf("%w: write request: %v", ErrUnreachable, err)
	}

	respBytes, err := readFrame(stream)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnreachable, err)
	}

	resp, err := unmarshalResponse(respBytes)
	if err != nil {
		return nil, fmt.Errorf("directory: decode response: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("directory: action failed: %s", resp.Error)
	}
	return resp, nil
}

// Register publishes rec to the directory.
func (c *Client) Register(ctx context.Context, rec model.PeerRecord) error {
	_, err := c.call(ctx, &Request{Action: ActionRegister, Record: rec})
	if err != nil {
		log.Warnf("directory: register failed: %v", err)
	}
	return err
}

// Deregister removes name from the directory. Call on clean shutdown.
func (c *Client) Deregister(ctx context.Context, name string) error {
	_, err := c.call(ctx, &Request{Action: ActionDeregister, Name: name})
	if err != nil {
		log.Warnf("directory: deregister failed: %v", err)
	}
	return err
}

// Update pushes a changed record (used by the mobility updater).
func (c *Client) Update(ctx context.Context, rec model.PeerRecord) error {
	_, err := c.call(ctx, &Request{Action: ActionUpdate, Record: rec})
	if err != nil {
		log.Warnf("directory: update failed: %v", err)
	}
	return err
}

// List fetches the current fleet membership.
func (c *Client) List(ctx context.Context) ([]model.PeerRecord, error) {
	resp, err := c.call(ctx, &Request{Action: ActionList})
	if err != nil {
		log.Warnf("directory: list failed: %v", err)
		return nil, err
	}
	return resp.Records, nil
}
