package directory

import (
	"context"
	"fmt"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"
	quic "github.com/quic-go/quic-go"

	"orbitmesh/metrics"
	"orbitmesh/model"
)

// Collection is the directory's single in-memory store: one mutex
// guards the whole map of PeerRecords, per §4.2's "State" contract.
// There is no reverse address index here — unlike netquic's
// RelayRegistry, identity in this system is the logical name, not a
// PeerID derived from an address, so no reverse lookup is needed on
// the server side.
type Collection struct {
	mu      sync.Mutex
	records map[string]model.PeerRecord
}

// NewCollection returns an empty registry; restart never repopulates
// it from disk, per §6's "no persisted state" contract.
func NewCollection() *Collection {
	return &Collection{records: make(map[string]model.PeerRecord)}
}

// Register inserts rec, replacing any existing record with the same
// name (address, coords, publicKey, class all take rec's values).
func (c *Collection) Register(rec model.PeerRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[rec.Name] = rec
	return nil
}

// Deregister removes the record whose name equals name once
// model.NormalizeName has trimmed NUL and whitespace from it. Absent
// names are a soft success: logged, not an error.
func (c *Collection) Deregister(name string) {
	name = model.NormalizeName(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.records[name]; !ok {
		log.Debugf("directory: deregister of absent peer %q (no-op)", name)
		return
	}
	delete(c.records, name)
}

// Update mutates an existing record; if absent, it is logged and
// returns success without creating one — no implicit create.
func (c *Collection) Update(rec model.PeerRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.records[rec.Name]; !ok {
		log.Debugf("directory: update of absent peer %q (no-op)", rec.Name)
		return nil
	}
	c.records[rec.Name] = rec
	return nil
}

// List returns a snapshot of the current record set.
func (c *Collection) List() []model.PeerRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.PeerRecord, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, rec)
	}
	return out
}

// Server accepts QUIC connections and answers directory actions on a
// bidirectional stream per call.
//
// Grounded on netquic/node.go's ListenAndServe/Accept/handleConn shape,
// generalized from per-connection unidirectional streams (fire this
// envelope and forget it) to one bidirectional stream per request, so
// the client reads its response without a second dial.
type Server struct {
	Collection *Collection
	Metrics    *metrics.Registry
}

// NewServer wires a fresh Collection to the server.
func NewServer() *Server {
	return &Server{Collection: NewCollection(), Metrics: metrics.NewRegistry()}
}

// ListenAndServe binds addr and serves directory requests until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	tlsConf := selfSignedTLSConfig()
	quicConf := &quic.Config{MaxIdleTimeout: quicIdleTimeout}

	listener, err := quic.ListenAddr(addr, tlsConf, quicConf)
	if err != nil {
		return fmt.Errorf("directory: bind failed: %w", err)
	}
	defer listener.Close()

	log.Infof("directory: listening on %s", addr)

	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warnf("directory: accept error: %v", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn *quic.Conn) {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go s.handleStream(stream)
	}
}

func (s *Server) handleStream(stream *quic.Stream) {
	defer stream.Close()

	reqBytes, err := readFrame(stream)
	if err != nil {
		if err != io.EOF {
			log.Warnf("directory: malformed request frame: %v", err)
		}
		return
	}

	req, err := unmarshalRequest(reqBytes)
	if err != nil {
		s.reply(stream, &Response{OK: false, Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	resp := s.dispatch(req)
	s.reply(stream, resp)
}

func (s *Server) dispatch(req *Request) *Response {
	resp := &Response{ID: req.ID}

	switch req.Action {
	case ActionRegister:
		if err := s.Collection.Register(req.Record); err != nil {
			resp.Error = err.Error()
			return resp
		}
		s.Metrics.DirectoryActions.WithLabelValues("register").Inc()
		resp.OK = true

	case ActionDeregister:
		s.Collection.Deregister(req.Name)
		s.Metrics.DirectoryActions.WithLabelValues("deregister").Inc()
		resp.OK = true

	case ActionUpdate:
		if err := s.Collection.Update(req.Record); err != nil {
			resp.Error = err.Error()
			return resp
		}
		s.Metrics.DirectoryActions.WithLabelValues("update").Inc()
		resp.OK = true

	case ActionList:
		resp.Records = s.Collection.List()
		s.Metrics.DirectoryActions.WithLabelValues("list").Inc()
		resp.OK = true

	default:
		resp.Error = fmt.Sprintf("unknown action %q", req.Action)
	}

	return resp
}

func (s *Server) reply(stream *quic.Stream, resp *Response) {
	b, err := resp.marshal()
	if err != nil {
		log.Warnf("directory: marshal response failed: %v", err)
		return
	}
	if err := writeFrame(stream, b); err != nil {
		log.Warnf("directory: write response failed: %v", err)
	}
}
