// Package server implements the accept → TLS → stream → dispatch
// connection loop: one goroutine per connection, strict ping-pong, no
// pipelining, generalizing the teacher's handleConnection loop. It also
// carries forward the teacher's background-maintenance ticker
// (cleanupExpiredKeys), repurposed here as an optional idle-connection
// reaper driven by the configured read/write timeouts.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kvservice/kv/internal/service"
	"github.com/kvservice/kv/internal/stats"
	"github.com/kvservice/kv/internal/stream"
	"github.com/kvservice/kv/internal/transport"
	"github.com/kvservice/kv/internal/wire"
)

var requestCodec = stream.Codec[wire.CommandRequest]{Decode: wire.DecodeRequest}
var responseCodec = stream.Codec[wire.CommandResponse]{Encode: wire.EncodeResponse}

// Server accepts TCP connections, upgrades each to TLS, and dispatches
// one request at a time per connection through svc.
type Server struct {
	address      string
	acceptor     *transport.ServerAcceptor
	svc          *service.Service
	stats        *stats.Stats
	readTimeout  time.Duration
	writeTimeout time.Duration

	listener net.Listener
	running  atomic.Bool

	connsMu sync.Mutex
	conns   map[string]*trackedConn
}

// New builds a Server that will listen on address once Start is
// called. The larger of readTimeout and writeTimeout bounds how long a
// connection may sit idle (no read or write) before the reaper closes
// it; reaping is disabled only when both are zero.
func New(address string, acceptor *transport.ServerAcceptor, svc *service.Service, st *stats.Stats, readTimeout, writeTimeout time.Duration) *Server {
	return &Server{
		address:      address,
		acceptor:     acceptor,
		svc:          svc,
		stats:        st,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		conns:        make(map[string]*trackedConn),
	}
}

// Start binds the listener and accepts connections until Stop is
// called or the listener errors. It blocks; callers typically run it
// in its own goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.address, err)
	}
	s.listener = ln
	s.running.Store(true)
	log.Printf("kv-server listening on %s", s.address)

	if idleLimit := s.idleLimit(); idleLimit > 0 {
		go s.reapIdleConnections(idleLimit)
	}

	for s.running.Load() {
		conn, err := ln.Accept()
		if err != nil {
			if s.running.Load() {
				log.Printf("server: accept: %v", err)
				continue
			}
			return nil
		}
		s.stats.RecordConnection()
		go s.handleConnection(conn)
	}
	return nil
}

// Stop closes the listener, which unblocks Start. Connections already
// accepted are not closed: their goroutines keep serving requests until
// the peer disconnects or a read/write fails.
func (s *Server) Stop() {
	s.running.Store(false)
	if s.listener != nil {
		s.listener.Close()
	}
}

// idleLimit is the longest a connection may go without activity before
// the reaper considers it stale: the larger of the configured read and
// write timeouts, since either direction going silent that long means
// the peer is gone. Zero means reaping is disabled.
func (s *Server) idleLimit() time.Duration {
	limit := s.readTimeout
	if s.writeTimeout > limit {
		limit = s.writeTimeout
	}
	return limit
}

// reapIdleConnections mirrors the teacher's cleanupExpiredKeys: a ticker
// loop that runs for the life of the server, each tick closing any
// tracked connection that has been silent longer than idleLimit. Closing
// the underlying net.Conn unblocks a parked Recv in handleConnection,
// which then exits its loop and unregisters itself.
func (s *Server) reapIdleConnections(idleLimit time.Duration) {
	interval := idleLimit / 2
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for s.running.Load() {
		<-ticker.C
		now := time.Now()

		s.connsMu.Lock()
		var stale []string
		for id, tc := range s.conns {
			if now.Sub(tc.lastActiveTime()) > idleLimit {
				stale = append(stale, id)
			}
		}
		for _, id := range stale {
			tc := s.conns[id]
			delete(s.conns, id)
			log.Printf("conn %s: idle past %s, reaping", id, idleLimit)
			tc.Close()
		}
		s.connsMu.Unlock()
	}
}

func (s *Server) registerConn(id string, tc *trackedConn) {
	s.connsMu.Lock()
	s.conns[id] = tc
	s.connsMu.Unlock()
}

func (s *Server) unregisterConn(id string) {
	s.connsMu.Lock()
	delete(s.conns, id)
	s.connsMu.Unlock()
}

// trackedConn wraps a connection with per-byte stats accounting and a
// last-activity timestamp the reaper polls, folding both concerns the
// teacher's ServerStats/cleanupExpiredKeys covered separately into one
// wrapper around the duplex stream's transport.
type trackedConn struct {
	net.Conn
	stats      *stats.Stats
	lastActive atomic.Int64 // unix nanoseconds
}

func newTrackedConn(conn net.Conn, st *stats.Stats) *trackedConn {
	tc := &trackedConn{Conn: conn, stats: st}
	tc.touch()
	return tc
}

func (c *trackedConn) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

func (c *trackedConn) lastActiveTime() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *trackedConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 {
		c.stats.RecordBytes(n, 0)
		c.touch()
	}
	return n, err
}

func (c *trackedConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if n > 0 {
		c.stats.RecordBytes(0, n)
		c.touch()
	}
	return n, err
}

// handleConnection performs the TLS handshake, then loops: read one
// CommandRequest, dispatch it synchronously, write one CommandResponse.
// Dropping out of this loop — on read error or peer close — closes the
// stream and releases the socket and TLS session deterministically via
// the deferred Close.
func (s *Server) handleConnection(raw net.Conn) {
	connID := uuid.New().String()
	ctx := context.Background()

	tlsConn, err := s.acceptor.Accept(ctx, raw)
	if err != nil {
		log.Printf("conn %s: tls handshake failed: %v", connID, err)
		return
	}

	tc := newTrackedConn(tlsConn, s.stats)
	s.registerConn(connID, tc)
	defer s.unregisterConn(connID)

	st := stream.New[wire.CommandRequest, wire.CommandResponse](tc, requestCodec, responseCodec)
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("conn %s: close: %v", connID, err)
		}
	}()

	for {
		req, err := st.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("conn %s: read error: %v", connID, err)
			}
			return
		}

		s.stats.RecordOp(req.Op.String())
		resp := s.svc.Dispatch(ctx, req)

		if err := st.Send(resp); err != nil {
			log.Printf("conn %s: encode response: %v", connID, err)
			return
		}
		if err := st.Flush(); err != nil {
			log.Printf("conn %s: write error: %v", connID, err)
			return
		}
	}
}
