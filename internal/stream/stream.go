// Package stream wraps a full-duplex byte transport (a TLS connection,
// in practice) in a typed producer/consumer pair sharing the wire frame
// codec. One implementation serves both the server (In=CommandRequest,
// Out=CommandResponse) and the client (In=CommandResponse,
// Out=CommandRequest).
package stream

import (
	"bufio"
	"fmt"
	"net"

	"github.com/kvservice/kv/internal/wire"
)

// Codec encodes/decodes one message type to/from a frame payload. The
// wire package's EncodeRequest/DecodeRequest and
// EncodeResponse/DecodeResponse pairs satisfy this on either side.
type Codec[T any] struct {
	Encode func(T) ([]byte, error)
	Decode func([]byte) (T, error)
}

// Stream is a typed duplex message stream: it produces inbound
// messages of type In and consumes outbound messages of type Out, both
// framed with wire.EncodeFrame/DecodeFrame over conn.
type Stream[In any, Out any] struct {
	conn net.Conn
	r    *bufio.Reader
	in   Codec[In]
	out  Codec[Out]

	writeBuf []byte
}

// New wraps conn as a Stream. conn is typically the result of a TLS
// handshake, but any full-duplex net.Conn works.
func New[In any, Out any](conn net.Conn, in Codec[In], out Codec[Out]) *Stream[In, Out] {
	return &Stream[In, Out]{
		conn: conn,
		r:    bufio.NewReader(conn),
		in:   in,
		out:  out,
	}
}

// Recv pulls the next inbound message. It returns io.EOF when the peer
// half-closes cleanly between frames, or a decode/IO error otherwise.
// Each call starts by reading a fresh frame; the internal read buffer
// never straddles frame boundaries, so there is nothing to assert empty
// between calls — bufio.Reader's own buffer is the only carryover and
// it is always positioned at a frame boundary on entry.
func (s *Stream[In, Out]) Recv() (In, error) {
	var zero In
	payload, err := wire.DecodeFrame(s.r)
	if err != nil {
		return zero, err
	}
	msg, err := s.in.Decode(payload)
	if err != nil {
		return zero, fmt.Errorf("stream: decode message: %w", err)
	}
	return msg, nil
}

// Send encodes msg into the stream's internal write buffer without
// touching the transport. Call Flush to push it out; poll_ready-style
// backpressure has no meaning in synchronous Go, so Send itself never
// blocks on the network.
func (s *Stream[In, Out]) Send(msg Out) error {
	payload, err := s.out.Encode(msg)
	if err != nil {
		return fmt.Errorf("stream: encode message: %w", err)
	}
	buf, err := wire.EncodeFrame(s.writeBuf, payload)
	if err != nil {
		return err
	}
	s.writeBuf = buf
	return nil
}

// Flush drains the write buffer to the transport, retrying on short
// writes. net.Conn writes are unbuffered on the wire already, so
// draining the buffer is the transport flush; there is no separate
// step to invoke. Flush is not safe to retry after it has partially
// written a frame: a caller that cancels mid-Flush must discard the
// connection rather than call Flush again, since the stream may be
// left desynchronized.
func (s *Stream[In, Out]) Flush() error {
	buf := s.writeBuf
	for len(buf) > 0 {
		n, err := s.conn.Write(buf)
		if err != nil {
			s.writeBuf = nil
			return fmt.Errorf("stream: write: %w", err)
		}
		buf = buf[n:]
	}
	s.writeBuf = s.writeBuf[:0]
	return nil
}

// Close flushes any pending writes and then shuts down the transport.
func (s *Stream[In, Out]) Close() error {
	flushErr := s.Flush()
	closeErr := s.conn.Close()
	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return fmt.Errorf("stream: close transport: %w", closeErr)
	}
	return nil
}
