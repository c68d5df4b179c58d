// Package client implements the symmetric client side of the protocol:
// connect once, then Execute exchanges exactly one request for one
// response per call — strict ping-pong, same as the server.
package client

import (
	"context"
	"fmt"

	"github.com/kvservice/kv/internal/stream"
	"github.com/kvservice/kv/internal/transport"
	"github.com/kvservice/kv/internal/wire"
)

var requestCodec = stream.Codec[wire.CommandRequest]{Encode: wire.EncodeRequest}
var responseCodec = stream.Codec[wire.CommandResponse]{Decode: wire.DecodeResponse}

// Client holds one open, TLS-authenticated connection to a kv-server.
type Client struct {
	stream *stream.Stream[wire.CommandResponse, wire.CommandRequest]
}

// Dial connects to address through connector and returns a Client
// ready to Execute requests.
func Dial(ctx context.Context, connector *transport.ClientConnector, address string) (*Client, error) {
	conn, err := connector.Connect(ctx, address)
	if err != nil {
		return nil, err
	}
	return &Client{stream: stream.New[wire.CommandResponse, wire.CommandRequest](conn, responseCodec, requestCodec)}, nil
}

// Execute sends req and waits for the matching response. It takes no
// context and cannot be cancelled. If Flush fails after part of a frame
// has been written, the stream is left desynchronized and the
// connection must be discarded rather than reused.
func (c *Client) Execute(req wire.CommandRequest) (wire.CommandResponse, error) {
	if err := c.stream.Send(req); err != nil {
		return wire.CommandResponse{}, err
	}
	if err := c.stream.Flush(); err != nil {
		return wire.CommandResponse{}, err
	}
	resp, err := c.stream.Recv()
	if err != nil {
		return wire.CommandResponse{}, fmt.Errorf("client: stream closed mid-exchange: %w", err)
	}
	return resp, nil
}

// Close shuts down the underlying connection.
func (c *Client) Close() error {
	return c.stream.Close()
}
