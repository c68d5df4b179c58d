// Package transport loads certificate material and builds the
// mutually-authenticatable TLS configuration the server and client
// sides dial over. Loading is modeled on other retrieved proxies'
// loadCerts/newTLSClientConfig helpers (PEM keypair + CA bundle in,
// *tls.Config out); minting certificates is out of scope here.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
)

// ALPNProtocol is the only protocol identifier a kv-server peer will
// negotiate; it exists so two TLS peers can assert they both speak
// this protocol before any frame is exchanged.
const ALPNProtocol = "kv"

// TLSError reports a handshake, certificate-parse, or key-parse
// failure. It is always connection-fatal.
type TLSError struct {
	Cause error
}

func (e *TLSError) Error() string { return fmt.Sprintf("transport: tls: %v", e.Cause) }
func (e *TLSError) Unwrap() error { return e.Cause }

// Identity is a certificate chain plus its private key, both PEM
// encoded. The key may be PKCS#8 or RSA; tls.X509KeyPair accepts both.
type Identity struct {
	CertPEM []byte
	KeyPEM  []byte
}

func (id Identity) certificate() (tls.Certificate, error) {
	cert, err := tls.X509KeyPair(id.CertPEM, id.KeyPEM)
	if err != nil {
		return tls.Certificate{}, &TLSError{Cause: fmt.Errorf("parsing identity keypair: %w", err)}
	}
	return cert, nil
}

func certPool(bundlePEM []byte) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(bundlePEM) {
		return nil, &TLSError{Cause: fmt.Errorf("no certificates parsed from bundle")}
	}
	return pool, nil
}

// ServerAcceptor completes the server side of the TLS handshake.
type ServerAcceptor struct {
	config *tls.Config
}

// NewServerAcceptor builds an acceptor presenting identity. If
// clientCAPEM is non-empty, client certificates are required and
// verified against it (mutual auth); otherwise unauthenticated clients
// are allowed.
func NewServerAcceptor(identity Identity, clientCAPEM []byte) (*ServerAcceptor, error) {
	cert, err := identity.certificate()
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{ALPNProtocol},
	}

	if len(clientCAPEM) > 0 {
		pool, err := certPool(clientCAPEM)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return &ServerAcceptor{config: cfg}, nil
}

// Accept completes the TLS handshake over an already-accepted raw
// connection and returns the resulting secure stream, or a TLSError if
// the handshake fails.
func (a *ServerAcceptor) Accept(ctx context.Context, raw net.Conn) (*tls.Conn, error) {
	conn := tls.Server(raw, a.config)
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, &TLSError{Cause: fmt.Errorf("server handshake: %w", err)}
	}
	return conn, nil
}

// ClientConnector completes the client side of the TLS handshake.
type ClientConnector struct {
	config *tls.Config
}

// NewClientConnector builds a connector that verifies the server
// against serverName (SNI and certificate verification both use it —
// connecting with an unexpected name fails even against an otherwise
// valid certificate). identity is optional and presents a client
// certificate for mutual auth; serverCAPEM is optional and is added on
// top of the system trust store.
func NewClientConnector(serverName string, identity *Identity, serverCAPEM []byte) (*ClientConnector, error) {
	cfg := &tls.Config{
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
		NextProtos: []string{ALPNProtocol},
	}

	if identity != nil {
		cert, err := identity.certificate()
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if len(serverCAPEM) > 0 {
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(serverCAPEM) {
			return nil, &TLSError{Cause: fmt.Errorf("no certificates parsed from server CA bundle")}
		}
		cfg.RootCAs = pool
	}

	return &ClientConnector{config: cfg}, nil
}

// Connect dials address and completes the client side of the TLS
// handshake, verifying the server's certificate against the connector's
// configured server name and trust roots.
func (c *ClientConnector) Connect(ctx context.Context, address string) (*tls.Conn, error) {
	dialer := &tls.Dialer{Config: c.config}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &TLSError{Cause: fmt.Errorf("client dial/handshake to %s: %w", address, err)}
	}
	return conn.(*tls.Conn), nil
}
