package main

import (
	"fmt"
	"os"

	"github.com/kvservice/kv/internal/transport"
)

// loadIdentity reads the server's certificate chain and private key from
// disk into a transport.Identity.
func loadIdentity(certFile, keyFile string) (transport.Identity, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return transport.Identity{}, fmt.Errorf("reading cert file %s: %w", certFile, err)
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return transport.Identity{}, fmt.Errorf("reading key file %s: %w", keyFile, err)
	}
	return transport.Identity{CertPEM: certPEM, KeyPEM: keyPEM}, nil
}

// readOptionalFile returns the file's contents, or nil if path is empty.
// An empty path means the corresponding feature (e.g. mutual auth) is
// disabled rather than misconfigured.
func readOptionalFile(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
