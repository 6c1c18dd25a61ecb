package nats

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer wraps an in-process NATS server with JetStream,
// used by tests and single-binary deployments.
type EmbeddedServer struct {
	server *server.Server
	url    string
}

// StartEmbeddedServer starts an embedded NATS server on a random port.
func StartEmbeddedServer() (*EmbeddedServer, error) {
	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1, // Random port
		JetStream: true,
	}

	s, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded server: %w", err)
	}

	go s.Start()

	if !s.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("embedded server not ready")
	}

	return &EmbeddedServer{server: s, url: s.ClientURL()}, nil
}

// URL returns the connection URL for the embedded server.
func (e *EmbeddedServer) URL() string {
	return e.url
}

// Shutdown stops the embedded server.
func (e *EmbeddedServer) Shutdown() {
	if e.server != nil {
		e.server.Shutdown()
		e.server.WaitForShutdown()
	}
}

// TestConfig returns a bus config suitable for tests against an
// embedded server: short retention, small stream.
func TestConfig(serverURL string) Config {
	return Config{
		URL:            serverURL,
		StreamName:     "TEST_CARTS",
		StreamSubjects: []string{"carts.>"},
		MaxAge:         time.Minute,
		MaxBytes:       10 * 1024 * 1024,
	}
}
