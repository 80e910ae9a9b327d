package pubsub

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

type Nats struct {
	conn           *nats.Conn
	embeddedServer *server.Server
}

var _ PubSub = &Nats{}

// ServerOptions configures the embedded NATS server. Zero values bind to
// 127.0.0.1 on a random port with no authentication.
type ServerOptions struct {
	Host       string
	Port       int
	Token      string
	MaxPayload int
}

// NewInMemoryNats starts an embedded NATS server on a random port and
// connects to it. Snapshot broadcasts are fire-and-forget so no stream
// storage is configured.
func NewInMemoryNats() (*Nats, error) {
	return NewNats(ServerOptions{})
}

// NewNats starts an embedded NATS server with the given options and
// connects to it.
func NewNats(serverOpts ServerOptions) (*Nats, error) {
	host := serverOpts.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := serverOpts.Port
	if port == 0 {
		port = server.RANDOM_PORT
	}
	opts := &server.Options{
		Host:          host,
		Port:          port,
		Authorization: serverOpts.Token,
		NoSigs:        true,
	}
	if serverOpts.MaxPayload > 0 {
		opts.MaxPayload = int32(serverOpts.MaxPayload)
	}

	// Initialize new server with options
	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory nats server: %w", err)
	}

	// Start the server via goroutine
	go ns.Start()

	// Wait for server to be ready for connections
	if !ns.ReadyForConnections(4 * time.Second) {
		return nil, fmt.Errorf("failed to start in-memory nats server")
	}

	// Connect to server
	var connectOpts []nats.Option
	if serverOpts.Token != "" {
		connectOpts = append(connectOpts, nats.Token(serverOpts.Token))
	}
	nc, err := nats.Connect(ns.ClientURL(), connectOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &Nats{
		conn:           nc,
		embeddedServer: ns,
	}, nil
}

func (n *Nats) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
	if n.embeddedServer != nil {
		n.embeddedServer.Shutdown()
	}
}

func (n *Nats) Subscribe(_ context.Context, topic string, handler func(payload []byte) error) (Subscription, error) {
	sub, err := n.conn.Subscribe(topic, func(msg *nats.Msg) {
		err := handler(msg.Data)
		if err != nil {
			log.Err(err).Msg("error handling message")
		}
	})
	if err != nil {
		return nil, err
	}

	return sub, nil
}

func (n *Nats) Publish(_ context.Context, topic string, payload []byte) error {
	return n.conn.Publish(topic, payload)
}
