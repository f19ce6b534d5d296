package events

import (
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// StartEmbedded runs an in-process NATS server on host:port (port -1 picks
// a free port) and returns it once it accepts connections. The caller owns
// Shutdown.
func StartEmbedded(host string, port int) (*natsserver.Server, error) {
	srv, err := natsserver.NewServer(&natsserver.Options{
		Host:       host,
		Port:       port,
		NoSigs:     true,
		ServerName: "storescan-embedded",
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedded NATS: %w", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		srv.Shutdown()
		return nil, fmt.Errorf("embedded NATS not ready on %s:%d", host, port)
	}
	return srv, nil
}
