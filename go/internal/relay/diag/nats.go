package diag

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds configuration for the NATS diagnostic recorder.
type NATSConfig struct {
	URL           string
	Subject       string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns default NATS recorder configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Subject:       "shotclock.diagnostics",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// NATSRecorder publishes diagnostic lines to a NATS subject so status can be
// tailed from anywhere without attaching to the relay process.
type NATSRecorder struct {
	nc      *nats.Conn
	subject string
}

// NewNATSRecorder connects to NATS and returns a recorder publishing to the
// configured subject.
func NewNATSRecorder(config NATSConfig) (*NATSRecorder, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSRecorder{nc: nc, subject: config.Subject}, nil
}

// Record implements Recorder. Publish failures are logged and dropped; the
// diagnostics path never feeds errors back into the relay.
func (r *NATSRecorder) Record(message string) {
	if err := r.nc.Publish(r.subject, []byte(message)); err != nil {
		log.Error().Err(err).Str("subject", r.subject).Msg("failed to publish diagnostic line")
	}
}

// Close drains the NATS connection.
func (r *NATSRecorder) Close() {
	if r.nc != nil {
		r.nc.Close()
	}
}
