package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/timtraver/repeater/go/internal/relay"
	"github.com/timtraver/repeater/go/internal/relay/broadcast"
	"github.com/timtraver/repeater/go/internal/relay/diag"
	"github.com/timtraver/repeater/go/internal/relay/rooms"
	"github.com/timtraver/repeater/go/internal/relay/transport"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	configPath := getEnv("CONFIG_PATH", "config.yaml")
	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", configPath).Msg("using default configuration")
	}

	// Diagnostic sink selection
	var (
		recorder diag.Recorder = diag.Nop{}
		mem      *diag.Memory
		natsRec  *diag.NATSRecorder
	)
	if cfg.Diagnostics.Enabled {
		switch cfg.Diagnostics.Sink {
		case "nats":
			natsCfg := diag.DefaultNATSConfig()
			natsCfg.URL = cfg.Diagnostics.NATSURL
			natsCfg.Subject = cfg.Diagnostics.Subject
			natsRec, err = diag.NewNATSRecorder(natsCfg)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to create NATS diagnostic recorder")
			}
			recorder = natsRec
		default:
			mem = diag.NewMemory(0)
			recorder = mem
		}
	}

	clock := clockwork.NewRealClock()
	ts := transport.NewServer(transport.DefaultConfig(), clock)
	store := rooms.NewStore()
	bcast := broadcast.New(ts, time.Duration(cfg.Relay.AckWindowMs)*time.Millisecond)

	svc := relay.NewService(relay.DefaultConfig(), ts, store, bcast, recorder, clock)
	svc.Bind(ts)

	server := setupServer(cfg, ts, svc, mem)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("repeater listening")
		recorder.Record("Server started and listening at http://" + server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	// Graceful shutdown: stop accepting, drop every session, abandon retries.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	ts.DisconnectAll()
	bcast.Shutdown()
	recorder.Record("Socket server services stopped.")
	if natsRec != nil {
		natsRec.Close()
	}

	log.Info().Msg("repeater shutdown complete")
}
