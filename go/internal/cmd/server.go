package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/timtraver/repeater/go/internal/relay"
	"github.com/timtraver/repeater/go/internal/relay/diag"
	"github.com/timtraver/repeater/go/internal/relay/transport"
)

func setupServer(cfg Config, ts *transport.Server, svc *relay.Service, mem *diag.Memory) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware; admin screens and overlays connect from anywhere.
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Websocket endpoints
	ts.RegisterRoutes(mux)

	// Add health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Add service info
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		sessions, _ := ts.Stats()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"service":"shotclock-repeater","sessions":%d,"matches":%d}`,
			sessions, svc.Rooms())
	})

	// Diagnostic lines, when the in-memory recorder is active
	if mem != nil {
		mux.HandleFunc("/diagnostics", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			for _, line := range mem.Lines() {
				fmt.Fprintln(w, line)
			}
		})
	}

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:      c.Handler(mux),
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
