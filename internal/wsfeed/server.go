package wsfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stratosonde/groundstation/internal/pubsub"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the live telemetry feed over WebSocket. Each client on
// /feed gets its own subscription to the publisher, so slow consumers
// drop events independently and never block the pipeline or each other.
type Server struct {
	publisher *pubsub.Publisher
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	srv       *http.Server
}

// WithLogger sets the logger to use. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) func(*Server) {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a feed Server listening on addr, forwarding events from
// the given publisher.
func New(addr string, publisher *pubsub.Publisher, opts ...func(*Server)) *Server {
	s := &Server{
		publisher: publisher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/feed", s.handleFeed)

	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

// Run serves the feed until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info("feed server listening", "addr", s.srv.Addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("serving feed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down feed server: %w", err)
	}
	return nil
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sub := s.publisher.Subscribe(r.RemoteAddr, 0)
	conn := newConnection(ws, s.logger, func() {
		s.publisher.Unsubscribe(sub)
	})

	go s.forward(sub, conn)

	s.logger.Info("feed client connected", "remote", r.RemoteAddr)
	conn.run()
	s.logger.Info("feed client disconnected", "remote", r.RemoteAddr)
}

// forward encodes events from a subscription and queues them for the
// client. It returns when the subscription channel is closed.
func (s *Server) forward(sub *pubsub.Subscriber, conn *connection) {
	defer close(conn.send)

	for ev := range sub.Events() {
		p, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("encoding feed event", "error", err)
			continue
		}
		conn.enqueue(p)
	}
}
