package udp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/stratosonde/groundstation/internal/telemetry"
	"github.com/stratosonde/groundstation/internal/transport"
)

// maxDatagramSize is the largest payload one datagram frame may carry.
const maxDatagramSize = 64 * 1024

// Config describes the UDP bind address.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (c *Config) addr() string {
	host := c.Host
	if host == "" {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, fmt.Sprintf("%d", c.Port))
}

// WithLogger sets the logger for the source.
func WithLogger(logger *slog.Logger) func(*Source) {
	return func(s *Source) {
		s.logger = logger.With(slog.String("transport", s.ID()))
	}
}

// Source receives frames as UDP datagrams, one frame per datagram with no
// reassembly across datagrams.
type Source struct {
	cfg  *Config
	conn *net.UDPConn

	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

// New binds the configured address. A bind failure (port in use, bad host)
// fails with an error wrapping transport.ErrUnavailable.
func New(cfg *Config, options ...func(*Source)) (*Source, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.addr())
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %w", transport.ErrUnavailable, cfg.addr(), err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: binding %s: %w", transport.ErrUnavailable, cfg.addr(), err)
	}

	s := Source{
		cfg:    cfg,
		conn:   conn,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s, nil
}

func (s *Source) ID() string {
	return "udp:" + s.conn.LocalAddr().String()
}

// LocalAddr reports the bound address, useful when the configured port is 0.
func (s *Source) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Frames starts the receiver goroutine. The returned channel closes when
// the context is cancelled or the socket is closed.
func (s *Source) Frames(ctx context.Context) (<-chan telemetry.RawFrame, error) {
	frames := make(chan telemetry.RawFrame)

	go func() {
		// Unblock ReadFromUDP when the context is cancelled.
		<-ctx.Done()
		_ = s.Close()
	}()

	go func() {
		defer close(frames)

		buf := make([]byte, maxDatagramSize)
		for {
			n, _, err := s.conn.ReadFromUDP(buf)
			if err != nil {
				if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
					s.logger.Error(fmt.Sprintf("udp read failed: %s", err))
				}
				return
			}

			payload := strings.TrimSpace(string(buf[:n]))
			if payload == "" {
				continue
			}

			frame := telemetry.RawFrame{
				Payload:    payload,
				ReceivedAt: time.Now(),
				Source:     s.ID(),
			}

			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames, nil
}

// Close releases the socket. Safe to call more than once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
