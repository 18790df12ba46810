package serialport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/stratosonde/groundstation/internal/telemetry"
	"github.com/stratosonde/groundstation/internal/transport"
)

// MaxFrameBytes bounds the bytes buffered for a single frame. A line that
// grows past this without a terminator is discarded up to the next
// delimiter and the reader keeps going.
const MaxFrameBytes = 64 * 1024

// Config describes the serial link. Parity and stop bits use the string
// and numeric forms commonly found on radio module datasheets.
type Config struct {
	Device   string  `yaml:"device"`
	Baud     int     `yaml:"baud"`
	Parity   string  `yaml:"parity"`   // none, odd, even, mark, space
	DataBits int     `yaml:"dataBits"` // 5-8
	StopBits float64 `yaml:"stopBits"` // 1, 1.5 or 2
}

// Mode translates the config into a serial.Mode, validating each setting.
func (c *Config) Mode() (*serial.Mode, error) {
	mode := serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	if c.Baud > 0 {
		mode.BaudRate = c.Baud
	}

	if c.DataBits != 0 {
		if c.DataBits < 5 || c.DataBits > 8 {
			return nil, fmt.Errorf("serial: data bits must be 5-8, got %d", c.DataBits)
		}
		mode.DataBits = c.DataBits
	}

	switch strings.ToLower(c.Parity) {
	case "", "none":
		mode.Parity = serial.NoParity
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	case "mark":
		mode.Parity = serial.MarkParity
	case "space":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("serial: unknown parity %q", c.Parity)
	}

	switch c.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 1.5:
		mode.StopBits = serial.OnePointFiveStopBits
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("serial: stop bits must be 1, 1.5 or 2, got %v", c.StopBits)
	}

	return &mode, nil
}

// WithLogger sets the logger for the source.
func WithLogger(logger *slog.Logger) func(*Source) {
	return func(s *Source) {
		s.logger = logger.With(slog.String("transport", s.ID()))
	}
}

// Source reads newline-delimited frames from a serial device. Bytes that
// arrive without a line terminator stay buffered until the terminator
// shows up, up to MaxFrameBytes per line.
type Source struct {
	cfg  *Config
	port serial.Port

	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

// New opens the configured device. A missing device or one held by another
// process fails with an error wrapping transport.ErrUnavailable.
func New(cfg *Config, options ...func(*Source)) (*Source, error) {
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", transport.ErrUnavailable, cfg.Device, err)
	}

	s := Source{
		cfg:    cfg,
		port:   port,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s, nil
}

func (s *Source) ID() string {
	return fmt.Sprintf("serial:%s@%d", s.cfg.Device, s.cfg.Baud)
}

// Frames starts the reader goroutine. The returned channel closes when the
// context is cancelled or the port dries up.
func (s *Source) Frames(ctx context.Context) (<-chan telemetry.RawFrame, error) {
	frames := make(chan telemetry.RawFrame)

	go func() {
		// Unblock the scanner when the context is cancelled.
		<-ctx.Done()
		_ = s.Close()
	}()

	go func() {
		defer close(frames)
		s.scan(ctx, s.port, frames)
	}()

	return frames, nil
}

func (s *Source) scan(ctx context.Context, r io.Reader, frames chan<- telemetry.RawFrame) {
	reader := bufio.NewReaderSize(r, 4096)

	var pending strings.Builder
	var overlong bool

	emit := func(line string) bool {
		line = strings.TrimSpace(line)
		if line == "" {
			return true
		}

		frame := telemetry.RawFrame{
			Payload:    line,
			ReceivedAt: time.Now(),
			Source:     s.ID(),
		}

		select {
		case frames <- frame:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		chunk, err := reader.ReadSlice('\n')
		if len(chunk) > 0 {
			terminated := chunk[len(chunk)-1] == '\n'

			if !overlong {
				pending.Write(chunk)
				if pending.Len() > MaxFrameBytes {
					s.logger.Warn(fmt.Sprintf("discarding frame longer than %d bytes", MaxFrameBytes))
					pending.Reset()
					overlong = true
				}
			}

			if terminated {
				if overlong {
					overlong = false
				} else {
					line := pending.String()
					pending.Reset()
					if !emit(line) {
						return
					}
				}
			}
		}

		switch {
		case err == nil, errors.Is(err, bufio.ErrBufferFull):
		default:
			if !overlong && pending.Len() > 0 && !emit(pending.String()) {
				return
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) && ctx.Err() == nil {
				s.logger.Error(fmt.Sprintf("serial read failed: %s", err))
			}
			return
		}
	}
}

// Close releases the port. Safe to call more than once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.port.Close()
	})
	return s.closeErr
}
