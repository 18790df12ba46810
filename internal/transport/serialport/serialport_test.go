package serialport

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"go.bug.st/serial"

	"github.com/stratosonde/groundstation/internal/telemetry"
)

func TestConfigMode(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		want    serial.Mode
		wantErr bool
	}{
		{
			name:   "defaults",
			config: Config{Device: "/dev/ttyUSB0"},
			want:   serial.Mode{BaudRate: 9600, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit},
		},
		{
			name:   "explicit 8N1",
			config: Config{Device: "/dev/ttyUSB0", Baud: 57600, Parity: "none", DataBits: 8, StopBits: 1},
			want:   serial.Mode{BaudRate: 57600, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit},
		},
		{
			name:   "7E2",
			config: Config{Device: "/dev/ttyUSB0", Baud: 19200, Parity: "even", DataBits: 7, StopBits: 2},
			want:   serial.Mode{BaudRate: 19200, DataBits: 7, Parity: serial.EvenParity, StopBits: serial.TwoStopBits},
		},
		{
			name:   "mark parity uppercase",
			config: Config{Device: "/dev/ttyUSB0", Parity: "MARK"},
			want:   serial.Mode{BaudRate: 9600, DataBits: 8, Parity: serial.MarkParity, StopBits: serial.OneStopBit},
		},
		{
			name:   "one and a half stop bits",
			config: Config{Device: "/dev/ttyUSB0", StopBits: 1.5},
			want:   serial.Mode{BaudRate: 9600, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OnePointFiveStopBits},
		},
		{
			name:    "unknown parity",
			config:  Config{Device: "/dev/ttyUSB0", Parity: "sometimes"},
			wantErr: true,
		},
		{
			name:    "data bits out of range",
			config:  Config{Device: "/dev/ttyUSB0", DataBits: 9},
			wantErr: true,
		},
		{
			name:    "invalid stop bits",
			config:  Config{Device: "/dev/ttyUSB0", StopBits: 3},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, err := tt.config.Mode()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Mode() = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Mode() = %v", err)
			}
			if *mode != tt.want {
				t.Errorf("Mode() = %+v, want %+v", *mode, tt.want)
			}
		})
	}
}

func testSource() *Source {
	return &Source{
		cfg:    &Config{Device: "/dev/ttyUSB0", Baud: 9600},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func collect(t *testing.T, s *Source, input string) []telemetry.RawFrame {
	t.Helper()

	frames := make(chan telemetry.RawFrame, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(frames)
		s.scan(context.Background(), strings.NewReader(input), frames)
	}()

	var got []telemetry.RawFrame
	for f := range frames {
		got = append(got, f)
	}
	<-done
	return got
}

func TestScanSplitsLines(t *testing.T) {
	got := collect(t, testSource(), "a,b,c\nd,e,f\ng,h,i\n")

	want := []string{"a,b,c", "d,e,f", "g,h,i"}
	if len(got) != len(want) {
		t.Fatalf("len(frames) = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Payload != w {
			t.Errorf("frames[%d].Payload = %q, want %q", i, got[i].Payload, w)
		}
		if got[i].Source != "serial:/dev/ttyUSB0@9600" {
			t.Errorf("frames[%d].Source = %q", i, got[i].Source)
		}
		if got[i].ReceivedAt.IsZero() {
			t.Errorf("frames[%d].ReceivedAt is zero", i)
		}
	}
}

func TestScanSkipsBlankLines(t *testing.T) {
	got := collect(t, testSource(), "\n\n  \na,b,c\n\n")

	if len(got) != 1 {
		t.Fatalf("len(frames) = %d, want 1", len(got))
	}
	if got[0].Payload != "a,b,c" {
		t.Errorf("Payload = %q, want %q", got[0].Payload, "a,b,c")
	}
}

func TestScanTrimsCRLF(t *testing.T) {
	got := collect(t, testSource(), "a,b,c\r\nd,e,f\r\n")

	if len(got) != 2 {
		t.Fatalf("len(frames) = %d, want 2", len(got))
	}
	if got[0].Payload != "a,b,c" || got[1].Payload != "d,e,f" {
		t.Errorf("payloads = %q, %q", got[0].Payload, got[1].Payload)
	}
}

func TestScanDeliversTrailingLineOnEOF(t *testing.T) {
	// A final line without a terminator is still one complete frame once
	// the stream ends.
	got := collect(t, testSource(), "a,b,c\nd,e,f")

	if len(got) != 2 {
		t.Fatalf("len(frames) = %d, want 2", len(got))
	}
	if got[1].Payload != "d,e,f" {
		t.Errorf("Payload = %q, want %q", got[1].Payload, "d,e,f")
	}
}

func TestScanRecoversAfterOverlongLine(t *testing.T) {
	// A burst of unterminated noise longer than MaxFrameBytes must not
	// stall the reader: the noise is discarded and the frames behind it
	// still come through.
	input := strings.Repeat("x", MaxFrameBytes+1) + "\n" + "a,b,c\n"
	got := collect(t, testSource(), input)

	if len(got) != 1 {
		t.Fatalf("len(frames) = %d, want 1", len(got))
	}
	if got[0].Payload != "a,b,c" {
		t.Errorf("Payload = %q, want %q", got[0].Payload, "a,b,c")
	}
}

func TestScanDropsOverlongTrailingLine(t *testing.T) {
	input := "a,b,c\n" + strings.Repeat("x", MaxFrameBytes+1)
	got := collect(t, testSource(), input)

	if len(got) != 1 {
		t.Fatalf("len(frames) = %d, want 1", len(got))
	}
	if got[0].Payload != "a,b,c" {
		t.Errorf("Payload = %q, want %q", got[0].Payload, "a,b,c")
	}
}

func TestScanStopsOnCancel(t *testing.T) {
	s := testSource()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	frames := make(chan telemetry.RawFrame)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.scan(ctx, strings.NewReader("a,b,c\nd,e,f\n"), frames)
	}()

	// The unbuffered channel has no consumer; scan must bail out on the
	// cancelled context instead of blocking.
	<-done
}
