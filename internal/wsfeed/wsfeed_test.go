package wsfeed

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stratosonde/groundstation/internal/pubsub"
	"github.com/stratosonde/groundstation/internal/telemetry"
)

func testFeed(t *testing.T) (*pubsub.Publisher, *websocket.Conn) {
	t.Helper()

	publisher := pubsub.New()
	server := New(":0", publisher)

	ts := httptest.NewServer(http.HandlerFunc(server.handleFeed))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/feed"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing feed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return publisher, conn
}

func TestFeedDeliversEvents(t *testing.T) {
	publisher, conn := testFeed(t)
	defer publisher.Close()

	sample := telemetry.Sample{
		ReceivedAt: time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC),
		Latitude:   52.2135,
		Longitude:  0.0964,
		Altitude:   1204.5,
	}
	deviation := telemetry.Deviation{
		HorizontalMeters: 850,
		WaypointIndex:    3,
		SampleTime:       sample.ReceivedAt,
	}

	// The subscription is registered during the HTTP upgrade; poll until
	// the publisher sees it.
	deadline := time.Now().Add(5 * time.Second)
	var payload []byte
	for time.Now().Before(deadline) {
		publisher.Publish(pubsub.Event{
			Sample:    &sample,
			Deviation: &deviation,
			Health:    telemetry.Health{FramesReceived: 1},
		})

		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		_, p, err := conn.ReadMessage()
		if err == nil {
			payload = p
			break
		}
	}
	if payload == nil {
		t.Fatal("no event received")
	}

	var ev pubsub.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if ev.Sample == nil || ev.Sample.Latitude != 52.2135 {
		t.Errorf("Sample = %+v, want latitude 52.2135", ev.Sample)
	}
	if ev.Deviation == nil || ev.Deviation.WaypointIndex != 3 {
		t.Errorf("Deviation = %+v, want waypoint 3", ev.Deviation)
	}
	if ev.Health.FramesReceived != 1 {
		t.Errorf("FramesReceived = %d, want 1", ev.Health.FramesReceived)
	}
}

func TestFeedPublishNeverBlocks(t *testing.T) {
	publisher, _ := testFeed(t)
	defer publisher.Close()

	// Far more events than any queue in the path can hold. The client is
	// not reading, so this only passes if every hop drops instead of
	// blocking.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			publisher.Publish(pubsub.Event{Health: telemetry.Health{FramesReceived: uint64(i)}})
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Publish blocked on a stalled feed client")
	}
}
