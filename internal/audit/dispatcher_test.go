package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDispatcherStampsFromContextAndFlushesOnClose(t *testing.T) {
	rec := NewRecorder(0)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d := NewDispatcher(rec, Options{Buffer: 8, Now: func() time.Time { return fixed }})

	ctx := WithRequestID(WithClientIP(context.Background(), "198.51.100.7"), "req-42")
	for i := 0; i < 5; i++ {
		d.Record(ctx, Event{EventType: Login, Success: true})
	}
	d.Close()

	events := rec.Events()
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	ev := events[0]
	if ev.IP != "198.51.100.7" || ev.RequestID != "req-42" || !ev.Timestamp.Equal(fixed) {
		t.Fatalf("event not stamped from context: %+v", ev)
	}

	d.Record(ctx, Event{EventType: Logout, Success: true})
	d.Close()
	if len(rec.Events()) != 5 {
		t.Fatal("record after close must be ignored")
	}
}

func TestDispatcherKeepsExplicitFields(t *testing.T) {
	rec := NewRecorder(0)
	d := NewDispatcher(rec, Options{})
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	d.Record(WithClientIP(context.Background(), "ctx-ip"), Event{EventType: Refresh, Success: true, IP: "event-ip", Timestamp: at})
	d.Close()

	ev, ok := rec.Last(Refresh, true)
	if !ok {
		t.Fatal("expected refresh event")
	}
	if ev.IP != "event-ip" || !ev.Timestamp.Equal(at) {
		t.Fatalf("explicit fields overwritten: %+v", ev)
	}
}

func TestNilDispatcherDiscards(t *testing.T) {
	var d *Dispatcher
	d.Record(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 || d.DroppedByType() != nil {
		t.Fatal("nil dispatcher should report zero drops")
	}
}

type blockingSink struct{ release chan struct{} }

func (b blockingSink) Emit(context.Context, Event) { <-b.release }

func TestDispatcherDropsRoutineEventsWhenFull(t *testing.T) {
	sink := blockingSink{release: make(chan struct{})}
	d := NewDispatcher(sink, Options{Buffer: 1, DropIfFull: true, CriticalWait: 10 * time.Millisecond})

	for i := 0; i < 20; i++ {
		d.Record(context.Background(), Event{EventType: SessionCreated, Success: true})
	}
	if d.DroppedByType()[SessionCreated] == 0 {
		t.Fatal("expected routine drops with a stalled sink")
	}

	start := time.Now()
	d.Record(context.Background(), Event{EventType: Login, Success: false})
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Fatalf("failed login should wait for room before dropping, waited %v", elapsed)
	}
	if d.DroppedByType()[Login] != 1 {
		t.Fatalf("expected one dropped login failure, got %v", d.DroppedByType())
	}
	if d.Dropped() != d.DroppedByType()[SessionCreated]+1 {
		t.Fatalf("total %d does not match per-type counts %v", d.Dropped(), d.DroppedByType())
	}

	close(sink.release)
	d.Close()
}

type gateSink struct {
	gate chan struct{}
	rec  *Recorder
}

func (g gateSink) Emit(ctx context.Context, ev Event) {
	<-g.gate
	g.rec.Emit(ctx, ev)
}

func TestDispatcherCriticalEventSurvivesBriefStall(t *testing.T) {
	sink := gateSink{gate: make(chan struct{}), rec: NewRecorder(0)}
	d := NewDispatcher(sink, Options{Buffer: 1, DropIfFull: true, CriticalWait: 2 * time.Second})

	// One event held by the relay, one filling the buffer.
	d.Record(context.Background(), Event{EventType: Refresh, Success: true})
	d.Record(context.Background(), Event{EventType: Refresh, Success: true})

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(sink.gate)
	}()
	d.Record(context.Background(), Event{EventType: PasswordChange, Success: true})
	d.Close()

	if _, ok := sink.rec.Last(PasswordChange, true); !ok {
		t.Fatalf("critical event lost, drops %v", d.DroppedByType())
	}
}

func TestCriticalEvents(t *testing.T) {
	cases := []struct {
		ev   Event
		want bool
	}{
		{Event{EventType: Login, Success: true}, false},
		{Event{EventType: Login, Success: false}, true},
		{Event{EventType: Refresh, Success: true}, false},
		{Event{EventType: Logout, Success: true}, true},
		{Event{EventType: MfaDeactivated, Success: true}, true},
		{Event{EventType: AccountDeleted, Success: true}, true},
	}
	for _, tc := range cases {
		if got := tc.ev.Critical(); got != tc.want {
			t.Fatalf("%s success=%v: got %v", tc.ev.EventType, tc.ev.Success, got)
		}
	}
}

func TestRecorderEvictsOldest(t *testing.T) {
	rec := NewRecorder(2)
	for _, typ := range []string{Register, Login, Logout} {
		rec.Emit(context.Background(), Event{EventType: typ, Success: true})
	}
	events := rec.Events()
	if len(events) != 2 || events[0].EventType != Login || events[1].EventType != Logout {
		t.Fatalf("unexpected events %+v", events)
	}
	if _, ok := rec.Last(Register, true); ok {
		t.Fatal("evicted event still found")
	}
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewZapSink(zap.New(core))

	s.Emit(context.Background(), Event{EventType: Login, UserID: "u1", RequestID: "r1", Success: true, Timestamp: time.Now()})
	s.Emit(context.Background(), Event{EventType: Login, Error: "auth", Metadata: map[string]string{"method": "password"}})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zap.InfoLevel || entries[1].Level != zap.WarnLevel {
		t.Fatalf("unexpected levels %v %v", entries[0].Level, entries[1].Level)
	}
	if entries[0].ContextMap()["request_id"] != "r1" {
		t.Fatalf("expected request id field, got %v", entries[0].ContextMap())
	}
	if entries[1].ContextMap()["meta.method"] != "password" {
		t.Fatalf("expected metadata field, got %v", entries[1].ContextMap())
	}
}

func TestJSONSinkWritesOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONSink(&buf)
	s.Emit(context.Background(), Event{EventType: Logout, UserID: "u1", Success: true})
	s.Emit(context.Background(), Event{EventType: Login, IP: "192.0.2.9"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first["event_type"] != Logout || first["user_id"] != "u1" || first["success"] != true {
		t.Fatalf("unexpected entry %v", first)
	}
	if !strings.Contains(lines[1], `"level":"warn"`) || !strings.Contains(lines[1], `"ip":"192.0.2.9"`) {
		t.Fatalf("unexpected failure entry %s", lines[1])
	}
}
