package events

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestEventJSON(t *testing.T) {
	e := New(RequestFallback, "sess-1").WithData("reason", "watchdog").WithData("limit", 2)

	b, err := e.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != "request.fallback" {
		t.Errorf("type = %v", got["type"])
	}
	if got["session"] != "sess-1" {
		t.Errorf("session = %v", got["session"])
	}
	data, _ := got["data"].(map[string]any)
	if data["reason"] != "watchdog" {
		t.Errorf("data.reason = %v", data["reason"])
	}
}

func TestCollectorEmitterConcurrent(t *testing.T) {
	c := &CollectorEmitter{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Emit(New(RequestStarted, "s"))
		}()
	}
	wg.Wait()
	c.Emit(New(RequestResolved, "s"))

	if got := len(c.Events()); got != 51 {
		t.Errorf("Events = %d, want 51", got)
	}
	if got := c.Count(RequestStarted); got != 50 {
		t.Errorf("Count(started) = %d, want 50", got)
	}
}

func TestLogEmitter(t *testing.T) {
	var buf bytes.Buffer
	l := LogEmitter{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	l.Emit(New(ReplyDropped, "sess-9").WithData("state", "fallback_sent"))

	out := buf.String()
	for _, want := range []string{`"event":"reply.dropped"`, `"session":"sess-9"`, `"state":"fallback_sent"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
	NoopEmitter{}.Emit(New(RequestStarted, "x"))
}
