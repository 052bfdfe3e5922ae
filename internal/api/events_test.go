package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/apartment/internal/engine"
)

func TestStreamEventsNotFound(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/objects/nonexistent/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStreamEventsReleasedObject(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	obj := createObject(t, ts.URL, "counter")
	if err := srv.engine.Release(context.Background(), obj.ID); err != nil {
		t.Fatalf("Release: %v", err)
	}

	resp, err := http.Get(ts.URL + "/v1/objects/" + obj.ID + "/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
}

func TestStreamEventsReceivesInvocations(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	obj := createObject(t, ts.URL, "counter")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/v1/objects/"+obj.ID+"/events", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	// The handler has subscribed once the headers were flushed; the created
	// event is replayed to it.
	if _, err := srv.engine.Invoke(ctx, obj.ID, "increment", nil); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if err := srv.engine.Release(ctx, obj.ID); err != nil {
		t.Fatalf("Release: %v", err)
	}

	scanner := bufio.NewScanner(resp.Body)
	var types []string
	var invoked engine.Event
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			types = append(types, name)
			continue
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok && len(types) == 2 {
			if err := json.Unmarshal([]byte(data), &invoked); err != nil {
				t.Fatalf("decode event: %v", err)
			}
		}
	}

	want := []string{engine.EventCreated, engine.EventInvoked, engine.EventReleased, "done"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", types, want)
	}
	if invoked.Op != "increment" || invoked.Seq != 1 || invoked.ObjectID != obj.ID {
		t.Errorf("invoked event = %+v, want increment seq 1", invoked)
	}
}
