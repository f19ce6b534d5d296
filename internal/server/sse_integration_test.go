package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// frame is one decoded text/event-stream event.
type frame struct {
	ID, Event, Data string
}

// liveStream is an event stream opened against a running test server.
type liveStream struct {
	frames <-chan frame
}

// openStream connects to /v1/events/stream with the given query and waits
// until the handler has registered the stream.
func openStream(t *testing.T, baseURL, query string) *liveStream {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"/v1/events/stream?"+query, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	ch := make(chan frame, 32)
	ready := make(chan struct{})
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(resp.Body)
		var f frame
		for sc.Scan() {
			field, value, _ := strings.Cut(sc.Text(), ":")
			switch field {
			case "retry":
				close(ready)
			case "id":
				f.ID = value
			case "event":
				f.Event = value
			case "data":
				f.Data = value
			case "":
				if f.Event != "" {
					ch <- f
				}
				f = frame{}
			}
		}
	}()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not start")
	}
	return &liveStream{frames: ch}
}

// next returns the next frame with the given event name.
func (s *liveStream) next(t *testing.T, event string) frame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f, ok := <-s.frames:
			if !ok {
				t.Fatalf("stream closed before %q", event)
			}
			if f.Event == event {
				return f
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", event)
		}
	}
}

func (s *liveStream) quiet(t *testing.T) {
	t.Helper()
	select {
	case f := <-s.frames:
		t.Fatalf("unexpected %q: %s", f.Event, f.Data)
	case <-time.After(200 * time.Millisecond):
	}
}

// call sends a request with an optional JSON body and checks the status.
func call(t *testing.T, method, url string, body any, want int) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if resp.StatusCode != want {
		t.Fatalf("%s %s: status %d, want %d", method, url, resp.StatusCode, want)
	}
	return resp
}

// postCode stores payload in scope and returns the server-assigned ID.
func postCode(t *testing.T, baseURL, scope, payload string) string {
	t.Helper()
	resp := call(t, "POST", baseURL+"/v1/scopes/"+scope+"/codes", map[string]any{"payload": payload}, http.StatusCreated)
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created code: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created code has no ID")
	}
	return created.ID
}

func liveServer(t *testing.T) string {
	t.Helper()
	_, _, handler := newTestServer()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestSSEIntegration_CreateCodeTriggersEvent(t *testing.T) {
	url := liveServer(t)
	st := openStream(t, url, "scope=Adoni")

	id := postCode(t, url, "Adoni", "4006381333931")

	f := st.next(t, "storescan.adoni.scanned_codes.created")
	var payload struct {
		Code struct {
			ID         string `json:"id"`
			StoreScope string `json:"store_scope"`
		} `json:"code"`
	}
	if err := json.Unmarshal([]byte(f.Data), &payload); err != nil {
		t.Fatalf("parse data: %v", err)
	}
	if payload.Code.ID != id || payload.Code.StoreScope != "Adoni" {
		t.Fatalf("event code %+v, want %s in Adoni", payload.Code, id)
	}
	if f.ID == "" {
		t.Fatal("event has no ID")
	}
}

func TestSSEIntegration_DeleteCodeTriggersEvent(t *testing.T) {
	url := liveServer(t)
	id := postCode(t, url, "Adoni", "4006381333931")
	st := openStream(t, url, "scope=Adoni")

	call(t, "DELETE", url+"/v1/scopes/Adoni/codes/"+id, nil, http.StatusNoContent)

	f := st.next(t, "storescan.adoni.scanned_codes.deleted")
	var payload struct {
		CodeID string `json:"code_id"`
		Scope  string `json:"store_scope"`
	}
	if err := json.Unmarshal([]byte(f.Data), &payload); err != nil {
		t.Fatalf("parse data: %v", err)
	}
	if payload.CodeID != id || payload.Scope != "Adoni" {
		t.Fatalf("unexpected delete payload %+v", payload)
	}
}

func TestSSEIntegration_ClearScopeTriggersEvent(t *testing.T) {
	url := liveServer(t)
	postCode(t, url, "Adoni", "111111111")
	postCode(t, url, "Adoni", "222222222")
	st := openStream(t, url, "scope=Adoni")

	call(t, "DELETE", url+"/v1/scopes/Adoni/codes", nil, http.StatusOK)

	f := st.next(t, "storescan.adoni.scanned_codes.cleared")
	var payload struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.Unmarshal([]byte(f.Data), &payload); err != nil {
		t.Fatalf("parse data: %v", err)
	}
	if payload.Deleted != 2 {
		t.Fatalf("deleted = %d, want 2", payload.Deleted)
	}
}

func TestSSEIntegration_OtherScopeNotDelivered(t *testing.T) {
	url := liveServer(t)
	st := openStream(t, url, "scope=Adoni")

	// Same folded topic token, different scope.
	postCode(t, url, "adoni", "999999999")
	own := postCode(t, url, "Adoni", "111111111")

	f := st.next(t, "storescan.adoni.scanned_codes.created")
	if !strings.Contains(f.Data, own) {
		t.Fatalf("first event should be the own-scope code, got %s", f.Data)
	}
	st.quiet(t)
}

func TestSSEIntegration_StreamsShareSequence(t *testing.T) {
	url := liveServer(t)
	scoped := openStream(t, url, "scope=Adoni")
	all := openStream(t, url, "")

	postCode(t, url, "Adoni", "4006381333931")

	a := scoped.next(t, "storescan.adoni.scanned_codes.created")
	b := all.next(t, "storescan.adoni.scanned_codes.created")
	if a.ID != b.ID {
		t.Fatalf("IDs differ: %q and %q", a.ID, b.ID)
	}
}

func TestSSEIntegration_ResumeAfterDisconnect(t *testing.T) {
	url := liveServer(t)
	first := postCode(t, url, "Adoni", "111111111")
	second := postCode(t, url, "Adoni", "222222222")

	req, _ := http.NewRequest("GET", url+"/v1/events/stream?scope=Adoni", nil)
	req.Header.Set("Last-Event-ID", "1")
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	resp, err := http.DefaultClient.Do(req.WithContext(ctx))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	if strings.Contains(body.String(), first) {
		t.Fatalf("event 1 replayed:\n%s", body.String())
	}
	if !strings.Contains(body.String(), second) {
		t.Fatalf("event 2 not replayed:\n%s", body.String())
	}
}
