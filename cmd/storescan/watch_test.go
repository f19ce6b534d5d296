package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/alfredjeanlab/storescan/internal/model"
)

func code(id, payload string) *model.ScannedCode {
	return &model.ScannedCode{ID: id, Payload: payload, StoreScope: "Cherechiu"}
}

func TestDiffCodes(t *testing.T) {
	seen := make(map[string]*model.ScannedCode)

	d := diffCodes([]*model.ScannedCode{code("sc-2", "B"), code("sc-1", "A")}, seen)
	if len(d.Added) != 2 || d.Added[0].ID != "sc-2" || d.Added[1].ID != "sc-1" {
		t.Fatalf("first listing: added = %v", d.Added)
	}
	if len(d.Removed) != 0 {
		t.Fatalf("first listing: removed = %v", d.Removed)
	}

	// Unchanged listing reports nothing.
	d = diffCodes([]*model.ScannedCode{code("sc-2", "B"), code("sc-1", "A")}, seen)
	if len(d.Added)+len(d.Removed) != 0 {
		t.Fatalf("unchanged listing reported %+v", d)
	}

	d = diffCodes([]*model.ScannedCode{code("sc-3", "C")}, seen)
	if len(d.Added) != 1 || d.Added[0].ID != "sc-3" {
		t.Errorf("added = %v, want sc-3", d.Added)
	}
	if len(d.Removed) != 2 || d.Removed[0].ID != "sc-1" || d.Removed[1].ID != "sc-2" {
		t.Errorf("removed = %v, want sc-1, sc-2", d.Removed)
	}
	if len(seen) != 1 {
		t.Errorf("seen has %d entries, want 1", len(seen))
	}
}

func TestPrintDiff(t *testing.T) {
	var buf bytes.Buffer
	printDiff(&buf, codeDiff{
		Added:   []*model.ScannedCode{code("sc-3", "4006381333931")},
		Removed: []*model.ScannedCode{code("sc-1", "A")},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "sc-3") || !strings.Contains(lines[0], "4006381333931") {
		t.Errorf("added line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "sc-1") {
		t.Errorf("removed line = %q", lines[1])
	}
}

func TestOpenFeed(t *testing.T) {
	savedTarget, savedHTTP := target, httpClient
	t.Cleanup(func() { target, httpClient = savedTarget, savedHTTP })

	target = targetSettings{}
	httpClient = nil

	f, release, err := openFeed("auto", nil)
	if err != nil || f != nil {
		t.Fatalf("auto without NATS or HTTP: feed %v, err %v", f, err)
	}
	release()

	if _, _, err := openFeed("nats", nil); err == nil {
		t.Error("nats without a URL: expected error")
	}
	if _, _, err := openFeed("sse", nil); err == nil {
		t.Error("sse with the grpc transport: expected error")
	}
	if _, _, err := openFeed("carrier-pigeon", nil); err == nil {
		t.Error("unknown feed: expected error")
	}
}
