package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alfredjeanlab/storescan/internal/client"
	"github.com/alfredjeanlab/storescan/internal/model"
)

// listOnlyClient serves ListByScope from a fixed set of codes.
type listOnlyClient struct {
	client.ScanClient
	codes map[string][]*model.ScannedCode
	err   error
}

func (c *listOnlyClient) ListByScope(_ context.Context, scope string) ([]*model.ScannedCode, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.codes[scope], nil
}

func TestFindCode(t *testing.T) {
	c := &listOnlyClient{codes: map[string][]*model.ScannedCode{
		"Cherechiu": {code("sc-1", "4006381333931")},
		"Adoni":     {code("sc-2", "https://example.com/p/2")},
	}}
	ctx := context.Background()

	got, err := findCode(ctx, c, "Cherechiu", "sc-1")
	if err != nil || got.Payload != "4006381333931" {
		t.Fatalf("findCode = %v, %v", got, err)
	}

	// A code of another scope is not visible.
	if _, err := findCode(ctx, c, "Cherechiu", "sc-2"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	c.err = model.NewError(model.KindNetworkFailure, "list", errors.New("offline"))
	if _, err := findCode(ctx, c, "Cherechiu", "sc-1"); !errors.Is(err, model.ErrNetworkFailure) {
		t.Errorf("err = %v, want ErrNetworkFailure", err)
	}
}

func TestConfirm(t *testing.T) {
	for _, tc := range []struct {
		answer string
		want   bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	} {
		var out bytes.Buffer
		if got := confirm(strings.NewReader(tc.answer), &out, "Delete?"); got != tc.want {
			t.Errorf("confirm(%q) = %v, want %v", tc.answer, got, tc.want)
		}
		if !strings.Contains(out.String(), "Delete? [y/N]") {
			t.Errorf("prompt = %q", out.String())
		}
	}
}

func TestPrintEntryTable(t *testing.T) {
	var buf bytes.Buffer
	entries := []model.Entry{
		model.TentativeEntry(model.ScannedCode{ID: "tmp-a", Payload: "B"}),
		model.ConfirmedEntry(model.ScannedCode{ID: "sc-1", Payload: "A"}),
	}
	if err := printEntryTable(&buf, entries); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Index(out, "tmp-a") > strings.Index(out, "sc-1") {
		t.Errorf("tentative entry should come first:\n%s", out)
	}
	if !strings.Contains(out, "tentative") || !strings.Contains(out, "confirmed") {
		t.Errorf("missing states:\n%s", out)
	}
}
