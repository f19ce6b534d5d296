package backup

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/storescan/internal/model"
)

// memSource is a Source over a slice that tests may replace.
type memSource struct {
	mu    sync.Mutex
	codes []*model.ScannedCode
	err   error
}

func (s *memSource) ListAllCodes(context.Context) ([]*model.ScannedCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]*model.ScannedCode(nil), s.codes...), nil
}

func (s *memSource) add(c *model.ScannedCode) {
	s.mu.Lock()
	s.codes = append(s.codes, c)
	s.mu.Unlock()
}

var taken = time.Date(2026, 10, 18, 9, 30, 5, 0, time.UTC)

func snapshotLines(t *testing.T, snap *Snapshot) (header, []string) {
	t.Helper()
	lines := strings.Split(strings.TrimSuffix(string(snap.Data), "\n"), "\n")
	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	return h, lines[1:]
}

func TestTake_Empty(t *testing.T) {
	snap, err := Take(context.Background(), &memSource{}, taken)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if snap.Total != 0 || len(snap.Scopes) != 0 || snap.Digest == "" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	h, rest := snapshotLines(t, snap)
	if h.Type != "header" || h.Version != FormatVersion || !h.TakenAt.Equal(taken) || h.Digest != snap.Digest {
		t.Fatalf("unexpected header %+v", h)
	}
	if len(rest) != 0 {
		t.Fatalf("expected header only, got %d code lines", len(rest))
	}
}

func TestTake_SortedByScopeThenID(t *testing.T) {
	src := &memSource{codes: []*model.ScannedCode{
		{ID: "sc-b", Payload: "4006381333931", Symbology: model.SymbologyEAN13, StoreScope: "Cherechiu", CapturedAt: taken},
		{ID: "sc-c", Payload: "https://example.com/?a=<b>", Symbology: model.SymbologyQRCode, StoreScope: "Adoni", CapturedAt: taken},
		{ID: "sc-a", Payload: "5901234123457", Symbology: model.SymbologyEAN13, StoreScope: "Cherechiu", CapturedAt: taken},
	}}
	snap, err := Take(context.Background(), src, taken)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}

	h, rest := snapshotLines(t, snap)
	if h.Total != 3 || h.Scopes["Adoni"] != 1 || h.Scopes["Cherechiu"] != 2 {
		t.Fatalf("unexpected header counts %+v", h)
	}
	want := []string{"sc-c", "sc-a", "sc-b"}
	for i, line := range rest {
		var rec struct {
			Type string            `json:"type"`
			Code model.ScannedCode `json:"code"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("line %d: %v", i+1, err)
		}
		if rec.Type != "scanned_code" || rec.Code.ID != want[i] {
			t.Errorf("line %d = %s %s, want scanned_code %s", i+1, rec.Type, rec.Code.ID, want[i])
		}
	}
	if !strings.Contains(string(snap.Data), "<b>") {
		t.Errorf("payload HTML was escaped:\n%s", snap.Data)
	}
}

func TestTake_DigestIgnoresTimeAndOrder(t *testing.T) {
	a := &model.ScannedCode{ID: "sc-a", Payload: "111111111", StoreScope: "Adoni", CapturedAt: taken}
	b := &model.ScannedCode{ID: "sc-b", Payload: "222222222", StoreScope: "Adoni", CapturedAt: taken}

	first, err := Take(context.Background(), &memSource{codes: []*model.ScannedCode{a, b}}, taken)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Take(context.Background(), &memSource{codes: []*model.ScannedCode{b, a}}, taken.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if first.Digest != second.Digest {
		t.Fatal("same codes produced different digests")
	}

	third, err := Take(context.Background(), &memSource{codes: []*model.ScannedCode{a}}, taken)
	if err != nil {
		t.Fatal(err)
	}
	if third.Digest == first.Digest {
		t.Fatal("different codes produced the same digest")
	}
}

func TestTake_SourceError(t *testing.T) {
	_, err := Take(context.Background(), &memSource{err: errors.New("connection reset")}, taken)
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("expected wrapped source error, got %v", err)
	}
}

func TestSnapshotName(t *testing.T) {
	snap := &Snapshot{Taken: taken.In(time.FixedZone("EEST", 3*3600))}
	if got := snap.Name(); got != "scanned_codes-20261018T093005Z.jsonl" {
		t.Fatalf("Name() = %q", got)
	}
}
