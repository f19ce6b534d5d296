package backup

import (
	"bytes"
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/alfredjeanlab/storescan/internal/model"
)

// FormatVersion is written in every snapshot header.
const FormatVersion = "2"

// Snapshot is one JSONL export of every scanned code.
type Snapshot struct {
	Taken  time.Time
	Total  int
	Scopes map[string]int // codes per store scope
	// Digest is the hex SHA-256 of the code records. Two snapshots with the
	// same digest hold the same codes.
	Digest string
	Data   []byte
}

// header is the first line of a snapshot.
type header struct {
	Type    string         `json:"type"`
	Version string         `json:"version"`
	TakenAt time.Time      `json:"taken_at"`
	Total   int            `json:"total"`
	Scopes  map[string]int `json:"scopes"`
	Digest  string         `json:"digest"`
}

type codeRecord struct {
	Type string             `json:"type"`
	Code *model.ScannedCode `json:"code"`
}

// Take lists every code in src and encodes it as a snapshot: a header
// line, then one line per code ordered by scope and then ID.
func Take(ctx context.Context, src Source, taken time.Time) (*Snapshot, error) {
	codes, err := src.ListAllCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list codes: %w", err)
	}
	slices.SortFunc(codes, func(a, b *model.ScannedCode) int {
		return cmp.Or(cmp.Compare(a.StoreScope, b.StoreScope), cmp.Compare(a.ID, b.ID))
	})

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	scopes := make(map[string]int)
	for _, c := range codes {
		scopes[c.StoreScope]++
		if err := enc.Encode(codeRecord{Type: "scanned_code", Code: c}); err != nil {
			return nil, fmt.Errorf("encode code %s: %w", c.ID, err)
		}
	}
	sum := sha256.Sum256(body.Bytes())

	snap := &Snapshot{
		Taken:  taken.UTC(),
		Total:  len(codes),
		Scopes: scopes,
		Digest: hex.EncodeToString(sum[:]),
	}
	head, err := json.Marshal(header{
		Type:    "header",
		Version: FormatVersion,
		TakenAt: snap.Taken,
		Total:   snap.Total,
		Scopes:  scopes,
		Digest:  snap.Digest,
	})
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	snap.Data = make([]byte, 0, len(head)+1+body.Len())
	snap.Data = append(snap.Data, head...)
	snap.Data = append(snap.Data, '\n')
	snap.Data = append(snap.Data, body.Bytes()...)
	return snap, nil
}

// Stamp is the compact UTC time used in snapshot names.
func (s *Snapshot) Stamp() string {
	return s.Taken.UTC().Format("20060102T150405Z")
}

// Name is the file name of a dated snapshot.
func (s *Snapshot) Name() string {
	return "scanned_codes-" + s.Stamp() + ".jsonl"
}
