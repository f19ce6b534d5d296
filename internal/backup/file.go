package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// LatestName is the file or object that always holds the newest snapshot.
const LatestName = "latest.jsonl"

// FileDestination keeps snapshots in a local directory: LatestName is
// replaced atomically and the newest keep dated copies are retained.
type FileDestination struct {
	dir  string
	keep int
}

func NewFileDestination(dir string, keep int) *FileDestination {
	return &FileDestination{dir: dir, keep: max(keep, 0)}
}

func (d *FileDestination) Name() string { return "file:" + d.dir }

// Path returns the latest snapshot file.
func (d *FileDestination) Path() string { return filepath.Join(d.dir, LatestName) }

func (d *FileDestination) Store(_ context.Context, snap *Snapshot) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if d.keep > 0 {
		if err := writeAtomic(filepath.Join(d.dir, snap.Name()), snap.Data); err != nil {
			return err
		}
		if err := d.prune(); err != nil {
			return err
		}
	}
	return writeAtomic(d.Path(), snap.Data)
}

// Dated returns the dated snapshot files, oldest first.
func (d *FileDestination) Dated() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, "scanned_codes-") && strings.HasSuffix(n, ".jsonl") {
			names = append(names, n)
		}
	}
	// Stamps sort lexically in time order.
	slices.Sort(names)
	return names, nil
}

func (d *FileDestination) prune() error {
	names, err := d.Dated()
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	for len(names) > d.keep {
		if err := os.Remove(filepath.Join(d.dir, names[0])); err != nil {
			return fmt.Errorf("prune %s: %w", names[0], err)
		}
		names = names[1:]
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
