package filestore

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
)

const tileExt = ".json"

// StableConfig tunes WaitStable.
type StableConfig struct {
	// Polls is how many consecutive polls must see the same file count.
	Polls int
	// Interval is the delay between polls.
	Interval time.Duration
	// MaxWait bounds the whole wait.
	MaxWait time.Duration
}

// TileDir implements ports.TileStore. Files are created once and never
// rewritten; a partially written tile is never visible under its final
// name.
type TileDir struct {
	fs     afero.Fs
	dir    string
	stable StableConfig
}

// NewTileDir returns the tile directory at dir.
func NewTileDir(fs afero.Fs, dir string, stable StableConfig) *TileDir {
	return &TileDir{fs: fs, dir: dir, stable: stable}
}

// Save stores body under the tile's file name. An existing file is kept.
// Tiles within one pass are distinct, so nothing else writes the same name
// between the check and the rename.
func (d *TileDir) Save(tile domain.TileBounds, body []byte) error {
	path := filepath.Join(d.dir, tile.FileName())
	if ok, err := afero.Exists(d.fs, path); err == nil && ok {
		return nil
	}
	return writeAtomic(d.fs, path, body)
}

// Downloaded returns the set of tile file names present.
func (d *TileDir) Downloaded() (map[string]struct{}, error) {
	names, err := d.Files()
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out, nil
}

// Files lists the tile file names in lexical order. A missing directory
// means nothing was downloaded yet.
func (d *TileDir) Files() ([]string, error) {
	entries, err := afero.ReadDir(d.fs, d.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "list %s", d.dir)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), tileExt) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Read returns a stored tile.
func (d *TileDir) Read(name string) ([]byte, error) {
	data, err := afero.ReadFile(d.fs, filepath.Join(d.dir, filepath.Base(name)))
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", name)
	}
	return data, nil
}

// WaitStable polls the file count until it has not changed for Polls
// consecutive polls or MaxWait elapses. Running out of time is logged and
// not an error; only cancellation is.
func (d *TileDir) WaitStable(ctx context.Context) (int, error) {
	polls := d.stable.Polls
	if polls <= 0 {
		polls = 1
	}
	interval := d.stable.Interval
	if interval <= 0 {
		interval = time.Second
	}

	count, err := d.count()
	if err != nil {
		return 0, err
	}

	deadline := time.Now().Add(d.stable.MaxWait)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for same := 0; same < polls; {
		if d.stable.MaxWait > 0 && time.Now().After(deadline) {
			slog.Warn("download directory still changing", "dir", d.dir, "files", count, "waited", d.stable.MaxWait)
			return count, nil
		}
		select {
		case <-ctx.Done():
			return count, ctx.Err()
		case <-ticker.C:
		}
		n, err := d.count()
		if err != nil {
			return count, err
		}
		if n == count {
			same++
		} else {
			same = 0
			count = n
		}
	}
	return count, nil
}

func (d *TileDir) count() (int, error) {
	names, err := d.Files()
	return len(names), err
}
