// Package filestore keeps every per-target artifact on a filesystem:
//
//	<root>/<target>/grid.json
//	<root>/<target>/zoning_layers.json
//	<root>/<target>/<layer>/worklist.json
//	<root>/<target>/<layer>/json/<minx>_<maxx>_<miny>_<maxy>.json
//	<root>/<target>/<layer>/tokens/batch_<n>.txt
//	<root>/<target>/<layer>/geojson/<table>.geojson
//	<root>/<target>/<layer>/remove_duplicate_geojson/<table>.geojson
package filestore

import (
	"encoding/json"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/core/ports"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/config"
)

// Workspace implements ports.Workspace on an afero filesystem.
type Workspace struct {
	fs     afero.Fs
	root   string
	stable StableConfig
}

// NewWorkspace creates a workspace rooted at root. The download settings
// tune how tile directories wait for stabilization.
func NewWorkspace(fs afero.Fs, root string, cfg config.DownloadConfig) *Workspace {
	return &Workspace{
		fs:   fs,
		root: root,
		stable: StableConfig{
			Polls:    cfg.StablePolls,
			Interval: cfg.PollInterval,
			MaxWait:  cfg.MaxWait,
		},
	}
}

// NewOSWorkspace creates a workspace on the local disk.
func NewOSWorkspace(root string, cfg config.DownloadConfig) *Workspace {
	return NewWorkspace(afero.NewOsFs(), root, cfg)
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string { return w.root }

func (w *Workspace) targetDir(target string) string {
	return filepath.Join(w.root, target)
}

func (w *Workspace) layerDir(target, layer string) string {
	return filepath.Join(w.root, target, layer)
}

// WorkList returns the layer's persisted work list.
func (w *Workspace) WorkList(target, layer string) ports.WorkListStore {
	return &WorkListFile{fs: w.fs, path: filepath.Join(w.layerDir(target, layer), "worklist.json")}
}

// Tiles returns the layer's download directory.
func (w *Workspace) Tiles(target, layer string) ports.TileStore {
	return NewTileDir(w.fs, filepath.Join(w.layerDir(target, layer), "json"), w.stable)
}

// SaveGrid writes the target's base grid.
func (w *Workspace) SaveGrid(target string, grid domain.WorkList) error {
	return w.writeJSON(filepath.Join(w.targetDir(target), "grid.json"), grid)
}

// LoadGrid reads the target's base grid.
func (w *Workspace) LoadGrid(target string) (domain.WorkList, error) {
	var grid domain.WorkList
	if err := w.readJSON(filepath.Join(w.targetDir(target), "grid.json"), &grid); err != nil {
		return nil, err
	}
	return grid, nil
}

// SaveLayers writes the layers found on the target's portal.
func (w *Workspace) SaveLayers(target string, layers []domain.Layer) error {
	return w.writeJSON(filepath.Join(w.targetDir(target), "zoning_layers.json"), layers)
}

// SaveToken keeps the token used for a batch for later inspection.
func (w *Workspace) SaveToken(target, layer string, batch int, token string) error {
	path := filepath.Join(w.layerDir(target, layer), "tokens", "batch_"+strconv.Itoa(batch)+".txt")
	return writeAtomic(w.fs, path, []byte(token))
}

// WriteExport stores a GeoJSON document and returns its path.
func (w *Workspace) WriteExport(target, layer, table string, dedup bool, data []byte) (string, error) {
	dir := "geojson"
	if dedup {
		dir = "remove_duplicate_geojson"
	}
	path := filepath.Join(w.layerDir(target, layer), dir, table+".geojson")
	if err := writeAtomic(w.fs, path, data); err != nil {
		return "", err
	}
	return path, nil
}

func (w *Workspace) writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "marshal %s", filepath.Base(path))
	}
	return writeAtomic(w.fs, path, data)
}

func (w *Workspace) readJSON(path string, v any) error {
	data, err := afero.ReadFile(w.fs, path)
	if err != nil {
		return eris.Wrapf(err, "read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "decode %s", path)
	}
	return nil
}

// writeAtomic replaces path with data through a temp file and a rename, so
// readers never see a partial file.
func writeAtomic(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "mkdir %s", dir)
	}
	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return eris.Wrapf(err, "create temp for %s", path)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(name)
		return eris.Wrapf(err, "write %s", path)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(name)
		return eris.Wrapf(err, "close %s", path)
	}
	if err := fs.Rename(name, path); err != nil {
		_ = fs.Remove(name)
		return eris.Wrapf(err, "rename into %s", path)
	}
	return nil
}

// WorkListFile implements ports.WorkListStore as a JSON array of
// {minx, miny, maxx, maxy} objects.
type WorkListFile struct {
	fs   afero.Fs
	path string
}

// NewWorkListFile returns the work list stored at path.
func NewWorkListFile(fs afero.Fs, path string) *WorkListFile {
	return &WorkListFile{fs: fs, path: path}
}

// Exists reports whether the work list has been written.
func (f *WorkListFile) Exists() bool {
	ok, err := afero.Exists(f.fs, f.path)
	return err == nil && ok
}

// Load reads the work list.
func (f *WorkListFile) Load() (domain.WorkList, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", f.path)
	}
	var w domain.WorkList
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, eris.Wrapf(err, "decode %s", f.path)
	}
	return w, nil
}

// Save replaces the work list. An empty list is written as [].
func (f *WorkListFile) Save(w domain.WorkList) error {
	if w == nil {
		w = domain.WorkList{}
	}
	data, err := json.Marshal(w)
	if err != nil {
		return eris.Wrap(err, "marshal work list")
	}
	return writeAtomic(f.fs, f.path, data)
}
