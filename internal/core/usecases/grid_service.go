package usecases

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/config"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/geospatial"
)

// GridSize is the outcome of the cell-size search.
type GridSize struct {
	Step  float64 `json:"step"`
	Cols  int     `json:"cols"`
	Rows  int     `json:"rows"`
	Count int     `json:"count"`
}

// GridService sizes and materializes the download grid.
type GridService struct {
	cfg config.GridConfig
}

// NewGridService creates a new GridService.
func NewGridService(cfg config.GridConfig) *GridService {
	return &GridService{cfg: cfg}
}

// Size scans steps from MinStep to MaxStep in StepIncrement increments and
// returns the one whose cell count is closest to TargetCount. The first
// (smallest) step wins ties and an exact hit stops the scan.
func (s *GridService) Size(ext domain.ProjectedExtent) (GridSize, error) {
	w, h := ext.Width(), ext.Height()
	if !(w > 0) || !(h > 0) || math.IsInf(w, 0) || math.IsInf(h, 0) {
		return GridSize{}, eris.Wrapf(domain.ErrInvalidExtent, "width=%g height=%g", w, h)
	}
	if s.cfg.StepIncrement <= 0 || s.cfg.MinStep <= 0 || s.cfg.MaxStep < s.cfg.MinStep {
		return GridSize{}, eris.Errorf("invalid step range %d-%d by %d",
			s.cfg.MinStep, s.cfg.MaxStep, s.cfg.StepIncrement)
	}

	var best GridSize
	bestDiff := -1
	for step := s.cfg.MinStep; step <= s.cfg.MaxStep; step += s.cfg.StepIncrement {
		st := float64(step)
		cols, rows := geospatial.CellsAlong(w, st), geospatial.CellsAlong(h, st)
		count := cols * rows
		diff := count - s.cfg.TargetCount
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			best = GridSize{Step: st, Cols: cols, Rows: rows, Count: count}
			bestDiff = diff
		}
		if diff == 0 {
			break
		}
	}
	return best, nil
}

// Materialize expands step across ext. Tiles are ordered x-major: every y
// cell of the first column, then the next column. The same extent and step
// always yield the same list.
func (s *GridService) Materialize(ext domain.ProjectedExtent, step float64) domain.WorkList {
	if !(step > 0) {
		return nil
	}
	xs := geospatial.Origins(ext.XMin, step, geospatial.CellsAlong(ext.Width(), step))
	ys := geospatial.Origins(ext.YMin, step, geospatial.CellsAlong(ext.Height(), step))

	out := make(domain.WorkList, 0, len(xs)*len(ys))
	for _, x := range xs {
		for _, y := range ys {
			out = append(out, domain.TileBounds{MinX: x, MinY: y, MaxX: x + step, MaxY: y + step})
		}
	}
	return out
}
