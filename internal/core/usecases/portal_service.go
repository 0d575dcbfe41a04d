package usecases

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/core/ports"
)

var (
	projectionSRID = regexp.MustCompile(`"Projections":\s*\[\s*\{[^}]*?"SRID"\s*:\s*(\d+)`)
	epsgCode       = regexp.MustCompile(`(?i)EPSG[:\s"']*(\d{4,6})`)
	layerEntry     = regexp.MustCompile(`(?s)\{"LayerId":(\d+).*?"LayerName":"(.*?)"`)
	layerNameJunk  = regexp.MustCompile(`[^a-zA-Z0-9_ ]`)
)

// PortalService reads a portal's projection and the layers worth scraping.
type PortalService struct {
	inspector ports.PortalInspector
	keyword   string
}

// NewPortalService creates a new PortalService. Layers are kept when their
// name contains keyword, case-insensitively; an empty keyword keeps all.
func NewPortalService(inspector ports.PortalInspector, keyword string) *PortalService {
	return &PortalService{inspector: inspector, keyword: keyword}
}

// Discover loads the portal page and extracts its SRID and matching layers.
func (s *PortalService) Discover(ctx context.Context, portalURL string) (domain.PortalInfo, error) {
	src, err := s.inspector.Inspect(ctx, portalURL)
	if err != nil {
		return domain.PortalInfo{}, eris.Wrapf(err, "inspect %s", portalURL)
	}

	srid, err := ParseSRID(src)
	if err != nil {
		return domain.PortalInfo{}, err
	}
	layers := ParseLayers(src, s.keyword)
	if len(layers) == 0 {
		return domain.PortalInfo{SRID: srid}, eris.Wrapf(domain.ErrNoLayers, "keyword %q", s.keyword)
	}

	slog.Info("portal inspected", "url", portalURL, "srid", srid, "layers", len(layers))
	return domain.PortalInfo{SRID: srid, Layers: layers}, nil
}

// ParseSRID finds the map projection in a portal page, falling back to the
// first EPSG code mentioned anywhere.
func ParseSRID(src string) (int, error) {
	m := projectionSRID.FindStringSubmatch(src)
	if m == nil {
		m = epsgCode.FindStringSubmatch(src)
	}
	if m == nil {
		return 0, domain.ErrSRIDNotFound
	}
	srid, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, eris.Wrapf(domain.ErrSRIDNotFound, "parse %q", m[1])
	}
	return srid, nil
}

// ParseLayers lists the layers in a portal page whose name contains keyword.
// Names have "/" turned into spaces and anything outside [A-Za-z0-9_ ]
// removed. Repeated layer ids keep their first entry.
func ParseLayers(src, keyword string) []domain.Layer {
	keyword = strings.ToLower(keyword)
	seen := make(map[int]bool)
	var layers []domain.Layer
	for _, m := range layerEntry.FindAllStringSubmatch(src, -1) {
		id, err := strconv.Atoi(m[1])
		if err != nil || seen[id] {
			continue
		}
		if !strings.Contains(strings.ToLower(m[2]), keyword) {
			continue
		}
		name := strings.TrimSpace(layerNameJunk.ReplaceAllString(strings.ReplaceAll(m[2], "/", " "), ""))
		if name == "" {
			continue
		}
		seen[id] = true
		layers = append(layers, domain.Layer{ID: id, Name: name})
	}
	return layers
}
