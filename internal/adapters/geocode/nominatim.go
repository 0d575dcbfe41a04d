package geocode

import (
	"context"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
)

// Nominatim queries an OpenStreetMap Nominatim search endpoint.
type Nominatim struct {
	getter
	url string
}

// NewNominatim creates a geocoder for a Nominatim endpoint. Nominatim
// rejects requests without a User-Agent.
func NewNominatim(endpoint, userAgent string) *Nominatim {
	return &Nominatim{getter: newGetter(userAgent), url: endpoint}
}

type nominatimPlace struct {
	// south, north, west, east as decimal strings
	BoundingBox []string `json:"boundingbox"`
}

// Geocode implements ports.Geocoder using the first result.
func (n *Nominatim) Geocode(ctx context.Context, place string) (domain.BoundingBox, error) {
	var places []nominatimPlace
	params := url.Values{"q": {place}, "format": {"json"}, "limit": {"1"}}
	if err := n.getJSON(ctx, n.url, params, &places); err != nil {
		return domain.BoundingBox{}, err
	}
	if len(places) == 0 {
		return domain.BoundingBox{}, eris.Wrapf(domain.ErrExtentResolution, "no results for %q", place)
	}
	bb := places[0].BoundingBox
	if len(bb) != 4 {
		return domain.BoundingBox{}, eris.Wrapf(domain.ErrExtentResolution, "boundingbox has %d values", len(bb))
	}

	var v [4]float64
	for i, s := range bb {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.BoundingBox{}, eris.Wrapf(domain.ErrExtentResolution, "boundingbox value %q", s)
		}
		v[i] = f
	}
	return domain.BoundingBox{South: v[0], North: v[1], West: v[2], East: v[3]}, nil
}
