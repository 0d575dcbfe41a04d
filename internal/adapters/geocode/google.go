package geocode

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
)

// Google reads a Google Geocoding style response. Some proxies wrap the
// payload in a "data" object; both shapes are accepted.
type Google struct {
	getter
	url string
}

// NewGoogle creates a geocoder for a Google-compatible endpoint.
func NewGoogle(endpoint, userAgent string) *Google {
	return &Google{getter: newGetter(userAgent), url: endpoint}
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type googleBounds struct {
	Northeast latLng `json:"northeast"`
	Southwest latLng `json:"southwest"`
}

type googlePayload struct {
	Results []struct {
		Geometry struct {
			Bounds   *googleBounds `json:"bounds"`
			Viewport *googleBounds `json:"viewport"`
		} `json:"geometry"`
	} `json:"results"`
}

type googleEnvelope struct {
	googlePayload
	Data json.RawMessage `json:"data"`
}

// Geocode implements ports.Geocoder. Bounds are preferred over the viewport.
func (g *Google) Geocode(ctx context.Context, place string) (domain.BoundingBox, error) {
	var env googleEnvelope
	if err := g.getJSON(ctx, g.url, url.Values{"address": {place}}, &env); err != nil {
		return domain.BoundingBox{}, err
	}

	payload := env.googlePayload
	if len(env.Data) > 0 && env.Data[0] == '{' {
		payload = googlePayload{}
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return domain.BoundingBox{}, eris.Wrap(err, "decode wrapped geocoder response")
		}
	}

	if len(payload.Results) == 0 {
		return domain.BoundingBox{}, eris.Wrapf(domain.ErrExtentResolution, "no results for %q", place)
	}
	geom := payload.Results[0].Geometry
	b := geom.Bounds
	if b == nil {
		b = geom.Viewport
	}
	if b == nil {
		return domain.BoundingBox{}, eris.Wrapf(domain.ErrExtentResolution, "no bounds or viewport for %q", place)
	}
	return domain.BoundingBox{
		South: b.Southwest.Lat,
		North: b.Northeast.Lat,
		West:  b.Southwest.Lng,
		East:  b.Northeast.Lng,
	}, nil
}
