// Package geocode resolves a place name to a WGS 84 bounding box.
package geocode

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"github.com/valyala/fasthttp"

	"github.com/wajahatashraf/beacon-scraper/internal/core/ports"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/config"
)

const requestTimeout = 20 * time.Second

// New returns the geocoder named by cfg.Provider.
func New(cfg config.GeocodeConfig) (ports.Geocoder, error) {
	switch cfg.Provider {
	case "google", "":
		return NewGoogle(cfg.URL, cfg.UserAgent), nil
	case "nominatim":
		return NewNominatim(cfg.URL, cfg.UserAgent), nil
	default:
		return nil, eris.Errorf("unknown geocode provider %q", cfg.Provider)
	}
}

type getter struct {
	http      *fasthttp.Client
	userAgent string
}

func newGetter(userAgent string) getter {
	return getter{
		http:      &fasthttp.Client{MaxIdleConnDuration: 30 * time.Second},
		userAgent: userAgent,
	}
}

// getJSON fetches base?params and decodes the body into out.
func (g getter) getJSON(ctx context.Context, base string, params url.Values, out any) error {
	u, err := url.Parse(base)
	if err != nil {
		return eris.Wrap(err, "parse geocoder url")
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(u.String())
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	if g.userAgent != "" {
		req.Header.SetUserAgent(g.userAgent)
	}

	timeout := requestTimeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := g.http.DoTimeout(req, resp, timeout); err != nil {
		return eris.Wrap(err, "geocoder request")
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return eris.Errorf("geocoder returned status %d", code)
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return eris.Wrap(err, "decode geocoder response")
	}
	return nil
}
