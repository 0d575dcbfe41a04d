// Package beacon talks to the portal's vector-layer endpoint over plain
// HTTP. It is the fetch mode used when the endpoint does not insist on a
// browser session's cookies.
package beacon

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"github.com/valyala/fasthttp"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/config"
)

// Client posts tile requests with fasthttp.
type Client struct {
	http      *fasthttp.Client
	apiURL    string
	param     string
	userAgent string
	timeout   time.Duration
}

// NewClient builds a Client from the portal and download settings.
func NewClient(portal config.PortalConfig, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		http: &fasthttp.Client{
			Name:                     portal.UserAgent,
			MaxIdleConnDuration:      30 * time.Second,
			NoDefaultUserAgentHeader: portal.UserAgent != "",
		},
		apiURL:    portal.APIURL,
		param:     portal.TokenParam,
		userAgent: portal.UserAgent,
		timeout:   timeout,
	}
}

// FetchTile implements ports.TileFetcher.
func (c *Client) FetchTile(ctx context.Context, token string, tr domain.TileRequest) ([]byte, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, eris.Wrap(err, "parse api url")
	}
	q := u.Query()
	q.Set(c.param, token)
	u.RawQuery = q.Encode()

	body, err := json.Marshal(tr)
	if err != nil {
		return nil, eris.Wrap(err, "marshal tile request")
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(u.String())
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	timeout := c.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, eris.Wrapf(domain.ErrTileFetch, "post: %v", err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return nil, eris.Wrapf(domain.ErrTileFetch, "status %d", code)
	}

	// resp.Body is reused after release.
	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return out, nil
}
