// Package browser drives a headless Chrome through the DevTools protocol.
// One Session serves token acquisition, in-page tile fetches and portal
// inspection.
package browser

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/config"
)

// consentPolls is how many times the consent control is looked for.
const consentPolls = 3

// Session owns one browser process. AcquireToken opens a fresh tab for each
// batch; FetchTile runs inside that tab so the portal's cookies apply.
type Session struct {
	cfg     config.PortalConfig
	tokenRe *regexp.Regexp

	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc

	mu        sync.RWMutex
	tab       context.Context
	cancelTab context.CancelFunc
}

// NewSession starts the browser.
func NewSession(ctx context.Context, cfg config.PortalConfig) (*Session, error) {
	re, err := regexp.Compile(cfg.TokenPattern)
	if err != nil {
		return nil, eris.Wrapf(err, "token pattern %q", cfg.TokenPattern)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, eris.Wrap(err, "start browser")
	}

	return &Session{
		cfg:           cfg,
		tokenRe:       re,
		cancelAlloc:   cancelAlloc,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
	}, nil
}

// Close shuts the browser down.
func (s *Session) Close() {
	s.mu.Lock()
	if s.cancelTab != nil {
		s.cancelTab()
	}
	s.mu.Unlock()
	s.cancelBrowser()
	s.cancelAlloc()
}

// AcquireToken opens portalURL in a new tab, passes the consent gate if one
// is shown, and waits for a request whose URL matches the token pattern.
// The tab becomes the one FetchTile uses.
func (s *Session) AcquireToken(ctx context.Context, portalURL string) (string, error) {
	tab, cancel, err := s.newTab()
	if err != nil {
		return "", err
	}

	tokens := make(chan string, 1)
	chromedp.ListenTarget(tab, func(ev interface{}) {
		req, ok := ev.(*network.EventRequestWillBeSent)
		if !ok {
			return
		}
		if tok := TokenFromURL(req.Request.URL, s.tokenRe, s.cfg.TokenParam); tok != "" {
			select {
			case tokens <- tok:
			default:
			}
		}
	})

	if err := s.open(ctx, tab, portalURL); err != nil {
		cancel()
		return "", err
	}

	for attempt := 1; attempt <= s.cfg.TokenAttempts; attempt++ {
		select {
		case tok := <-tokens:
			s.setTab(tab, cancel)
			slog.Debug("access token captured", "url", portalURL, "attempt", attempt)
			return tok, nil
		case <-ctx.Done():
			cancel()
			return "", ctx.Err()
		case <-time.After(s.cfg.TokenWait):
		}
	}
	cancel()
	return "", eris.Wrapf(domain.ErrTokenNotFound, "%s after %d attempts", portalURL, s.cfg.TokenAttempts)
}

type fetchResult struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// FetchTile posts req from inside the current tab.
func (s *Session) FetchTile(ctx context.Context, token string, req domain.TileRequest) ([]byte, error) {
	s.mu.RLock()
	tab := s.tab
	s.mu.RUnlock()
	if tab == nil {
		return nil, eris.Wrap(domain.ErrTileFetch, "no portal tab open")
	}

	endpoint, err := tileURL(s.cfg.APIURL, s.cfg.TokenParam, token)
	if err != nil {
		return nil, eris.Wrap(err, "build tile url")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "marshal tile request")
	}
	jsURL, _ := json.Marshal(endpoint)
	jsBody, _ := json.Marshal(string(body))

	script := `(async () => {
		const r = await fetch(` + string(jsURL) + `, {
			method: "POST",
			headers: {"Content-Type": "application/json"},
			credentials: "include",
			body: ` + string(jsBody) + `
		});
		return {status: r.status, body: await r.text()};
	})()`

	// The tab outlives ctx; derive a child so ctx still bounds this call.
	runCtx, cancel := context.WithCancel(tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var res fetchResult
	err = chromedp.Run(runCtx, chromedp.Evaluate(script, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, eris.Wrapf(domain.ErrTileFetch, "evaluate fetch: %v", err)
	}
	if res.Status < 200 || res.Status >= 300 {
		return nil, eris.Wrapf(domain.ErrTileFetch, "status %d", res.Status)
	}
	return []byte(res.Body), nil
}

// Inspect opens portalURL in a throwaway tab and returns the rendered page
// source.
func (s *Session) Inspect(ctx context.Context, portalURL string) (string, error) {
	tab, cancel, err := s.newTab()
	if err != nil {
		return "", err
	}
	defer cancel()

	if err := s.open(ctx, tab, portalURL); err != nil {
		return "", err
	}
	var html string
	if err := s.run(ctx, tab, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", eris.Wrapf(err, "read page source of %s", portalURL)
	}
	return html, nil
}

// newTab creates a tab. The first Run binds the target to the context it
// gets, so it runs on the tab context itself and never on a caller's.
func (s *Session) newTab() (context.Context, context.CancelFunc, error) {
	tab, cancel := chromedp.NewContext(s.browserCtx)
	if err := chromedp.Run(tab); err != nil {
		cancel()
		return nil, nil, eris.Wrap(err, "open tab")
	}
	return tab, cancel, nil
}

// open navigates tab to portalURL, waits for the document and clicks the
// consent control when present.
func (s *Session) open(ctx context.Context, tab context.Context, portalURL string) error {
	timeout := s.cfg.PageTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.run(pageCtx, tab,
		network.Enable(),
		chromedp.Navigate(portalURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return eris.Wrapf(err, "open %s", portalURL)
	}

	if s.cfg.ConsentSelector != "" {
		clicked, err := s.clickConsent(pageCtx, tab)
		if err != nil {
			slog.Warn("consent click failed", "url", portalURL, "error", err)
		} else if clicked {
			slog.Debug("consent accepted", "url", portalURL)
		}
	}
	return nil
}

// clickConsent clicks the consent control if it shows up within a few
// polls. Finding none is not an error.
func (s *Session) clickConsent(ctx context.Context, tab context.Context) (bool, error) {
	sel := s.cfg.ConsentSelector
	for i := 0; i < consentPolls; i++ {
		var nodes []*cdp.Node
		if err := s.run(ctx, tab, chromedp.Nodes(sel, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
			return false, err
		}
		if len(nodes) > 0 {
			return true, s.run(ctx, tab, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible))
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return false, nil
}

// run executes actions on tab while honouring ctx.
func (s *Session) run(ctx context.Context, tab context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// setTab makes tab current and closes the previous one. The previous token
// is never used again.
func (s *Session) setTab(tab context.Context, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelTab != nil {
		s.cancelTab()
	}
	s.tab, s.cancelTab = tab, cancel
}
