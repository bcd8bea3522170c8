package browser

import (
	"context"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/models"
)

// ReferrerChain reaches the target through a Google search click-through,
// so the landing request arrives with organic referrer history, Google
// cookies, and human-paced typing behind it. Implements
// engine.BrowserBackend.
func (p *Pool) ReferrerChain(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	release, err := p.acquire(ctx, p.chromiumSem)
	if err != nil {
		return nil, err
	}
	defer release()

	browser, err := p.browserFor(false)
	if err != nil {
		return nil, err
	}

	fp := NewFingerprint(false, false)
	page, err := p.mintContext(browser, req, fp)
	if err != nil {
		p.recoverBrowser(false)
		return nil, err
	}
	defer func() {
		p.harvestCookies(page)
		_ = page.Close()
	}()

	navCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	bound := page.Context(navCtx)

	target, err := url.Parse(req.URL)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "invalid target url", err)
	}

	if err := bound.Navigate("https://www.google.com/"); err != nil {
		return nil, categorizeNavError(err, "failed to reach google")
	}
	_ = bound.WaitDOMStable(300*time.Millisecond, 0.1)
	dismissConsent(bound)

	query := searchQueryFor(target)
	if err := typeQuery(navCtx, bound, query); err != nil {
		return nil, categorizeNavError(err, "search input failed")
	}
	_ = bound.Keyboard.Press(input.Enter)
	_ = bound.WaitDOMStable(300*time.Millisecond, 0.1)

	clicked := clickResultFor(bound, target.Hostname())
	if !clicked {
		// No organic result on the domain; land directly but keep the
		// Google referrer so the chain still reads as a click-through.
		slog.Debug("no search result for domain, navigating with referrer", "host", target.Hostname())
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toProtoHeaders(map[string]string{"Referer": "https://www.google.com/"}),
		}.Call(bound)
		if err := bound.Navigate(req.URL); err != nil {
			return nil, categorizeNavError(err, "navigation failed")
		}
	}
	_ = bound.WaitDOMStable(300*time.Millisecond, 0.1)

	// The click may have landed on an inner page; walk to the target URL
	// if we are not already there.
	current := evalString(bound, `() => window.location.href`)
	if !sameResource(current, req.URL) {
		if err := bound.Navigate(req.URL); err != nil {
			return nil, categorizeNavError(err, "navigation to target failed")
		}
		_ = bound.WaitDOMStable(300*time.Millisecond, 0.1)
	}

	if detectChallenge(bound) {
		solveChallenge(navCtx, bound)
	}

	html, err := bound.HTML()
	if err != nil {
		return nil, categorizeNavError(err, "failed to extract rendered html")
	}
	result := &engine.FetchResult{
		RawHTML:    html,
		StatusCode: navStatus(bound),
		FinalURL:   evalString(bound, `() => window.location.href`),
	}
	if result.FinalURL == "" {
		result.FinalURL = req.URL
	}
	return result, nil
}

// Prewarm builds a believable session on the target's domain before the
// real request: homepage visit, dwell with scrolling, one or two internal
// hops, then the target itself on warmed cookies. Implements
// engine.BrowserBackend.
func (p *Pool) Prewarm(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	release, err := p.acquire(ctx, p.chromiumSem)
	if err != nil {
		return nil, err
	}
	defer release()

	browser, err := p.browserFor(false)
	if err != nil {
		return nil, err
	}

	fp := NewFingerprint(false, false)
	page, err := p.mintContext(browser, req, fp)
	if err != nil {
		p.recoverBrowser(false)
		return nil, err
	}
	defer func() {
		p.harvestCookies(page)
		_ = page.Close()
	}()

	navCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	bound := page.Context(navCtx)

	target, err := url.Parse(req.URL)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "invalid target url", err)
	}
	home := target.Scheme + "://" + target.Host + "/"

	// Phase 1: land on the homepage.
	if err := bound.Navigate(home); err != nil {
		return nil, categorizeNavError(err, "homepage warm-up failed")
	}
	_ = bound.WaitDOMStable(300*time.Millisecond, 0.1)
	if detectChallenge(bound) {
		solveChallenge(navCtx, bound)
	}

	// Phase 2: dwell and scroll like a reader.
	humanDwell(navCtx, bound)

	// Phase 3: hop through one or two internal pages.
	hops := 1 + rand.Intn(2)
	for i := 0; i < hops; i++ {
		link := randomInternalLink(bound, target.Hostname())
		if link == "" {
			break
		}
		if err := bound.Navigate(link); err != nil {
			break
		}
		_ = bound.WaitDOMStable(300*time.Millisecond, 0.1)
		// Phase 4: dwell on each hop.
		humanDwell(navCtx, bound)
	}

	// Phase 5: the real target, on accumulated cookies.
	if err := bound.Navigate(req.URL); err != nil {
		return nil, categorizeNavError(err, "navigation to target failed")
	}
	_ = bound.WaitDOMStable(300*time.Millisecond, 0.1)
	if detectChallenge(bound) {
		solveChallenge(navCtx, bound)
	}

	html, err := bound.HTML()
	if err != nil {
		return nil, categorizeNavError(err, "failed to extract rendered html")
	}
	result := &engine.FetchResult{
		RawHTML:    html,
		StatusCode: navStatus(bound),
		FinalURL:   evalString(bound, `() => window.location.href`),
	}
	if result.FinalURL == "" {
		result.FinalURL = req.URL
	}
	return result, nil
}

// dismissConsent clicks through Google's GDPR consent dialog when shown.
func dismissConsent(page *rod.Page) {
	res, err := page.Eval(`() => {
		const labels = ['accept all', 'i agree', 'alle akzeptieren', 'tout accepter'];
		for (const b of document.querySelectorAll('button')) {
			const t = (b.innerText || '').trim().toLowerCase();
			if (labels.some((l) => t === l || t.startsWith(l))) { b.click(); return true; }
		}
		return false;
	}`)
	if err == nil && res.Value.Bool() {
		time.Sleep(500 * time.Millisecond)
	}
}

// searchQueryFor builds the query: host plus the first meaningful path
// segment, which usually surfaces the exact page in results.
func searchQueryFor(target *url.URL) string {
	query := target.Hostname()
	for _, seg := range strings.Split(strings.Trim(target.Path, "/"), "/") {
		if len(seg) > 2 {
			query += " " + strings.ReplaceAll(seg, "-", " ")
			break
		}
	}
	return query
}

// typeQuery types into the search box character by character with 50 to
// 150ms pauses.
func typeQuery(ctx context.Context, page *rod.Page, query string) error {
	box, err := page.Element(`textarea[name="q"], input[name="q"]`)
	if err != nil {
		return err
	}
	if err := box.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	for _, r := range query {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := box.Input(string(r)); err != nil {
			return err
		}
		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
	}
	return nil
}

// clickResultFor finds an organic result link on the target's domain,
// moves the mouse there, and clicks it.
func clickResultFor(page *rod.Page, host string) bool {
	res, err := page.Eval(`(host) => {
		for (const a of document.querySelectorAll('#search a[href], #rso a[href]')) {
			try {
				const u = new URL(a.href);
				if (u.hostname === host || u.hostname.endsWith('.' + host) || host.endsWith('.' + u.hostname)) {
					const r = a.getBoundingClientRect();
					if (r.width > 0 && r.height > 0) {
						return { x: r.left + r.width / 2, y: r.top + r.height / 2 };
					}
				}
			} catch (e) {}
		}
		return null;
	}`, host)
	if err != nil || res.Value.Nil() {
		return false
	}
	x := res.Value.Get("x").Num()
	y := res.Value.Get("y").Num()
	moveMouseArc(page, x, y)
	if err := page.Mouse.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false
	}
	time.Sleep(time.Duration(500+rand.Intn(1000)) * time.Millisecond)
	return true
}

// humanDwell pauses 1.5 to 4 seconds while scrolling down a couple of
// screens.
func humanDwell(ctx context.Context, page *rod.Page) {
	total := time.Duration(1500+rand.Intn(2500)) * time.Millisecond
	deadline := time.Now().Add(total)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		_ = page.Mouse.Scroll(0, float64(200+rand.Intn(400)), 3)
		if !sleepOrDone(ctx, time.Duration(300+rand.Intn(500))*time.Millisecond) {
			return
		}
	}
}

// randomInternalLink picks a same-host anchor from the current page.
func randomInternalLink(page *rod.Page, host string) string {
	res, err := page.Eval(`(host) => {
		const links = [];
		for (const a of document.querySelectorAll('a[href]')) {
			try {
				const u = new URL(a.href);
				if (u.hostname === host && u.pathname.length > 1 && !u.hash) links.push(a.href);
			} catch (e) {}
		}
		if (links.length === 0) return '';
		return links[Math.floor(Math.random() * links.length)];
	}`, host)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// sameResource compares URLs ignoring fragments and trailing slashes.
func sameResource(a, b string) bool {
	norm := func(raw string) string {
		u, err := url.Parse(raw)
		if err != nil {
			return raw
		}
		u.Fragment = ""
		u.Path = strings.TrimSuffix(u.Path, "/")
		return u.String()
	}
	return norm(a) == norm(b)
}
