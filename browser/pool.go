package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/models"
)

// acquireTimeout bounds how long a request waits for a free context slot.
const acquireTimeout = 30 * time.Second

// Pool owns the long-lived Chromium and Firefox processes and mints
// ephemeral stealth contexts on them. It satisfies engine.BrowserBackend.
// Chromium launches at construction; Firefox launches lazily on the first
// tier that needs it and stays disabled after a failed launch.
type Pool struct {
	cfg config.BrowserConfig
	nav time.Duration
	jar *CookieJar

	chromiumMu  sync.Mutex
	chromium    *rod.Browser
	chromiumSem chan struct{}

	firefoxMu     sync.Mutex
	firefox       *rod.Browser
	firefoxSem    chan struct{}
	firefoxBroken bool
}

// NewPool launches Chromium and prepares the context slots.
func NewPool(cfg config.BrowserConfig, navTimeout time.Duration) (*Pool, error) {
	p := &Pool{
		cfg:         cfg,
		nav:         navTimeout,
		jar:         NewCookieJar(),
		chromiumSem: make(chan struct{}, max(1, cfg.ChromiumPoolSize)),
		firefoxSem:  make(chan struct{}, max(1, cfg.FirefoxPoolSize)),
	}
	browser, err := p.launchChromium()
	if err != nil {
		return nil, err
	}
	p.chromium = browser
	return p, nil
}

// Jar exposes the shared cookie jar so crawl sessions can seed it.
func (p *Pool) Jar() *CookieJar { return p.jar }

func (p *Pool) launchChromium() (*rod.Browser, error) {
	l := launcher.New().
		Headless(p.cfg.Headless).
		NoSandbox(p.cfg.NoSandbox)
	if p.cfg.ChromiumBin != "" {
		l = l.Bin(p.cfg.ChromiumBin)
	}

	// Stealth launch flags.
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch chromium", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to chromium", err)
	}
	slog.Info("chromium launched", "controlURL", controlURL, "slots", cap(p.chromiumSem))
	return browser, nil
}

// launchFirefox starts the Firefox process over its remote debugging
// protocol. Runs under firefoxMu.
func (p *Pool) launchFirefox() (*rod.Browser, error) {
	if p.cfg.FirefoxBin == "" {
		return nil, fmt.Errorf("no firefox binary configured")
	}
	l := launcher.New().
		Bin(p.cfg.FirefoxBin).
		Headless(p.cfg.Headless)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch firefox", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to firefox", err)
	}
	slog.Info("firefox launched", "controlURL", controlURL, "slots", cap(p.firefoxSem))
	return browser, nil
}

// acquire waits for a free context slot. Returns a release func, or a
// CAPACITY error after 30 seconds.
func (p *Pool) acquire(ctx context.Context, sem chan struct{}) (func(), error) {
	timer := time.NewTimer(acquireTimeout)
	defer timer.Stop()
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-timer.C:
		return nil, models.NewScrapeError(models.ErrCodeCapacity, "browser pool saturated", nil)
	case <-ctx.Done():
		return nil, models.NewScrapeError(models.ErrCodeTimeout, "cancelled while waiting for browser slot", ctx.Err())
	}
}

// browserFor returns the live browser for the requested engine, launching
// or relaunching as needed.
func (p *Pool) browserFor(firefox bool) (*rod.Browser, error) {
	if firefox {
		p.firefoxMu.Lock()
		defer p.firefoxMu.Unlock()
		if p.firefoxBroken {
			return nil, fmt.Errorf("firefox engine unavailable")
		}
		if p.firefox == nil {
			browser, err := p.launchFirefox()
			if err != nil {
				p.firefoxBroken = true
				slog.Warn("firefox disabled after launch failure", "error", err)
				return nil, err
			}
			p.firefox = browser
		}
		return p.firefox, nil
	}

	p.chromiumMu.Lock()
	defer p.chromiumMu.Unlock()
	if p.chromium == nil {
		browser, err := p.launchChromium()
		if err != nil {
			return nil, err
		}
		p.chromium = browser
	}
	return p.chromium, nil
}

// recoverBrowser drops a dead browser handle so the next request relaunches.
func (p *Pool) recoverBrowser(firefox bool) {
	if firefox {
		p.firefoxMu.Lock()
		if p.firefox != nil {
			_ = p.firefox.Close()
			p.firefox = nil
		}
		p.firefoxMu.Unlock()
		slog.Warn("firefox handle dropped for relaunch")
		return
	}
	p.chromiumMu.Lock()
	if p.chromium != nil {
		_ = p.chromium.Close()
		p.chromium = nil
	}
	p.chromiumMu.Unlock()
	slog.Warn("chromium handle dropped for relaunch")
}

// mintContext creates a fresh incognito page with a randomized fingerprint.
//
// Lifecycle:
//
//  1. Incognito browser context (isolated storage)
//  2. Blank page
//  3. Stealth script installed before any navigation
//  4. Device metrics matching the fingerprint viewport
//  5. Timezone and locale overrides
//  6. User agent override
//  7. Extra headers consistent with the fingerprint
//  8. Cookies replayed from the shared jar
func (p *Pool) mintContext(browser *rod.Browser, req *engine.FetchRequest, fp *Fingerprint) (*rod.Page, error) {
	inc, err := p.mintIncognito(browser)
	if err != nil {
		return nil, err
	}
	return p.preparePage(inc, req, fp)
}

// mintIncognito opens an isolated-storage browser context. Crawl sessions
// hold one of these for their whole lifetime and mint pages inside it.
func (p *Pool) mintIncognito(browser *rod.Browser) (*rod.Browser, error) {
	inc, err := browser.Incognito()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to create incognito context", err)
	}
	return inc, nil
}

// preparePage opens a page inside the context and applies the stealth
// scripts, emulation overrides, headers, and cookies for the fingerprint.
func (p *Pool) preparePage(inc *rod.Browser, req *engine.FetchRequest, fp *Fingerprint) (*rod.Page, error) {
	page, err := inc.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to open page", err)
	}

	// The community stealth bundle patches the broad automation tells;
	// the fingerprint script then pins the identity-bearing surfaces
	// (UA, WebGL, canvas noise) to this context's fingerprint.
	if !fp.IsFirefox() {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth bundle injection failed", "error", err)
		}
	}
	script := StealthScript(fp)
	if fp.IsFirefox() {
		script = FirefoxStealthScript(fp)
	}
	if _, err := page.EvalOnNewDocument(script); err != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             fp.ViewportWidth,
		Height:            fp.ViewportHeight,
		DeviceScaleFactor: 1,
		Mobile:            req.Mobile,
	}).Call(page); err != nil {
		slog.Debug("viewport override failed", "error", err)
	}
	_ = proto.EmulationSetTimezoneOverride{TimezoneID: fp.Timezone}.Call(page)
	_ = proto.EmulationSetLocaleOverride{Locale: fp.Locale}.Call(page)

	_ = proto.NetworkSetUserAgentOverride{
		UserAgent:      fp.UserAgent,
		AcceptLanguage: engine.AcceptLanguageFor(req.URL),
		Platform:       fp.Platform(),
	}.Call(page)

	headers := fp.Headers(engine.AcceptLanguageFor(req.URL))
	for k, v := range req.Headers {
		headers[k] = v
	}
	if len(headers) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: toProtoHeaders(headers)}.Call(page)
	}

	p.replayCookies(page, req)
	return page, nil
}

// replayCookies sets the jar's cookies plus the request's explicit cookies
// on the page.
func (p *Pool) replayCookies(page *rod.Page, req *engine.FetchRequest) {
	var params []*proto.NetworkCookieParam
	for _, c := range p.jar.For(req.URL) {
		params = append(params, &proto.NetworkCookieParam{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	for name, value := range req.Cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:  name,
			Value: value,
			URL:   req.URL,
		})
	}
	if len(params) > 0 {
		_ = proto.NetworkSetCookies{Cookies: params}.Call(page)
	}
}

// harvestCookies pulls the context's cookies back into the shared jar.
func (p *Pool) harvestCookies(page *rod.Page) {
	cookies, err := page.Cookies(nil)
	if err != nil {
		return
	}
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		cookie := Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			cookie.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, cookie)
	}
	p.jar.Store(out)
}

// Fetch renders the URL in a fresh stealth context and returns the HTML.
// Implements engine.BrowserBackend.
func (p *Pool) Fetch(ctx context.Context, req *engine.FetchRequest, firefox bool) (*engine.FetchResult, error) {
	sem := p.chromiumSem
	if firefox {
		sem = p.firefoxSem
	}
	release, err := p.acquire(ctx, sem)
	if err != nil {
		return nil, err
	}
	defer release()

	browser, err := p.browserFor(firefox)
	if err != nil {
		return nil, err
	}

	fp := NewFingerprint(firefox, req.Mobile)
	page, err := p.mintContext(browser, req, fp)
	if err != nil {
		p.recoverBrowser(firefox)
		return nil, err
	}
	// Cleanup uses the original page handle so it succeeds even after the
	// request context has expired.
	defer func() {
		p.harvestCookies(page)
		_ = page.Close()
	}()

	router := mountInterceptor(page, false)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	navCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	bound := page.Context(navCtx)

	if err := bound.Navigate(req.URL); err != nil {
		return nil, categorizeNavError(err, "navigation failed")
	}
	if err := bound.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("dom did not stabilize, proceeding", "url", req.URL, "error", err)
	}
	if req.WaitFor > 0 {
		select {
		case <-time.After(req.WaitFor):
		case <-navCtx.Done():
			return nil, categorizeNavError(navCtx.Err(), "wait_for interrupted")
		}
	}

	// Interstitial challenges get one solve attempt before extraction.
	if detectChallenge(bound) {
		if solved := solveChallenge(navCtx, bound); solved {
			slog.Info("challenge cleared", "url", req.URL)
		} else {
			slog.Debug("challenge not cleared", "url", req.URL)
		}
	}

	result := &engine.FetchResult{StatusCode: navStatus(bound)}

	var actionShots []string
	if len(req.Actions) > 0 {
		actionShots = runActions(navCtx, page, req.Actions)
	}
	result.ActionScreenshots = actionShots

	if req.DiscoverLinks {
		disc := discoverNavigation(bound)
		result.DocFramework = disc.Framework
		result.DiscoveredLinks = disc.SameOriginLinks
	}

	html, err := bound.HTML()
	if err != nil {
		return nil, categorizeNavError(err, "failed to extract rendered html")
	}
	result.RawHTML = html
	result.FinalURL = evalString(bound, `() => window.location.href`)
	if result.FinalURL == "" {
		result.FinalURL = req.URL
	}

	if req.Screenshot {
		shot, err := bound.Screenshot(true, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
		if err != nil {
			slog.Warn("screenshot failed", "url", req.URL, "error", err)
		} else {
			result.Screenshot = encodePNG(shot)
		}
	}
	return result, nil
}

// Close shuts down both browser processes.
func (p *Pool) Close() {
	p.chromiumMu.Lock()
	if p.chromium != nil {
		p.chromium.MustClose()
		p.chromium = nil
	}
	p.chromiumMu.Unlock()

	p.firefoxMu.Lock()
	if p.firefox != nil {
		_ = p.firefox.Close()
		p.firefox = nil
	}
	p.firefoxMu.Unlock()
	slog.Info("browser pool shut down")
}

// navStatus reads the navigation entry's HTTP status without CDP network
// listeners, which conflict with the hijack router.
func navStatus(page *rod.Page) int {
	res, err := page.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 200;
		} catch (e) {}
		return 200;
	}`)
	if err != nil {
		return 200
	}
	return res.Value.Int()
}

func evalString(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func toProtoHeaders(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeNavError maps raw navigation errors to typed codes.
func categorizeNavError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request cancelled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
