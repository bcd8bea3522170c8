package engine

import (
	"context"
	"fmt"
)

// BrowserBackend abstracts the stealth browser pool. The sidecar client and
// the local rod-based pool both satisfy it, so the cascade never knows
// which backend is in play.
type BrowserBackend interface {
	// Fetch navigates a fresh stealth context to the URL and returns the
	// rendered HTML.
	Fetch(ctx context.Context, req *FetchRequest, firefox bool) (*FetchResult, error)

	// ReferrerChain reaches the target by searching Google and clicking
	// through a result on the target's domain.
	ReferrerChain(ctx context.Context, req *FetchRequest) (*FetchResult, error)

	// Prewarm accumulates cookies and behavioural entropy on the target
	// domain before navigating to the URL itself.
	Prewarm(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// BrowserTier renders the page in a stealth browser context. Tier 3 uses
// Chromium, tier 4 Firefox.
type BrowserTier struct {
	backend BrowserBackend
	firefox bool
}

// NewBrowserTier creates a browser tier for the given engine.
func NewBrowserTier(backend BrowserBackend, firefox bool) *BrowserTier {
	return &BrowserTier{backend: backend, firefox: firefox}
}

func (t *BrowserTier) Name() string {
	if t.firefox {
		return TierFirefox
	}
	return TierChromium
}

func (t *BrowserTier) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if t.backend == nil {
		return nil, fmt.Errorf("%s: no browser backend configured", t.Name())
	}
	result, err := t.backend.Fetch(ctx, req, t.firefox)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.Name(), err)
	}
	if result != nil {
		result.SourceTier = t.Name()
	}
	return result, nil
}

// ReferrerTier (tier 5) reaches hard sites through a Google search
// click-through so the landing request carries an organic referrer chain.
type ReferrerTier struct {
	backend BrowserBackend
}

// NewReferrerTier creates the Google referrer-chain tier.
func NewReferrerTier(backend BrowserBackend) *ReferrerTier {
	return &ReferrerTier{backend: backend}
}

func (t *ReferrerTier) Name() string { return TierGoogleChain }

func (t *ReferrerTier) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if t.backend == nil {
		return nil, fmt.Errorf("google-chain: no browser backend configured")
	}
	result, err := t.backend.ReferrerChain(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("google-chain: %w", err)
	}
	if result != nil {
		result.SourceTier = TierGoogleChain
	}
	return result, nil
}

// PrewarmTier (tier 6) builds a believable session on the target domain
// (search, click-through, random internal navigation) before the real
// request.
type PrewarmTier struct {
	backend BrowserBackend
}

// NewPrewarmTier creates the session pre-warming tier.
func NewPrewarmTier(backend BrowserBackend) *PrewarmTier {
	return &PrewarmTier{backend: backend}
}

func (t *PrewarmTier) Name() string { return TierPrewarm }

func (t *PrewarmTier) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if t.backend == nil {
		return nil, fmt.Errorf("prewarm: no browser backend configured")
	}
	result, err := t.backend.Prewarm(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("prewarm: %w", err)
	}
	if result != nil {
		result.SourceTier = TierPrewarm
	}
	return result, nil
}
