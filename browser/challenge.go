package browser

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// challengeBudget is the hard cap on one solve attempt.
const challengeBudget = 20 * time.Second

// detectChallenge reports whether the page currently shows a Cloudflare
// interstitial: the "Just a moment" title, a Turnstile widget, or the
// checking-your-browser body copy.
func detectChallenge(page *rod.Page) bool {
	title := strings.ToLower(evalString(page, `() => document.title`))
	if strings.Contains(title, "just a moment") || strings.Contains(title, "attention required") {
		return true
	}

	res, err := page.Eval(`() => {
		if (document.querySelector('iframe[src*="challenges.cloudflare.com"]')) return true;
		if (document.querySelector('input[name="cf-turnstile-response"]')) return true;
		const body = (document.body ? document.body.innerText : '').toLowerCase();
		return body.includes('checking your browser') ||
			body.includes('verify you are human') ||
			body.includes('needs to review the security of your connection');
	}`)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

// solveChallenge drives a human-plausible interaction with a Turnstile
// checkbox: an eased mouse arc to the widget, a press with a long hold,
// then polling for the interstitial to clear. Returns true when the
// challenge page is gone before the budget expires.
func solveChallenge(ctx context.Context, page *rod.Page) bool {
	deadline := time.Now().Add(challengeBudget)
	solveCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	p := page.Context(solveCtx)

	// Managed challenges often clear on their own once the stealth
	// environment passes the JS checks.
	for i := 0; i < 4; i++ {
		if !sleepOrDone(solveCtx, time.Second) {
			return false
		}
		if !detectChallenge(p) {
			return true
		}
	}

	x, y, found := turnstileTarget(p)
	if !found {
		// No clickable widget; keep waiting out the remaining budget.
		for time.Now().Before(deadline) {
			if !sleepOrDone(solveCtx, time.Second) {
				return false
			}
			if !detectChallenge(p) {
				return true
			}
		}
		return false
	}

	moveMouseArc(p, x, y)
	pressAndHold(p, x, y)

	for time.Now().Before(deadline) {
		if !sleepOrDone(solveCtx, time.Second) {
			return false
		}
		if !detectChallenge(p) {
			return true
		}
	}
	return false
}

// turnstileTarget locates the checkbox click point. The checkbox sits near
// the left edge of the widget iframe.
func turnstileTarget(page *rod.Page) (x, y float64, found bool) {
	res, err := page.Eval(`() => {
		const el = document.querySelector('iframe[src*="challenges.cloudflare.com"]') ||
			document.querySelector('.cf-turnstile') ||
			document.querySelector('#challenge-stage');
		if (!el) return null;
		const r = el.getBoundingClientRect();
		return { x: r.left + 28, y: r.top + r.height / 2 };
	}`)
	if err != nil || res.Value.Nil() {
		return 0, 0, false
	}
	return res.Value.Get("x").Num(), res.Value.Get("y").Num(), true
}

// moveMouseArc moves the cursor along a curved path in 12 to 20 steps with
// smoothstep easing, so velocity ramps up and back down like a hand.
func moveMouseArc(page *rod.Page, tx, ty float64) {
	startX := 80 + rand.Float64()*120
	startY := 80 + rand.Float64()*120
	steps := 12 + rand.Intn(9)
	// Perpendicular bow gives the path its arc.
	bow := 30 + rand.Float64()*50
	if rand.Intn(2) == 0 {
		bow = -bow
	}

	dx, dy := tx-startX, ty-startY
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		dist = 1
	}
	nx, ny := -dy/dist, dx/dist

	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		eased := t * t * (3 - 2*t)
		arc := math.Sin(t*math.Pi) * bow
		x := startX + dx*eased + nx*arc
		y := startY + dy*eased + ny*arc
		_ = page.Mouse.MoveTo(proto.Point{X: x, Y: y})
		time.Sleep(time.Duration(8+rand.Intn(18)) * time.Millisecond)
	}
}

// pressAndHold presses the left button and holds it for 2.5 to 4 seconds
// with a small positional jitter around 400ms in, mimicking the Turnstile
// press-and-hold variant.
func pressAndHold(page *rod.Page, x, y float64) {
	_ = page.Mouse.MoveTo(proto.Point{X: x, Y: y})
	if err := page.Mouse.Down(proto.InputMouseButtonLeft, 1); err != nil {
		return
	}
	hold := 2500 + rand.Intn(1500)

	time.Sleep(400 * time.Millisecond)
	_ = page.Mouse.MoveTo(proto.Point{X: x + rand.Float64()*2 - 1, Y: y + rand.Float64()*2 - 1})
	time.Sleep(time.Duration(hold-400) * time.Millisecond)

	_ = page.Mouse.Up(proto.InputMouseButtonLeft, 1)
}

// sleepOrDone sleeps unless the context ends first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
