package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/harvest/engine"
)

// defaultActionTimeout is the per-action deadline.
const defaultActionTimeout = 5 * time.Second

// runActions executes the ordered action list on the page. A failed action
// is logged and skipped; the page state after the last action is what gets
// extracted. Returns the base64 PNG screenshots captured by screenshot
// actions, in order.
func runActions(ctx context.Context, page *rod.Page, actions []engine.ActionSpec) []string {
	var shots []string
	for i, action := range actions {
		shot, err := runAction(ctx, page, action)
		if err != nil {
			slog.Warn("browser action failed, continuing",
				"index", i, "type", action.Type, "error", err)
			continue
		}
		if shot != "" {
			shots = append(shots, shot)
		}
	}
	return shots
}

// runAction dispatches a single action with its own timeout. A non-empty
// first return is a captured screenshot.
func runAction(ctx context.Context, page *rod.Page, action engine.ActionSpec) (string, error) {
	timeout := defaultActionTimeout
	if action.Type == "wait" && action.Milliseconds > 0 {
		timeout = time.Duration(action.Milliseconds)*time.Millisecond + time.Second
	}
	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	p := page.Context(actionCtx)

	switch action.Type {
	case "click":
		return "", clickSelector(p, action.Selector)
	case "type":
		return "", typeText(p, action)
	case "fill":
		return "", fillValue(p, action.Selector, action.Value)
	case "fill_form":
		for sel, val := range action.Fields {
			if err := fillValue(p, sel, val); err != nil {
				return "", err
			}
		}
		return "", nil
	case "wait":
		if action.Milliseconds > 0 {
			if !sleepOrDone(actionCtx, time.Duration(action.Milliseconds)*time.Millisecond) {
				return "", actionCtx.Err()
			}
		}
		return "", nil
	case "wait_for_selector":
		if action.Selector == "" {
			return "", fmt.Errorf("wait_for_selector requires a selector")
		}
		return "", p.WaitElementsMoreThan(action.Selector, 0)
	case "wait_for_navigation":
		return "", p.WaitDOMStable(300*time.Millisecond, 0.1)
	case "scroll":
		return "", scrollPage(p, action)
	case "screenshot":
		shot, err := p.Screenshot(false, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
		if err != nil {
			return "", err
		}
		return encodePNG(shot), nil
	case "hover":
		el, err := p.Element(action.Selector)
		if err != nil {
			return "", fmt.Errorf("element %q not found: %w", action.Selector, err)
		}
		return "", el.Hover()
	case "press":
		if action.Key == "" {
			return "", fmt.Errorf("press requires a key")
		}
		return "", pressKey(p, action.Key)
	case "select":
		el, err := p.Element(action.Selector)
		if err != nil {
			return "", fmt.Errorf("element %q not found: %w", action.Selector, err)
		}
		return "", el.Select([]string{action.Value}, true, rod.SelectorTypeText)
	case "evaluate":
		if action.Script == "" {
			return "", fmt.Errorf("evaluate requires a script")
		}
		_, err := p.Eval(action.Script)
		return "", err
	case "go_back":
		return "", p.NavigateBack()
	case "go_forward":
		return "", p.NavigateForward()
	case "focus":
		el, err := p.Element(action.Selector)
		if err != nil {
			return "", fmt.Errorf("element %q not found: %w", action.Selector, err)
		}
		return "", el.Focus()
	case "clear":
		el, err := p.Element(action.Selector)
		if err != nil {
			return "", fmt.Errorf("element %q not found: %w", action.Selector, err)
		}
		return "", el.SelectAllText()
	default:
		slog.Debug("unknown action type skipped", "type", action.Type)
		return "", nil
	}
}

func clickSelector(p *rod.Page, selector string) error {
	if selector == "" {
		return fmt.Errorf("click requires a selector")
	}
	el, err := p.Element(selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// typeText types into the selector target, or into the focused element
// when no selector is given. Characters land one at a time.
func typeText(p *rod.Page, action engine.ActionSpec) error {
	if action.Selector != "" {
		el, err := p.Element(action.Selector)
		if err != nil {
			return fmt.Errorf("element %q not found: %w", action.Selector, err)
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return err
		}
		return el.Input(action.Text)
	}
	return p.Keyboard.Type([]input.Key(action.Text)...)
}

// fillValue sets the element's value directly and fires input events, so
// controlled React/Vue inputs pick the change up.
func fillValue(p *rod.Page, selector, value string) error {
	if selector == "" {
		return fmt.Errorf("fill requires a selector")
	}
	el, err := p.Element(selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", selector, err)
	}
	_, err = el.Eval(`(value) => {
		const setter = Object.getOwnPropertyDescriptor(window.HTMLInputElement.prototype, 'value');
		if (setter && setter.set && this instanceof HTMLInputElement) {
			setter.set.call(this, value);
		} else {
			this.value = value;
		}
		this.dispatchEvent(new Event('input', { bubbles: true }));
		this.dispatchEvent(new Event('change', { bubbles: true }));
	}`, value)
	return err
}

func scrollPage(p *rod.Page, action engine.ActionSpec) error {
	amount := action.Amount
	if amount <= 0 {
		amount = 1
	}
	res, err := p.Eval(`() => window.innerHeight`)
	if err != nil {
		return fmt.Errorf("failed to read viewport height: %w", err)
	}
	delta := float64(res.Value.Int())
	if action.Direction == "up" {
		delta = -delta
	}
	for i := 0; i < amount; i++ {
		if err := p.Mouse.Scroll(0, delta, 3); err != nil {
			return fmt.Errorf("scroll step %d failed: %w", i, err)
		}
		// Pause so lazy-loaded content triggers.
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

// pressKey maps common key names to rod input keys.
func pressKey(p *rod.Page, key string) error {
	named := map[string]input.Key{
		"Enter":     input.Enter,
		"Tab":       input.Tab,
		"Escape":    input.Escape,
		"Backspace": input.Backspace,
		"ArrowDown": input.ArrowDown,
		"ArrowUp":   input.ArrowUp,
		"PageDown":  input.PageDown,
		"PageUp":    input.PageUp,
		"End":       input.End,
		"Home":      input.Home,
	}
	if k, ok := named[key]; ok {
		return p.Keyboard.Press(k)
	}
	if len(key) == 1 {
		return p.Keyboard.Type(input.Key(key[0]))
	}
	return fmt.Errorf("unsupported key %q", key)
}

// encodePNG base64-encodes screenshot bytes for JSON transport.
func encodePNG(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
