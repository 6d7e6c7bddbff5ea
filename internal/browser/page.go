package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"relister/internal/retry"
)

const (
	// waitTimeout bounds in-page element operations.
	waitTimeout = 30 * time.Second
	// navigationTimeout bounds full page navigations.
	navigationTimeout = 60 * time.Second
)

// Page is the narrow adapter between workflows and the remote pages. All
// structural assumptions about a site (selectors, XPath) live in the site
// adapters; all CDP mechanics live behind this interface, so selector drift
// and browser plumbing stay decoupled and workflows are testable with
// FakePage.
//
// Selectors starting with "/" or "(" are treated as XPath, everything else
// as CSS. The *First methods try each selector in order and report whether
// any control was found; a missing control is not an error, since field
// presence varies with page template drift.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Exists(ctx context.Context, selector string) (bool, error)
	Text(ctx context.Context, selector string) (string, error)
	FillFirst(ctx context.Context, value string, selectors ...string) (bool, error)
	ClickFirst(ctx context.Context, selectors ...string) (bool, error)
	CheckFirst(ctx context.Context, selectors ...string) (bool, error)
	SelectFirst(ctx context.Context, option string, selectors ...string) (bool, error)
	UploadFirst(ctx context.Context, paths []string, selectors ...string) (bool, error)
	Close()
}

// chromedpPage drives one browser tab.
type chromedpPage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func isXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(")
}

// findExpr returns a JS expression that evaluates to the first matching
// element or null.
func findExpr(selector string) string {
	if isXPath(selector) {
		return fmt.Sprintf(
			`(function(){try{return document.evaluate(%q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue}catch(e){return null}})()`,
			selector)
	}
	return fmt.Sprintf(`document.querySelector(%q)`, selector)
}

func (p *chromedpPage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	return chromedp.Run(tctx, actions...)
}

// Navigate loads url and waits for the document body. Failures are marked
// transient: navigation is read-only and safe to retry.
func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	err := p.run(ctx, navigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return retry.Transient(fmt.Errorf("failed to navigate to %s: %w", url, err))
}

func (p *chromedpPage) Location(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, waitTimeout, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return url, nil
}

func (p *chromedpPage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, waitTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page html: %w", err)
	}
	return html, nil
}

func (p *chromedpPage) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	expr := fmt.Sprintf(`%s !== null`, findExpr(selector))
	if err := p.run(ctx, waitTimeout, chromedp.Evaluate(expr, &found)); err != nil {
		return false, fmt.Errorf("failed to probe %q: %w", selector, err)
	}
	return found, nil
}

func (p *chromedpPage) Text(ctx context.Context, selector string) (string, error) {
	var text string
	expr := fmt.Sprintf(`(function(){var el=%s;return el?el.innerText.trim():""})()`, findExpr(selector))
	if err := p.run(ctx, waitTimeout, chromedp.Evaluate(expr, &text)); err != nil {
		return "", fmt.Errorf("failed to read text of %q: %w", selector, err)
	}
	return text, nil
}

// first returns the first selector that matches an element on the page.
func (p *chromedpPage) first(ctx context.Context, selectors []string) (string, bool, error) {
	for _, sel := range selectors {
		found, err := p.Exists(ctx, sel)
		if err != nil {
			return "", false, err
		}
		if found {
			return sel, true, nil
		}
	}
	return "", false, nil
}

func (p *chromedpPage) FillFirst(ctx context.Context, value string, selectors ...string) (bool, error) {
	sel, found, err := p.first(ctx, selectors)
	if err != nil || !found {
		return false, err
	}
	expr := fmt.Sprintf(
		`(function(){var el=%s;if(!el)return false;el.value=%q;`+
			`el.dispatchEvent(new Event('input',{bubbles:true}));`+
			`el.dispatchEvent(new Event('change',{bubbles:true}));return true})()`,
		findExpr(sel), value)
	var ok bool
	if err := p.run(ctx, waitTimeout, chromedp.Evaluate(expr, &ok)); err != nil {
		return false, fmt.Errorf("failed to fill %q: %w", sel, err)
	}
	return ok, nil
}

func (p *chromedpPage) ClickFirst(ctx context.Context, selectors ...string) (bool, error) {
	sel, found, err := p.first(ctx, selectors)
	if err != nil || !found {
		return false, err
	}
	opt := chromedp.ByQuery
	if isXPath(sel) {
		opt = chromedp.BySearch
	}
	err = p.run(ctx, navigationTimeout,
		chromedp.Click(sel, opt),
		// Give a triggered navigation time to start before waiting on it.
		chromedp.Sleep(500*time.Millisecond),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return true, fmt.Errorf("failed to click %q: %w", sel, err)
	}
	return true, nil
}

// CheckFirst ensures the first matching checkbox or radio control is checked.
func (p *chromedpPage) CheckFirst(ctx context.Context, selectors ...string) (bool, error) {
	sel, found, err := p.first(ctx, selectors)
	if err != nil || !found {
		return false, err
	}
	expr := fmt.Sprintf(
		`(function(){var el=%s;if(!el)return false;if(!el.checked){el.click();}return true})()`,
		findExpr(sel))
	var ok bool
	if err := p.run(ctx, waitTimeout, chromedp.Evaluate(expr, &ok)); err != nil {
		return false, fmt.Errorf("failed to check %q: %w", sel, err)
	}
	return ok, nil
}

// SelectFirst picks the option whose value or visible label equals option.
func (p *chromedpPage) SelectFirst(ctx context.Context, option string, selectors ...string) (bool, error) {
	sel, found, err := p.first(ctx, selectors)
	if err != nil || !found {
		return false, err
	}
	expr := fmt.Sprintf(
		`(function(){var el=%s;if(!el||!el.options)return false;`+
			`for(var i=0;i<el.options.length;i++){`+
			`if(el.options[i].value===%q||el.options[i].textContent.trim()===%q){`+
			`el.selectedIndex=i;el.dispatchEvent(new Event('change',{bubbles:true}));return true}}`+
			`return false})()`,
		findExpr(sel), option, option)
	var ok bool
	if err := p.run(ctx, waitTimeout, chromedp.Evaluate(expr, &ok)); err != nil {
		return false, fmt.Errorf("failed to select option on %q: %w", sel, err)
	}
	return ok, nil
}

func (p *chromedpPage) UploadFirst(ctx context.Context, paths []string, selectors ...string) (bool, error) {
	if len(paths) == 0 {
		return false, nil
	}
	sel, found, err := p.first(ctx, selectors)
	if err != nil || !found {
		return false, err
	}
	opt := chromedp.ByQuery
	if isXPath(sel) {
		opt = chromedp.BySearch
	}
	err = p.run(ctx, waitTimeout,
		chromedp.SetUploadFiles(sel, paths, opt),
		// Leave the page a moment to start processing the upload.
		chromedp.Sleep(2*time.Second),
	)
	if err != nil {
		return true, fmt.Errorf("failed to upload files via %q: %w", sel, err)
	}
	return true, nil
}

func (p *chromedpPage) Close() {
	p.cancel()
}
