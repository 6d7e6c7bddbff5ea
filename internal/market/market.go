// Package market drives the auction site: new-item submission, discovery of
// ended and paid transactions, and relisting. The site's page structure is
// not a stable contract; every selector here is a fragility surface, so
// non-critical fields are filled best-effort and only name and price are
// allowed to fail an item.
package market

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"relister/internal/browser"
	"relister/internal/retry"
)

const (
	sellURL         = "https://auctions.yahoo.co.jp/sell/jp/show/submit"
	endedURL        = "https://auctions.yahoo.co.jp/closeduser/jp/show/ended"
	transactionsURL = "https://contact.auctions.yahoo.co.jp/seller/top"
	relistURLFormat = "https://auctions.yahoo.co.jp/sell/jp/show/relist?aID=%s"
)

// loginLinkSelector appears only when no authenticated session cookie is
// present.
const loginLinkSelector = `//a[contains(text(),"ログイン")]`

var (
	// ErrNotAuthenticated means no login marker was found on the page.
	// Never retried; fatal to the current item or run.
	ErrNotAuthenticated = errors.New("not logged in to the auction site")

	// ErrNoListingID rejects a relist attempt for an item that was never
	// assigned an identifier.
	ErrNoListingID = errors.New("item has no listing identifier")
)

// MissingFieldError reports a mandatory form control that could not be
// found. Optional controls are skipped silently; this error only fires for
// fields whose absence makes the submission meaningless.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("required form field not found: %s", e.Field)
}

var (
	listingIDPattern     = regexp.MustCompile(`/auction/([a-zA-Z0-9]+)`)
	listingAIDPattern    = regexp.MustCompile(`aID=([a-zA-Z0-9]+)`)
	listingIDTextPattern = regexp.MustCompile(`オークションID[：:]\s*([a-zA-Z0-9]+)`)
	pricePattern         = regexp.MustCompile(`[\d,]+`)
)

// navigate loads url with bounded retries; only transport errors retry.
func navigate(ctx context.Context, p browser.Page, url string) error {
	return retry.Do(ctx, func() error {
		return p.Navigate(ctx, url)
	}, retry.Options{})
}

// checkAuthenticated fails with ErrNotAuthenticated when the page shows a
// login link instead of an authenticated header.
func checkAuthenticated(ctx context.Context, p browser.Page) error {
	found, err := p.Exists(ctx, loginLinkSelector)
	if err != nil {
		return fmt.Errorf("failed to check login state: %w", err)
	}
	if found {
		return ErrNotAuthenticated
	}
	return nil
}

// CheckLogin loads the submission page and reports whether the profile
// carries an authenticated session.
func CheckLogin(ctx context.Context, p browser.Page) (bool, error) {
	if err := navigate(ctx, p, sellURL); err != nil {
		return false, err
	}
	err := checkAuthenticated(ctx, p)
	if errors.Is(err, ErrNotAuthenticated) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// extractListingID pulls the assigned identifier from the post-submission
// URL, falling back to the page text. Returns "" when the site gave no
// identifier, which callers treat as a silent rejection, not an error.
func extractListingID(ctx context.Context, p browser.Page) (string, error) {
	url, err := p.Location(ctx)
	if err != nil {
		return "", err
	}
	if m := listingIDPattern.FindStringSubmatch(url); m != nil {
		return m[1], nil
	}

	html, err := p.HTML(ctx)
	if err != nil {
		return "", err
	}
	if m := listingIDTextPattern.FindStringSubmatch(html); m != nil {
		return m[1], nil
	}
	return "", nil
}

// parsePrice extracts the first digit group from a price cell like
// "1,200円". Returns 0 when no digits are present.
func parsePrice(text string) int {
	m := pricePattern.FindString(text)
	if m == "" {
		return 0
	}
	price := 0
	for _, r := range m {
		if r >= '0' && r <= '9' {
			price = price*10 + int(r-'0')
		}
	}
	return price
}
