// Package carrier registers shipping slips with the carrier's web portal.
// Registration is the one action in the system with a physical-world
// consequence, so every failure here is surfaced as-is: the shipping
// workflow aborts its batch rather than skipping.
package carrier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"relister/internal/browser"
	"relister/internal/model"
	"relister/internal/retry"
)

const (
	loginURL = "https://www.e-service.sagawa-exp.co.jp/portal/do/login/show"

	// Business-login form controls on the portal's tabbed login page.
	businessTabSelector = `label.p-tabs__label--02`
	userIDSelector      = `#user2`
	passwordSelector    = `#pass2`
	loginButtonSelector = `#hojin-login-button`

	// defaultProductLabel is the generic goods description the slip form
	// expects instead of the raw auction title.
	defaultProductLabel = "衣類"
)

// Portal credential environment variables. Credentials are read from the
// process environment at call time, never from settings or items: this is
// the highest-sensitivity secret in the system and stays out of anything
// disk-persisted.
const (
	UserIDEnv   = "SAGAWA_USER_ID"
	PasswordEnv = "SAGAWA_PASSWORD"
)

// ErrMissingCredentials means the portal credentials are absent from the
// environment. A configuration error, reported immediately.
var ErrMissingCredentials = errors.New("carrier portal credentials are not set")

var errorBannerSelectors = []string{`.error`, `.alert-danger`, `[class*="error"]`}

var trackingNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`送り状番号[：:]\s*(\d{10,12})`),
	regexp.MustCompile(`追跡番号[：:]\s*(\d{10,12})`),
}

// PreconditionError reports registration input that is missing before any
// remote call is attempted.
type PreconditionError struct {
	Item   string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot register shipment for %q: %s", e.Item, e.Reason)
}

// RejectionError carries the inline error banner the portal showed for a
// submission. A hard failure for the item.
type RejectionError struct {
	Banner string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("portal rejected the registration: %s", e.Banner)
}

// Credentials returns the portal login from the environment.
func Credentials() (string, string, error) {
	userID := os.Getenv(UserIDEnv)
	password := os.Getenv(PasswordEnv)
	if userID == "" || password == "" {
		return "", "", fmt.Errorf("%w: set %s and %s", ErrMissingCredentials, UserIDEnv, PasswordEnv)
	}
	return userID, password, nil
}

// RegisterSlip logs into the carrier portal and registers one shipping slip
// for the item, returning the tracking number when the confirmation page
// exposes one. The caller must record the registration in the ledger before
// doing anything else.
//
// A non-empty listing identifier, buyer name and buyer address are hard
// preconditions; their absence fails before any remote call.
func RegisterSlip(ctx context.Context, p browser.Page, item model.ListingItem) (string, error) {
	if item.ListingID == "" {
		return "", &PreconditionError{Item: item.Name, Reason: "listing identifier is missing"}
	}
	if item.Buyer.Name == "" {
		return "", &PreconditionError{Item: item.Name, Reason: "buyer name was not fetched"}
	}
	if item.Buyer.Address == "" {
		return "", &PreconditionError{Item: item.Name, Reason: "buyer address was not fetched"}
	}

	userID, password, err := Credentials()
	if err != nil {
		return "", err
	}

	if err := retry.Do(ctx, func() error {
		return p.Navigate(ctx, loginURL)
	}, retry.Options{}); err != nil {
		return "", err
	}

	if err := login(ctx, p, userID, password); err != nil {
		return "", err
	}
	if err := dismissInterstitials(ctx, p); err != nil {
		return "", err
	}
	if err := openSlipForm(ctx, p); err != nil {
		return "", err
	}
	if err := fillRecipient(ctx, p, item); err != nil {
		return "", err
	}

	// The portal can surface a validation banner either before or after
	// the final click, depending on server-side timing. Check both.
	if err := checkErrorBanner(ctx, p); err != nil {
		return "", err
	}
	if _, err := p.ClickFirst(ctx, `//button[contains(text(),"登録")]`, `//input[@type="submit"][contains(@value,"登録")]`); err != nil {
		return "", err
	}
	tracking, err := extractTrackingNumber(ctx, p)
	if err != nil {
		return "", err
	}
	if err := checkErrorBanner(ctx, p); err != nil {
		return "", err
	}
	return tracking, nil
}

// login performs the business-tab login unless the portal already shows an
// authenticated page.
func login(ctx context.Context, p browser.Page, userID, password string) error {
	url, err := p.Location(ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(url, "login") {
		// Profile already carries an authenticated portal session.
		return nil
	}

	// The business tab may not render on every portal variant.
	if _, err := p.ClickFirst(ctx, businessTabSelector); err != nil {
		return err
	}

	found, err := p.FillFirst(ctx, userID, userIDSelector)
	if err != nil {
		return err
	}
	if !found {
		return errors.New("portal login form: user id field not found")
	}
	found, err = p.FillFirst(ctx, password, passwordSelector)
	if err != nil {
		return err
	}
	if !found {
		return errors.New("portal login form: password field not found")
	}
	found, err = p.ClickFirst(ctx, loginButtonSelector)
	if err != nil {
		return err
	}
	if !found {
		return errors.New("portal login form: login button not found")
	}

	if err := checkErrorBanner(ctx, p); err != nil {
		return fmt.Errorf("portal login failed: %w", err)
	}
	return nil
}

// dismissInterstitials handles first-visit terms acceptance and notice
// popups, best-effort.
func dismissInterstitials(ctx context.Context, p browser.Page) error {
	if _, err := p.ClickFirst(ctx,
		`//button[contains(text(),"同意")]`,
		`//button[contains(text(),"承諾")]`,
		`//button[contains(text(),"OK")]`,
	); err != nil {
		return err
	}
	_, err := p.ClickFirst(ctx,
		`.popup-close`,
		`//button[contains(text(),"閉じる")]`,
		`.modal-close`,
		`[aria-label="閉じる"]`,
	)
	return err
}

// openSlipForm navigates from the portal dashboard to the slip-creation
// form. The slip menu itself is mandatory; the creation submenu only exists
// on some dashboard layouts.
func openSlipForm(ctx context.Context, p browser.Page) error {
	found, err := p.ClickFirst(ctx,
		`//a[contains(text(),"e飛伝")]`,
		`//a[contains(text(),"送り状")]`,
		`a[href*="ehiden"]`,
		`a[href*="e-hiden"]`,
	)
	if err != nil {
		return err
	}
	if !found {
		return errors.New("slip menu not found on portal dashboard")
	}
	_, err = p.ClickFirst(ctx,
		`//a[contains(text(),"送り状発行")]`,
		`//a[contains(text(),"新規作成")]`,
	)
	return err
}

func fillRecipient(ctx context.Context, p browser.Page, item model.ListingItem) error {
	if item.Buyer.PostalCode != "" {
		code := NormalizeContactNumber(item.Buyer.PostalCode)
		if _, err := p.FillFirst(ctx, code, `input[name="postal_code"]`, `input[name="zip"]`, `#postal-code`); err != nil {
			return err
		}
	}
	if _, err := p.FillFirst(ctx, item.Buyer.Address, `input[name="address"]`, `textarea[name="address"]`, `#address`); err != nil {
		return err
	}
	if _, err := p.FillFirst(ctx, item.Buyer.Name, `input[name="name"]`, `input[name="recipient_name"]`, `#name`); err != nil {
		return err
	}
	if item.Buyer.Phone != "" {
		phone := NormalizeContactNumber(item.Buyer.Phone)
		if _, err := p.FillFirst(ctx, phone, `input[name="phone"]`, `input[name="tel"]`, `#phone`); err != nil {
			return err
		}
	}
	if _, err := p.FillFirst(ctx, defaultProductLabel, `input[name="product_name"]`, `input[name="item"]`, `#product-name`); err != nil {
		return err
	}
	_, err := p.ClickFirst(ctx, `//button[contains(text(),"確認")]`, `//input[@type="submit"][contains(@value,"確認")]`)
	return err
}

func checkErrorBanner(ctx context.Context, p browser.Page) error {
	for _, sel := range errorBannerSelectors {
		found, err := p.Exists(ctx, sel)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		banner, err := p.Text(ctx, sel)
		if err != nil {
			return err
		}
		return &RejectionError{Banner: banner}
	}
	return nil
}

func extractTrackingNumber(ctx context.Context, p browser.Page) (string, error) {
	for _, sel := range []string{`.tracking-number`, `[data-testid="tracking-number"]`, `.slip-number`} {
		found, err := p.Exists(ctx, sel)
		if err != nil {
			return "", err
		}
		if found {
			text, err := p.Text(ctx, sel)
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(text), nil
		}
	}

	html, err := p.HTML(ctx)
	if err != nil {
		return "", err
	}
	for _, pattern := range trackingNumberPatterns {
		if m := pattern.FindStringSubmatch(html); m != nil {
			return m[1], nil
		}
	}
	// The tracking number is optional; registration can succeed without it.
	return "", nil
}
