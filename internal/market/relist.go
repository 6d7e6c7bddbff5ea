package market

import (
	"context"
	"fmt"

	"relister/internal/browser"
	"relister/internal/model"
)

// Relist resubmits an ended item addressed by its existing identifier and
// returns the newly assigned identifier, which replaces the old one. An item
// without a prior identifier is rejected before any remote interaction. A
// returned "" means the site did not assign a new identifier and the relist
// is treated as failed.
func Relist(ctx context.Context, p browser.Page, item model.ListingItem) (string, error) {
	if item.ListingID == "" {
		return "", ErrNoListingID
	}

	if err := navigate(ctx, p, fmt.Sprintf(relistURLFormat, item.ListingID)); err != nil {
		return "", err
	}
	if err := checkAuthenticated(ctx, p); err != nil {
		return "", err
	}

	if _, err := p.ClickFirst(ctx, `//button[contains(text(),"確認")]`, `//input[@type="submit"][contains(@value,"確認")]`); err != nil {
		return "", err
	}
	if _, err := p.ClickFirst(ctx, `//button[contains(text(),"再出品")]`, `//input[@type="submit"][contains(@value,"出品")]`); err != nil {
		return "", err
	}

	return extractListingID(ctx, p)
}
