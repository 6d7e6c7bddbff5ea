package market

import (
	"context"
	"fmt"
	"strconv"

	"relister/internal/browser"
	"relister/internal/model"
)

// SubmitListing drives the new-item submission sequence: navigate, check
// authentication, fill the form, upload images, set options, confirm,
// submit, extract the assigned identifier. The returned identifier is ""
// when the site silently rejected the listing.
//
// Name and price are mandatory; a missing control for either fails the item
// with MissingFieldError. Every other field is filled only if its control is
// found, tolerating template drift.
func SubmitListing(ctx context.Context, p browser.Page, item model.ListingItem) (string, error) {
	if err := item.Validate(); err != nil {
		return "", err
	}
	if err := navigate(ctx, p, sellURL); err != nil {
		return "", err
	}
	if err := checkAuthenticated(ctx, p); err != nil {
		return "", err
	}

	found, err := p.FillFirst(ctx, item.Name, `input[name="title"]`, `#title`)
	if err != nil {
		return "", err
	}
	if !found {
		return "", &MissingFieldError{Field: "title"}
	}

	if item.Description != "" {
		if _, err := p.FillFirst(ctx, item.Description, `textarea[name="description"]`, `#description`); err != nil {
			return "", err
		}
	}
	if item.Category != "" {
		if err := selectCategory(ctx, p, item.Category); err != nil {
			return "", err
		}
	}
	if err := selectCondition(ctx, p, item.Condition); err != nil {
		return "", err
	}

	found, err = p.FillFirst(ctx, strconv.Itoa(item.Price), `input[name="startprice"]`, `#startprice`)
	if err != nil {
		return "", err
	}
	if !found {
		return "", &MissingFieldError{Field: "startprice"}
	}

	if _, err := p.SelectFirst(ctx, strconv.Itoa(item.DurationDays), `select[name="duration"]`, `#duration`); err != nil {
		return "", err
	}
	if err := selectShipping(ctx, p, item.Carrier); err != nil {
		return "", err
	}
	if len(item.ImagePaths) > 0 {
		if _, err := p.UploadFirst(ctx, item.ImagePaths, `input[type="file"][accept*="image"]`); err != nil {
			return "", err
		}
	}
	if err := setAuctionOptions(ctx, p); err != nil {
		return "", err
	}

	if _, err := p.ClickFirst(ctx, `//button[contains(text(),"確認")]`, `//input[@type="submit"][contains(@value,"確認")]`); err != nil {
		return "", err
	}
	if _, err := p.ClickFirst(ctx, `//button[contains(text(),"出品")]`, `//input[@type="submit"][contains(@value,"出品")]`); err != nil {
		return "", err
	}

	return extractListingID(ctx, p)
}

func selectCategory(ctx context.Context, p browser.Page, category string) error {
	found, err := p.ClickFirst(ctx, `//button[contains(text(),"カテゴリ")]`, `//a[contains(text(),"カテゴリ選択")]`)
	if err != nil || !found {
		return err
	}
	found, err = p.FillFirst(ctx, category, `input[placeholder*="カテゴリ"]`)
	if err != nil || !found {
		return err
	}
	// Pick the matching suggestion if one appears.
	_, err = p.ClickFirst(ctx, fmt.Sprintf(`//*[contains(@class,"category-item")][contains(text(),%q)]`, category))
	return err
}

func selectCondition(ctx context.Context, p browser.Page, condition model.Condition) error {
	found, err := p.SelectFirst(ctx, condition.Label(), `select[name="itemcondition"]`, `#itemcondition`)
	if err != nil || found {
		return err
	}
	// Some templates render conditions as radio buttons instead.
	_, err = p.CheckFirst(ctx, fmt.Sprintf(`input[type="radio"][value*=%q]`, condition.Label()))
	return err
}

func selectShipping(ctx context.Context, p browser.Page, carrier model.Carrier) error {
	if _, err := p.CheckFirst(ctx, `input[type="radio"][name="shipping_payer"][value="seller"]`); err != nil {
		return err
	}
	_, err := p.CheckFirst(ctx, fmt.Sprintf(`input[type="checkbox"][name*="shipping"][value*=%q]`, carrier.Label()))
	return err
}

// setAuctionOptions enables auto-extension and early-end when the controls
// exist.
func setAuctionOptions(ctx context.Context, p browser.Page) error {
	if _, err := p.CheckFirst(ctx, `input[name="autoextend"][type="checkbox"]`); err != nil {
		return err
	}
	_, err := p.CheckFirst(ctx, `input[name="earlyend"][type="checkbox"]`)
	return err
}
