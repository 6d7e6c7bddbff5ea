package market

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"relister/internal/browser"
	"relister/internal/model"
)

// SoldRow is one paid transaction row: the derived item plus the link to its
// detail view, where buyer data lives.
type SoldRow struct {
	Item      model.ListingItem
	DetailURL string
}

// UnsoldItems returns the items that ended without a sale. Rows missing a
// name or identifier are silently excluded; an unparseable row is not
// relistable.
func UnsoldItems(ctx context.Context, p browser.Page) ([]model.ListingItem, error) {
	if err := navigate(ctx, p, endedURL); err != nil {
		return nil, err
	}
	if err := checkAuthenticated(ctx, p); err != nil {
		return nil, err
	}

	// Narrow the view to ended-without-bidder before snapshotting.
	if _, err := p.ClickFirst(ctx, `//a[contains(text(),"落札者なし")]`, `input[value="nobidder"]`); err != nil {
		return nil, err
	}

	doc, err := snapshot(ctx, p)
	if err != nil {
		return nil, err
	}

	var items []model.ListingItem
	doc.Find(".auction-item, .Product, tr.item-row").Each(func(_ int, row *goquery.Selection) {
		item, ok := parseRow(row)
		if !ok {
			return
		}
		items = append(items, item)
	})
	return items, nil
}

// PaidItems returns the paid, not-yet-shipped transaction rows. The caller
// filters them against the ledger before fetching any buyer data.
func PaidItems(ctx context.Context, p browser.Page) ([]SoldRow, error) {
	if err := navigate(ctx, p, transactionsURL); err != nil {
		return nil, err
	}
	if err := checkAuthenticated(ctx, p); err != nil {
		return nil, err
	}

	if _, err := p.SelectFirst(ctx, "支払い完了", `select[name="status"]`, `#status-filter`); err != nil {
		return nil, err
	}

	doc, err := snapshot(ctx, p)
	if err != nil {
		return nil, err
	}

	var rows []SoldRow
	doc.Find(".transaction-item, .Product, tr.transaction-row").Each(func(_ int, row *goquery.Selection) {
		item, ok := parseRow(row)
		if !ok {
			return
		}
		detailURL, _ := row.Find(`a:contains("取引ナビ"), a:contains("詳細")`).First().Attr("href")
		rows = append(rows, SoldRow{Item: item, DetailURL: detailURL})
	})
	return rows, nil
}

// FetchBuyer loads a transaction detail view and extracts the recipient
// data. All fields are best-effort; missing ones stay empty and become a
// hard precondition only at registration time.
func FetchBuyer(ctx context.Context, p browser.Page, detailURL string) (model.BuyerInfo, error) {
	var buyer model.BuyerInfo
	if detailURL == "" {
		return buyer, fmt.Errorf("transaction row has no detail link")
	}
	if err := navigate(ctx, p, detailURL); err != nil {
		return buyer, err
	}

	fields := []struct {
		dst       *string
		selectors []string
	}{
		{&buyer.Name, []string{`.buyer-name`, `[data-testid="buyer-name"]`}},
		{&buyer.Address, []string{`.shipping-address`, `[data-testid="shipping-address"]`}},
		{&buyer.Phone, []string{`.buyer-phone`, `[data-testid="buyer-phone"]`}},
		{&buyer.PostalCode, []string{`.postal-code`, `[data-testid="postal-code"]`}},
	}
	for _, f := range fields {
		for _, sel := range f.selectors {
			found, err := p.Exists(ctx, sel)
			if err != nil {
				return buyer, err
			}
			if !found {
				continue
			}
			text, err := p.Text(ctx, sel)
			if err != nil {
				return buyer, err
			}
			*f.dst = strings.TrimSpace(text)
			break
		}
	}
	return buyer, nil
}

// snapshot grabs the rendered page once and parses it. Discovery works off
// this single snapshot: rows appearing after it are not retroactively
// included in the run.
func snapshot(ctx context.Context, p browser.Page) (*goquery.Document, error) {
	html, err := p.HTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page snapshot: %w", err)
	}
	return doc, nil
}

func parseRow(row *goquery.Selection) (model.ListingItem, bool) {
	name := strings.TrimSpace(row.Find(".item-name, .Product__title, a.title").First().Text())

	id := ""
	if href, ok := row.Find(`a[href*="/auction/"], a[href*="aID="]`).First().Attr("href"); ok {
		if m := listingIDPattern.FindStringSubmatch(href); m != nil {
			id = m[1]
		} else if m := listingAIDPattern.FindStringSubmatch(href); m != nil {
			id = m[1]
		}
	}

	if name == "" || id == "" {
		log.Debug().Str("name", name).Msg("skipping unparseable discovery row")
		return model.ListingItem{}, false
	}

	price := parsePrice(row.Find(".item-price, .Product__price").First().Text())

	item := model.ListingItem{
		Name:         name,
		Price:        price,
		DurationDays: 7,
	}
	return item.WithListingID(id), true
}
