package workflow

import (
	"context"

	"github.com/rs/zerolog/log"

	"relister/internal/browser"
	"relister/internal/market"
)

// RunShipping registers a shipping slip for every paid transaction not yet
// in the ledger. Unlike the other workflows, any item failure aborts the
// whole batch: a registration has a physical consequence, and continuing
// past an unexplained failure risks double or misdirected shipments. Every
// successful registration is in the ledger before the next item starts, so
// an aborted batch never loses completed work.
func (r *Runner) RunShipping(ctx context.Context) (Summary, error) {
	var summary Summary
	err := r.withSession(ctx, "shipping", func(ctx context.Context, p browser.Page) error {
		shipped, err := r.ledger.IDs()
		if err != nil {
			return batchError("load ledger", "", err)
		}

		rows, err := market.PaidItems(ctx, p)
		if err != nil {
			return batchError("discover paid transactions", "", err)
		}
		r.events.emit("shipping", "paid transactions discovered", nil)

		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return batchError("shipping", "", err)
			}
			// Dedup against the ledger before touching the detail page:
			// an already-registered item must cost zero remote requests.
			if shipped[row.Item.ListingID] {
				summary.Skipped++
				log.Debug().Str("listingId", row.Item.ListingID).Msg("already registered, skipping")
				continue
			}
			summary.Processed++
			if err := r.shipOne(ctx, p, row); err != nil {
				summary.Failed++
				r.events.emit("shipping", "registration failed: "+row.Item.Name, err)
				return err
			}
			summary.Succeeded++
		}
		return nil
	})
	return summary, err
}

func (r *Runner) shipOne(ctx context.Context, p browser.Page, row market.SoldRow) error {
	buyer, err := r.fetchBuyer(ctx, p, row.DetailURL)
	if err != nil {
		return batchError("fetch buyer", row.Item.Name, err)
	}
	item := row.Item
	item.Buyer = buyer

	tracking, err := r.registerSlip(ctx, p, item)
	if err != nil {
		return batchError("register slip", item.Name, err)
	}

	// The ledger write is the commit point. It must land before anything
	// else happens, so a crash right here cannot cause a re-registration.
	if _, err := r.ledger.Append(item.ListingID, tracking); err != nil {
		return batchError("record registration", item.Name, err)
	}

	r.events.emit("shipping", "registered: "+item.Name, nil)
	log.Info().Str("item", item.Name).Str("listingId", item.ListingID).Str("tracking", tracking).Msg("shipment registered")
	return nil
}
