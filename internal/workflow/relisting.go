package workflow

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"relister/internal/browser"
	"relister/internal/market"
)

// RunRelisting discovers items that ended without a sale and relists each
// one, rotating its identifier. Per-item failures skip and continue.
func (r *Runner) RunRelisting(ctx context.Context) (Summary, error) {
	var summary Summary
	err := r.withSession(ctx, "relisting", func(ctx context.Context, p browser.Page) error {
		items, err := market.UnsoldItems(ctx, p)
		if err != nil {
			// Discovery failure leaves nothing to iterate; always fatal.
			return batchError("discover unsold items", "", err)
		}
		r.events.emit("relisting", "unsold items discovered", nil)

		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return batchError("relisting", "", err)
			}
			summary.Processed++
			newID, err := market.Relist(ctx, p, item)
			if err != nil {
				if errors.Is(err, market.ErrNotAuthenticated) {
					return batchError("relist", item.Name, err)
				}
				summary.Failed++
				r.events.emit("relisting", "relist failed: "+item.Name, err)
				log.Warn().Err(err).Str("item", item.Name).Msg("relist failed")
				continue
			}
			if newID == "" {
				summary.Failed++
				log.Warn().Str("item", item.Name).Msg("relist rejected without an identifier")
				continue
			}
			summary.Succeeded++
			r.events.emit("relisting", "relisted: "+item.Name, nil)
			log.Info().Str("item", item.Name).Str("oldId", item.ListingID).Str("newId", newID).Msg("item relisted")
		}
		return nil
	})
	return summary, err
}
