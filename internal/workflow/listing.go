package workflow

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"relister/internal/browser"
	"relister/internal/files"
	"relister/internal/mail"
	"relister/internal/market"
)

// RunListing drains the request mailbox and submits one auction per valid
// request. Per-item failures skip the item and continue; only a lost login
// session stops the batch, since every later item would fail the same way.
func (r *Runner) RunListing(ctx context.Context) (Summary, error) {
	var summary Summary
	err := r.withSession(ctx, "listing", func(ctx context.Context, p browser.Page) error {
		requests, err := r.inbox.ListRequests(ctx)
		if err != nil {
			return batchError("list requests", "", err)
		}
		r.events.emit("listing", "requests fetched", nil)

		for _, msg := range requests {
			// Cancellation takes effect between items, never mid-item.
			if err := ctx.Err(); err != nil {
				return batchError("listing", "", err)
			}
			summary.Processed++
			if err := r.listOne(ctx, p, msg); err != nil {
				if IsBatchFatal(err) {
					return err
				}
				summary.Failed++
				r.events.emit("listing", "request failed: "+msg.Subject, err)
				log.Warn().Err(err).Str("subject", msg.Subject).Msg("listing request failed")
				continue
			}
			summary.Succeeded++
		}
		return nil
	})
	return summary, err
}

// listOne handles a single request mail end to end. A permanently invalid
// request is marked processed so it never comes back; a transiently failed
// one is left unprocessed for the next run.
func (r *Runner) listOne(ctx context.Context, p browser.Page, msg mail.Message) error {
	item := mail.ParseListingRequest(msg)
	if err := mail.ValidateListingRequest(msg, item); err != nil {
		log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping invalid listing request")
		if markErr := r.inbox.MarkProcessed(ctx, msg.ID); markErr != nil {
			return itemError("mark invalid request processed", item.Name, markErr)
		}
		return itemError("validate request", item.Name, err)
	}

	runDir, err := files.NewRunDir(r.imagesDir)
	if err != nil {
		return itemError("stage images", item.Name, err)
	}
	defer files.RemoveRunDir(runDir)

	item.ImagePaths, err = r.inbox.DownloadAttachments(ctx, msg.ID, runDir)
	if err != nil {
		return itemError("download attachments", item.Name, err)
	}

	listingID, err := market.SubmitListing(ctx, p, item)
	if err != nil {
		if errors.Is(err, market.ErrNotAuthenticated) {
			return batchError("submit listing", item.Name, err)
		}
		return itemError("submit listing", item.Name, err)
	}
	if listingID == "" {
		return itemError("submit listing", item.Name, errors.New("submission was rejected without an identifier"))
	}
	listed := item.WithListingID(listingID)

	if r.notify {
		// Reply failure is not worth failing a successfully listed item over.
		if err := r.inbox.SendCompletionReply(ctx, msg.ID, listed.Name, listed.ListingID); err != nil {
			log.Warn().Err(err).Str("item", listed.Name).Msg("completion reply failed")
		}
	}
	if err := r.inbox.MarkProcessed(ctx, msg.ID); err != nil {
		return itemError("mark request processed", listed.Name, err)
	}

	r.events.emit("listing", "listed: "+listed.Name, nil)
	log.Info().Str("item", listed.Name).Str("listingId", listed.ListingID).Msg("item listed")
	return nil
}
