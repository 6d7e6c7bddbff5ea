// Package mail defines the listing-request mailbox abstraction and the
// tagged-body request format.
package mail

import "context"

// Message is one listing-request mail as fetched from the mailbox.
type Message struct {
	ID      string
	Subject string
	Body    string
}

// Inbox is the mailbox the listing workflow consumes requests from.
type Inbox interface {
	// ListRequests returns unprocessed listing-request mails, oldest first.
	ListRequests(ctx context.Context) ([]Message, error)
	// MarkProcessed labels a mail so it is never picked up again. Called
	// for successes and for permanently invalid requests alike.
	MarkProcessed(ctx context.Context, messageID string) error
	// DownloadAttachments saves the mail's image attachments into dir and
	// returns their paths in attachment order.
	DownloadAttachments(ctx context.Context, messageID, dir string) ([]string, error)
	// SendCompletionReply answers the request mail on its thread with the
	// listing result.
	SendCompletionReply(ctx context.Context, messageID, itemName, listingID string) error
}
