// Package workflow orchestrates the three daily pipelines: listing new
// items from request mails, registering shipments for paid transactions,
// and relisting unsold items. All three share one browser session and are
// mutually exclusive.
package workflow

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"relister/internal/browser"
	"relister/internal/carrier"
	"relister/internal/ledger"
	"relister/internal/mail"
	"relister/internal/market"
	"relister/internal/model"
)

// SessionManager is the browser session lifecycle as the workflows see it.
type SessionManager interface {
	CheckConflict(ctx context.Context) (bool, string)
	Acquire(ctx context.Context) (Session, error)
	Release()
}

// Session hands out pages for one live browser.
type Session interface {
	NewPage(ctx context.Context) (browser.Page, error)
}

// WrapManager adapts the concrete browser manager to the SessionManager
// interface.
func WrapManager(m *browser.Manager) SessionManager {
	return managerAdapter{m}
}

type managerAdapter struct {
	m *browser.Manager
}

func (a managerAdapter) CheckConflict(ctx context.Context) (bool, string) {
	return a.m.CheckConflict(ctx)
}

func (a managerAdapter) Acquire(ctx context.Context) (Session, error) {
	return a.m.Acquire(ctx)
}

func (a managerAdapter) Release() {
	a.m.Release()
}

// Summary counts what one run did.
type Summary struct {
	Processed int
	Succeeded int
	Skipped   int
	Failed    int
}

// Runner executes workflows one at a time against the shared browser
// session.
type Runner struct {
	sessions  SessionManager
	inbox     mail.Inbox
	ledger    *ledger.Ledger
	imagesDir string
	events    *Events
	notify    bool

	busy atomic.Bool

	// swappable in tests
	fetchBuyer   func(ctx context.Context, p browser.Page, detailURL string) (model.BuyerInfo, error)
	registerSlip func(ctx context.Context, p browser.Page, item model.ListingItem) (string, error)
}

// NewRunner wires a runner. events may be nil when no consumer exists.
func NewRunner(sessions SessionManager, inbox mail.Inbox, l *ledger.Ledger, imagesDir string, events *Events) *Runner {
	return &Runner{
		sessions:     sessions,
		inbox:        inbox,
		ledger:       l,
		imagesDir:    imagesDir,
		events:       events,
		notify:       true,
		fetchBuyer:   market.FetchBuyer,
		registerSlip: carrier.RegisterSlip,
	}
}

// SetReplyNotification controls whether a completion reply is sent after a
// successful listing.
func (r *Runner) SetReplyNotification(enabled bool) {
	r.notify = enabled
}

// withSession runs fn on a fresh page of a newly acquired session. The
// conflict check happens before acquisition; a foreign process on the
// profile refuses the run outright. The session is always released, even on
// panic, so the next run starts clean.
func (r *Runner) withSession(ctx context.Context, name string, fn func(ctx context.Context, p browser.Page) error) error {
	if !r.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer r.busy.Store(false)

	if conflict, detail := r.sessions.CheckConflict(ctx); conflict {
		return &ConflictError{Detail: detail}
	}

	session, err := r.sessions.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire browser session: %w", err)
	}
	defer r.sessions.Release()

	page, err := session.NewPage(ctx)
	if err != nil {
		return err
	}
	defer page.Close()

	log.Info().Str("workflow", name).Msg("workflow started")
	return fn(ctx, page)
}
