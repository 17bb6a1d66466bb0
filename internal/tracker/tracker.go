// Package tracker orchestrates update passes: for each registered account it
// fetches the shelf feed, reconciles it against persisted state, composes
// notification units for whatever is new, and hands them to the delivery
// collaborator. One account's failure never stops the others.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"readz/internal/models"
	"readz/internal/notify"
	"readz/internal/reconcile"
	"readz/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// fetchConcurrencyLimit caps how many accounts are processed at once. Feed
// fetches for different accounts may overlap; each account's own
// fetch→reconcile→compose→deliver sequence stays strictly ordered inside
// its goroutine.
const fetchConcurrencyLimit = 10

// ErrPassRunning is returned when a pass is requested while another one is
// still in flight. Overlapping passes would race on per-account state.
var ErrPassRunning = errors.New("an update pass is already running")

// FeedSource fetches the current shelf records for one reader.
type FeedSource interface {
	FetchShelves(ctx context.Context, goodreadsID string) ([]models.FeedRecord, error)
}

// Notifier delivers one notification unit to a destination channel.
type Notifier interface {
	Send(ctx context.Context, channelID int64, displayName string, unit notify.Unit) error
}

// Summary reports the outcome of one pass.
type Summary struct {
	PassID     string `json:"pass_id"`
	Accounts   int    `json:"accounts"`
	NewEntries int    `json:"new_entries"`
	UnitsSent  int    `json:"units_sent"`
	Failures   int    `json:"failures"`
}

// Tracker runs update passes over the registered accounts.
type Tracker struct {
	store    *storage.Store
	source   FeedSource
	notifier Notifier
	composer *notify.Composer

	running atomic.Bool
}

// New creates a Tracker.
func New(store *storage.Store, source FeedSource, notifier Notifier, composer *notify.Composer) *Tracker {
	return &Tracker{
		store:    store,
		source:   source,
		notifier: notifier,
		composer: composer,
	}
}

// RunPass processes all registered accounts, or just one when goodreadsID is
// non-empty. It returns ErrPassRunning if another pass is still in flight.
// Per-account failures are logged and counted in the summary; the pass
// itself only fails when the account list cannot be loaded.
func (t *Tracker) RunPass(ctx context.Context, goodreadsID string) (Summary, error) {
	if !t.running.CompareAndSwap(false, true) {
		return Summary{}, ErrPassRunning
	}
	defer t.running.Store(false)

	summary := Summary{PassID: uuid.NewString()}

	var accounts []models.Account
	if goodreadsID != "" {
		account, err := t.store.GetAccountByGoodreadsID(ctx, goodreadsID)
		if err != nil {
			return summary, fmt.Errorf("looking up account %q: %w", goodreadsID, err)
		}
		accounts = []models.Account{account}
	} else {
		var err error
		accounts, err = t.store.GetAllAccounts(ctx)
		if err != nil {
			return summary, fmt.Errorf("loading accounts: %w", err)
		}
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrencyLimit)

	for _, account := range accounts {
		g.Go(func() error {
			fresh, sent, err := t.processAccount(ctx, account)

			mu.Lock()
			defer mu.Unlock()
			summary.Accounts++
			summary.NewEntries += fresh
			summary.UnitsSent += sent
			if err != nil {
				summary.Failures++
				slog.Error("account update failed",
					"pass_id", summary.PassID,
					"account", account.GoodreadsID,
					"error", err,
				)
			}
			return nil // isolate account failures, never fail the pass
		})
	}

	// The per-account goroutines always return nil.
	_ = g.Wait()

	slog.Info("update pass complete",
		"pass_id", summary.PassID,
		"accounts", summary.Accounts,
		"new_entries", summary.NewEntries,
		"units_sent", summary.UnitsSent,
		"failures", summary.Failures,
	)

	return summary, nil
}

// processAccount runs the fetch→reconcile→compose→deliver pipeline for one
// account. It returns how many new entries were found and how many units
// were delivered.
func (t *Tracker) processAccount(ctx context.Context, account models.Account) (fresh, sent int, err error) {
	records, err := t.source.FetchShelves(ctx, account.GoodreadsID)
	if err != nil {
		return 0, 0, fmt.Errorf("fetching shelf feed: %w", err)
	}

	newRecords, err := reconcile.Shelves(ctx, t.store, account, records)
	if err != nil {
		return 0, 0, err
	}

	units := t.composer.Compose(account.DisplayName(), newRecords)
	if len(units) == 0 {
		return len(newRecords), 0, nil
	}

	group, err := t.store.GetGroup(ctx, account.GroupID)
	if err != nil {
		return len(newRecords), 0, fmt.Errorf("loading group %d: %w", account.GroupID, err)
	}
	if group.ChannelID == 0 {
		slog.Warn("no update channel configured, dropping notifications",
			"group", group.Name,
			"account", account.GoodreadsID,
			"units", len(units),
		)
		return len(newRecords), 0, nil
	}

	for _, unit := range units {
		if err := t.notifier.Send(ctx, group.ChannelID, account.DisplayName(), unit); err != nil {
			// Delivery is never retried here; the next pass will not
			// re-report these books, so the notification is simply lost.
			slog.Error("failed to deliver notification",
				"account", account.GoodreadsID,
				"channel", group.ChannelID,
				"kind", unit.Kind,
				"error", err,
			)
			continue
		}
		sent++
	}

	return len(newRecords), sent, nil
}
