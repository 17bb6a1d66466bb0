// Package reconcile diffs a fresh shelf-feed snapshot against an account's
// persisted tracked-book state.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"readz/internal/models"
	"readz/internal/storage"
)

// Shelves reconciles the account's current feed records against its tracked
// set and returns the records that are new, in feed order.
//
// Inside a single transaction it captures the prior tracked set, deletes
// tracked books absent from the feed, and upserts every current record so
// persisted state stays authoritative for the next cycle. Novelty is judged
// against the snapshot captured before any write; judging it after the
// upserts would make every record look already-known.
//
// A delete or upsert failure for one book is logged and skipped — an
// unpersisted book is also left out of the returned list, since it cannot be
// guaranteed both stored and reported. Only beginning or committing the
// transaction fails the whole account.
func Shelves(ctx context.Context, store *storage.Store, account models.Account, records []models.FeedRecord) ([]models.FeedRecord, error) {
	var fresh []models.FeedRecord

	err := store.InTx(ctx, func(tx *storage.Tx) error {
		prior, err := tx.TrackedBooks(ctx, account.ID)
		if err != nil {
			return fmt.Errorf("loading tracked books: %w", err)
		}

		current := make(map[int64]bool, len(records))
		for _, r := range records {
			current[r.BookID] = true
		}

		// Tracked books missing from the feed were removed from the
		// reader's shelves.
		for id := range prior {
			if current[id] {
				continue
			}
			if err := tx.DeleteBook(ctx, account.ID, id); err != nil {
				slog.Error("failed to delete tracked book",
					"account", account.ID, "book", id, "error", err)
			}
		}

		reported := make(map[int64]bool, len(records))
		for _, r := range records {
			if err := tx.UpsertBook(ctx, account.ID, r); err != nil {
				slog.Error("failed to upsert tracked book",
					"account", account.ID, "book", r.BookID, "error", err)
				continue
			}

			_, known := prior[r.BookID]
			if !known && !reported[r.BookID] {
				reported[r.BookID] = true
				fresh = append(fresh, r)
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconciling account %d: %w", account.ID, err)
	}

	return fresh, nil
}
