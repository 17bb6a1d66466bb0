package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"readz/internal/models"
)

// Tx scopes tracked-book operations to a single database transaction.
// Reconciliation uses one Tx per account per pass so the "before" snapshot,
// deletes, and upserts form one atomic unit.
type Tx struct {
	tx *sql.Tx
}

// InTx runs fn inside a transaction. The transaction is committed if fn
// returns nil and rolled back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// TrackedBooks returns the account's full tracked-book set keyed by book ID.
func (t *Tx) TrackedBooks(ctx context.Context, accountID int64) (map[int64]models.TrackedBook, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT account_id, book_id, shelf, rating, review, updated_at
		 FROM tracked_books WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, fmt.Errorf("querying tracked books for account %d: %w", accountID, err)
	}
	defer rows.Close()

	books := make(map[int64]models.TrackedBook)
	for rows.Next() {
		var (
			book      models.TrackedBook
			rating    sql.NullInt64
			updatedAt string
		)
		if err := rows.Scan(
			&book.AccountID, &book.BookID, &book.Shelf, &rating, &book.Review, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning tracked book row: %w", err)
		}
		if rating.Valid {
			r := int(rating.Int64)
			book.Rating = &r
		}
		book.UpdatedAt = parseTime(updatedAt)
		books[book.BookID] = book
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tracked book rows: %w", err)
	}

	return books, nil
}

// UpsertBook writes the current feed state of one book, inserting it if
// absent and refreshing shelf, rating, review, and timestamp otherwise.
func (t *Tx) UpsertBook(ctx context.Context, accountID int64, record models.FeedRecord) error {
	var rating sql.NullInt64
	if record.Rating != nil {
		rating = sql.NullInt64{Int64: int64(*record.Rating), Valid: true}
	}

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO tracked_books (account_id, book_id, shelf, rating, review, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(account_id, book_id) DO UPDATE SET
		   shelf = excluded.shelf, rating = excluded.rating,
		   review = excluded.review, updated_at = excluded.updated_at`,
		accountID, record.BookID, string(record.Shelf), rating, record.Review,
		time.Now().UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("upserting book %d for account %d: %w", record.BookID, accountID, err)
	}

	return nil
}

// DeleteBook removes one tracked book. Deleting a book that is not tracked
// is a no-op: the book may already be gone from a previous pass.
func (t *Tx) DeleteBook(ctx context.Context, accountID, bookID int64) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM tracked_books WHERE account_id = ? AND book_id = ?`, accountID, bookID)
	if err != nil {
		return fmt.Errorf("deleting book %d for account %d: %w", bookID, accountID, err)
	}
	return nil
}

// GetTrackedBooks returns the account's tracked books outside any
// transaction, ordered by book ID. Reconciliation itself always reads
// through a Tx; this is the read-only view for the API and tests.
func (s *Store) GetTrackedBooks(ctx context.Context, accountID int64) ([]models.TrackedBook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account_id, book_id, shelf, rating, review, updated_at
		 FROM tracked_books WHERE account_id = ? ORDER BY book_id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("querying tracked books for account %d: %w", accountID, err)
	}
	defer rows.Close()

	var books []models.TrackedBook
	for rows.Next() {
		var (
			book      models.TrackedBook
			rating    sql.NullInt64
			updatedAt string
		)
		if err := rows.Scan(
			&book.AccountID, &book.BookID, &book.Shelf, &rating, &book.Review, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning tracked book row: %w", err)
		}
		if rating.Valid {
			r := int(rating.Int64)
			book.Rating = &r
		}
		book.UpdatedAt = parseTime(updatedAt)
		books = append(books, book)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tracked book rows: %w", err)
	}

	return books, nil
}
