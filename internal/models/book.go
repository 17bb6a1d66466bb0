package models

import "time"

// Shelf is the feed's classification of a book.
type Shelf string

// The three shelves we track. Feed entries on any other shelf are either
// coerced (a review implies a finished book) or dropped by the parser.
const (
	ShelfToRead           Shelf = "to-read"
	ShelfCurrentlyReading Shelf = "currently-reading"
	ShelfRead             Shelf = "read"
)

// KnownShelf reports whether s is one of the tracked shelves.
func KnownShelf(s Shelf) bool {
	switch s {
	case ShelfToRead, ShelfCurrentlyReading, ShelfRead:
		return true
	}
	return false
}

// Active reports whether the shelf represents reading activity (currently
// reading or finished) as opposed to a wishlist entry.
func (s Shelf) Active() bool {
	return s == ShelfCurrentlyReading || s == ShelfRead
}

// FeedRecord is one validated entry from an account's shelf feed. Records
// live for a single reconciliation cycle and are never persisted directly.
type FeedRecord struct {
	BookID        int64     `json:"book_id"`
	Title         string    `json:"title"`
	Author        string    `json:"author,omitempty"`
	CoverURL      string    `json:"cover_url,omitempty"`
	DetailURL     string    `json:"detail_url"`
	Shelf         Shelf     `json:"shelf"`
	Rating        *int      `json:"rating,omitempty"`
	AverageRating *float64  `json:"average_rating,omitempty"`
	Review        string    `json:"review,omitempty"`
	Published     time.Time `json:"published"`
}

// TrackedBook is the persisted last-known state of one book on one
// account's shelves. The set of an account's tracked books is the "before"
// snapshot for the next reconciliation.
type TrackedBook struct {
	AccountID int64     `json:"account_id"`
	BookID    int64     `json:"book_id"`
	Shelf     Shelf     `json:"shelf"`
	Rating    *int      `json:"rating,omitempty"`
	Review    string    `json:"review,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
