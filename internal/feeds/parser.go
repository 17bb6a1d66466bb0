// Package feeds fetches and parses per-account shelf feeds.
package feeds

import (
	"errors"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"readz/internal/models"

	"github.com/mmcdole/gofeed"
)

// bookURLStub is the prefix of a book's canonical detail page. The detail
// URL is always derived from the book ID rather than trusting the feed link.
const bookURLStub = "https://www.goodreads.com/book/show/"

// pubDateFormat is the fixed timestamp format shelf feeds use, e.g.
// "Mon, 02 Jan 2006 15:04:05 -0700".
const pubDateFormat = time.RFC1123Z

var htmlTagPattern = regexp.MustCompile("<[^>]*>")

// errIgnoredShelf marks entries on shelves we do not track. Unlike malformed
// entries, these are dropped without logging.
var errIgnoredShelf = errors.New("ignored shelf")

// ParseFeed converts a raw shelf feed into validated records, in feed order.
// Entries on untracked shelves are dropped silently; structurally malformed
// entries are logged and skipped. One bad entry never fails the batch.
func ParseFeed(feed *gofeed.Feed) []models.FeedRecord {
	var records []models.FeedRecord
	for _, item := range feed.Items {
		record, err := parseItem(item)
		if errors.Is(err, errIgnoredShelf) {
			continue
		}
		if err != nil {
			slog.Warn("skipping malformed feed entry", "title", item.Title, "error", err)
			continue
		}
		records = append(records, record)
	}
	return records
}

// parseItem converts one loosely-typed feed item into a FeedRecord. Shelf
// feeds carry book data in non-namespaced custom elements (book_id,
// user_shelves, user_rating, …) which gofeed surfaces in Item.Custom.
func parseItem(item *gofeed.Item) (models.FeedRecord, error) {
	review := strings.TrimSpace(stripHTML(custom(item, "user_review")))

	shelf, ok := resolveShelf(custom(item, "user_shelves"), review)
	if !ok {
		return models.FeedRecord{}, errIgnoredShelf
	}

	id, err := strconv.ParseInt(strings.TrimSpace(custom(item, "book_id")), 10, 64)
	if err != nil {
		return models.FeedRecord{}, fmt.Errorf("parsing book_id: %w", err)
	}

	rating, err := parseOptionalInt(custom(item, "user_rating"))
	if err != nil {
		return models.FeedRecord{}, fmt.Errorf("parsing user_rating: %w", err)
	}

	avgRating, err := parseOptionalFloat(custom(item, "average_rating"))
	if err != nil {
		return models.FeedRecord{}, fmt.Errorf("parsing average_rating: %w", err)
	}

	published, err := time.Parse(pubDateFormat, item.Published)
	if err != nil {
		return models.FeedRecord{}, fmt.Errorf("parsing pubDate %q: %w", item.Published, err)
	}

	return models.FeedRecord{
		BookID:        id,
		Title:         strings.TrimSpace(item.Title),
		Author:        strings.TrimSpace(custom(item, "author_name")),
		CoverURL:      strings.TrimSpace(custom(item, "book_image_url")),
		DetailURL:     bookURLStub + strconv.FormatInt(id, 10),
		Shelf:         shelf,
		Rating:        rating,
		AverageRating: avgRating,
		Review:        review,
		Published:     published,
	}, nil
}

// resolveShelf maps the raw user_shelves value to a tracked shelf. An entry
// on an unknown shelf that carries a review is coerced to "read": a review
// implies a finished book filed on a custom shelf.
func resolveShelf(raw, review string) (models.Shelf, bool) {
	shelf := models.Shelf(strings.TrimSpace(raw))
	if models.KnownShelf(shelf) {
		return shelf, true
	}
	if review != "" {
		return models.ShelfRead, true
	}
	return "", false
}

// parseOptionalInt parses a numeric field that may legitimately be absent.
// An empty value is nil; a present but non-numeric value is an error.
func parseOptionalInt(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// parseOptionalFloat is parseOptionalInt for float fields.
func parseOptionalFloat(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// custom returns a custom child element of the item, or "" when absent.
func custom(item *gofeed.Item, key string) string {
	if item.Custom == nil {
		return ""
	}
	return item.Custom[key]
}

// stripHTML removes HTML tags from s and unescapes HTML entities.
func stripHTML(s string) string {
	clean := htmlTagPattern.ReplaceAllString(s, "")
	return html.UnescapeString(clean)
}
