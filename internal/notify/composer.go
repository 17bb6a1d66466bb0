// Package notify composes reconciled shelf changes into notification units
// ready for delivery.
package notify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"readz/internal/models"
)

const (
	// DefaultMassThreshold is the number of active updates above which a
	// single consolidated batch is sent instead of per-book messages.
	DefaultMassThreshold = 2

	// DefaultMaxSectionLen bounds the rendered body of one batch section.
	// Discord caps an embed field value at 1024 characters.
	DefaultMaxSectionLen = 1024
)

// Kind distinguishes the two notification shapes.
type Kind string

const (
	// KindBatch is a single unit grouping many updates under shelf headers.
	KindBatch Kind = "batch"

	// KindIndividual is one unit per book, carrying full detail.
	KindIndividual Kind = "individual"
)

// Section is one titled text block inside a batch unit. A shelf whose
// rendered lines exceed the length limit spans several sections titled with
// an (i/n) suffix.
type Section struct {
	Title string
	Body  string
}

// Unit is one notification ready for delivery. Batch units carry Sections;
// individual units carry the Book they describe. Units are ephemeral: they
// are produced once per reconciliation and never persisted.
type Unit struct {
	Kind        Kind
	Title       string
	Description string
	Sections    []Section
	Book        *models.FeedRecord
}

// shelfOrder fixes the order shelves appear in a batch unit.
var shelfOrder = []models.Shelf{
	models.ShelfToRead,
	models.ShelfCurrentlyReading,
	models.ShelfRead,
}

var shelfHeaders = map[models.Shelf]string{
	models.ShelfToRead:           "📚 To Read",
	models.ShelfCurrentlyReading: "📘 Currently Reading",
	models.ShelfRead:             "✅ Read",
}

// Composer turns a reconciliation's "new" records into notification units.
// The zero value uses the default threshold and section length.
type Composer struct {
	// MassThreshold is the number of active (currently-reading or read)
	// updates above which everything collapses into one batch unit.
	MassThreshold int

	// MaxSectionLen is the maximum rendered length of one batch section.
	MaxSectionLen int
}

// Compose builds the notification units for one account's new records, in
// emission order. With more active updates than the mass threshold it emits
// exactly one batch covering every record, to-read included. Otherwise
// to-read records are batched (if any) and each active record becomes its
// own individual unit, preserving input order. No records, no units.
func (c *Composer) Compose(displayName string, records []models.FeedRecord) []Unit {
	if len(records) == 0 {
		return nil
	}

	var toRead, active []models.FeedRecord
	for _, r := range records {
		if r.Shelf.Active() {
			active = append(active, r)
		} else {
			toRead = append(toRead, r)
		}
	}

	threshold := c.MassThreshold
	if threshold == 0 {
		threshold = DefaultMassThreshold
	}

	if len(active) > threshold {
		return []Unit{c.batch(displayName, records)}
	}

	var units []Unit
	if len(toRead) > 0 {
		units = append(units, c.batch(displayName, toRead))
	}
	for i := range active {
		units = append(units, Unit{
			Kind:  KindIndividual,
			Title: active[i].Title,
			Book:  &active[i],
		})
	}
	return units
}

// batch builds one batch unit with a section per non-empty shelf, in fixed
// shelf order, paginating oversized shelves.
func (c *Composer) batch(displayName string, records []models.FeedRecord) Unit {
	grouped := make(map[models.Shelf][]models.FeedRecord)
	for _, r := range records {
		grouped[r.Shelf] = append(grouped[r.Shelf], r)
	}

	unit := Unit{
		Kind:        KindBatch,
		Title:       fmt.Sprintf("@%s's Reading Update", displayName),
		Description: "Here are the latest reading updates:",
	}

	for _, shelf := range shelfOrder {
		books := grouped[shelf]
		if len(books) == 0 {
			continue
		}

		lines := make([]string, len(books))
		for i, b := range books {
			lines[i] = renderLine(b)
		}

		blocks := c.paginate(lines)
		for i, block := range blocks {
			title := shelfHeaders[shelf]
			if len(blocks) > 1 {
				title = fmt.Sprintf("%s (%d/%d)", title, i+1, len(blocks))
			}
			unit.Sections = append(unit.Sections, Section{Title: title, Body: block})
		}
	}

	return unit
}

// renderLine renders one book as a single batch line. Read books with a
// rating get a star suffix.
func renderLine(b models.FeedRecord) string {
	line := fmt.Sprintf("• [%s](%s)", b.Title, b.DetailURL)
	if b.Author != "" {
		line += " by " + b.Author
	}
	if b.Shelf == models.ShelfRead {
		if stars := Stars(b.Rating); stars != "" {
			line += " – " + stars
		}
	}
	return line
}

// paginate packs lines into newline-joined blocks no longer than the section
// limit, never splitting a line. A single line longer than the limit becomes
// a block of its own.
func (c *Composer) paginate(lines []string) []string {
	maxLen := c.MaxSectionLen
	if maxLen == 0 {
		maxLen = DefaultMaxSectionLen
	}

	var (
		blocks []string
		cur    strings.Builder
		curLen int // in runes, since the limit is a character count
	)
	for _, line := range lines {
		lineLen := utf8.RuneCountInString(line)
		if curLen > 0 && curLen+1+lineLen > maxLen {
			blocks = append(blocks, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteByte('\n')
			curLen++
		}
		cur.WriteString(line)
		curLen += lineLen
	}
	if cur.Len() > 0 {
		blocks = append(blocks, cur.String())
	}
	return blocks
}

// Stars renders a rating as filled-star glyphs, one per integer point.
// Nil and zero ratings render as nothing.
func Stars(rating *int) string {
	if rating == nil || *rating <= 0 {
		return ""
	}
	return strings.Repeat("⭐", *rating)
}
