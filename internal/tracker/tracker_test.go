package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"readz/internal/models"
	"readz/internal/notify"
	"readz/internal/storage"
)

// fakeSource serves canned feed records keyed by Goodreads ID.
type fakeSource struct {
	feeds map[string][]models.FeedRecord
	errs  map[string]error
}

func (f *fakeSource) FetchShelves(ctx context.Context, goodreadsID string) ([]models.FeedRecord, error) {
	if err := f.errs[goodreadsID]; err != nil {
		return nil, err
	}
	return f.feeds[goodreadsID], nil
}

type sentUnit struct {
	ChannelID   int64
	DisplayName string
	Unit        notify.Unit
}

// fakeNotifier records every delivery attempt.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentUnit
	err  error
}

func (f *fakeNotifier) Send(ctx context.Context, channelID int64, displayName string, unit notify.Unit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentUnit{ChannelID: channelID, DisplayName: displayName, Unit: unit})
	return nil
}

func (f *fakeNotifier) deliveries() []sentUnit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentUnit(nil), f.sent...)
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()

	db, err := storage.OpenDatabase(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := storage.RunMigrations(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return storage.NewStore(db)
}

func seedAccount(t *testing.T, store *storage.Store, channelID int64, discordID int64, goodreadsID string) models.Account {
	t.Helper()
	ctx := context.Background()

	group, err := store.UpsertGroup(ctx, models.Group{DiscordID: 77, Name: "Club", ChannelID: channelID})
	if err != nil {
		t.Fatalf("seeding group: %v", err)
	}
	account, err := store.CreateAccount(ctx, models.Account{
		GroupID:         group.ID,
		DiscordID:       discordID,
		DiscordUsername: fmt.Sprintf("reader-%d", discordID),
		GoodreadsID:     goodreadsID,
	})
	if err != nil {
		t.Fatalf("seeding account: %v", err)
	}
	return account
}

func feedRecord(id int64, shelf models.Shelf) models.FeedRecord {
	return models.FeedRecord{
		BookID:    id,
		Title:     fmt.Sprintf("Book %d", id),
		Author:    "Author",
		DetailURL: fmt.Sprintf("https://www.goodreads.com/book/show/%d", id),
		Shelf:     shelf,
		Published: time.Now(),
	}
}

func TestRunPass_DeliversNewBooks(t *testing.T) {
	store := newTestStore(t)
	seedAccount(t, store, 42, 10, "111")

	source := &fakeSource{feeds: map[string][]models.FeedRecord{
		"111": {feedRecord(1, models.ShelfToRead), feedRecord(2, models.ShelfRead)},
	}}
	notifier := &fakeNotifier{}
	tr := New(store, source, notifier, &notify.Composer{})

	summary, err := tr.RunPass(context.Background(), "")
	if err != nil {
		t.Fatalf("RunPass() error: %v", err)
	}

	if summary.Accounts != 1 || summary.NewEntries != 2 || summary.Failures != 0 {
		t.Fatalf("summary = %+v, want 1 account, 2 new entries, 0 failures", summary)
	}
	if summary.PassID == "" {
		t.Fatal("summary has no pass ID")
	}

	// One to-read batch plus one individual unit for the read book.
	sent := notifier.deliveries()
	if len(sent) != 2 {
		t.Fatalf("delivered %d units, want 2", len(sent))
	}
	if summary.UnitsSent != 2 {
		t.Fatalf("summary.UnitsSent = %d, want 2", summary.UnitsSent)
	}
	for _, s := range sent {
		if s.ChannelID != 42 {
			t.Errorf("unit sent to channel %d, want 42", s.ChannelID)
		}
		if s.DisplayName != "reader-10" {
			t.Errorf("unit display name = %q, want %q", s.DisplayName, "reader-10")
		}
	}
}

func TestRunPass_SecondPassSendsNothing(t *testing.T) {
	store := newTestStore(t)
	seedAccount(t, store, 42, 10, "111")

	source := &fakeSource{feeds: map[string][]models.FeedRecord{
		"111": {feedRecord(1, models.ShelfRead)},
	}}
	notifier := &fakeNotifier{}
	tr := New(store, source, notifier, &notify.Composer{})

	if _, err := tr.RunPass(context.Background(), ""); err != nil {
		t.Fatalf("first RunPass() error: %v", err)
	}
	summary, err := tr.RunPass(context.Background(), "")
	if err != nil {
		t.Fatalf("second RunPass() error: %v", err)
	}

	if summary.NewEntries != 0 || summary.UnitsSent != 0 {
		t.Fatalf("summary = %+v, want nothing new and nothing sent", summary)
	}
	if sent := notifier.deliveries(); len(sent) != 1 {
		t.Fatalf("delivered %d units across both passes, want 1", len(sent))
	}
}

func TestRunPass_ScopedToOneAccount(t *testing.T) {
	store := newTestStore(t)
	seedAccount(t, store, 42, 10, "111")
	seedAccount(t, store, 42, 11, "222")

	source := &fakeSource{feeds: map[string][]models.FeedRecord{
		"111": {feedRecord(1, models.ShelfRead)},
		"222": {feedRecord(2, models.ShelfRead)},
	}}
	notifier := &fakeNotifier{}
	tr := New(store, source, notifier, &notify.Composer{})

	summary, err := tr.RunPass(context.Background(), "222")
	if err != nil {
		t.Fatalf("RunPass() error: %v", err)
	}

	if summary.Accounts != 1 || summary.NewEntries != 1 {
		t.Fatalf("summary = %+v, want exactly account 222 processed", summary)
	}
	sent := notifier.deliveries()
	if len(sent) != 1 || sent[0].DisplayName != "reader-11" {
		t.Fatalf("deliveries = %+v, want one unit for reader-11", sent)
	}
}

func TestRunPass_UnknownAccount(t *testing.T) {
	store := newTestStore(t)
	tr := New(store, &fakeSource{}, &fakeNotifier{}, &notify.Composer{})

	_, err := tr.RunPass(context.Background(), "999")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("RunPass() error = %v, want ErrNotFound", err)
	}
}

func TestRunPass_AccountFailureIsIsolated(t *testing.T) {
	store := newTestStore(t)
	seedAccount(t, store, 42, 10, "111")
	seedAccount(t, store, 42, 11, "222")

	source := &fakeSource{
		feeds: map[string][]models.FeedRecord{
			"222": {feedRecord(2, models.ShelfRead)},
		},
		errs: map[string]error{
			"111": errors.New("feed unavailable"),
		},
	}
	notifier := &fakeNotifier{}
	tr := New(store, source, notifier, &notify.Composer{})

	summary, err := tr.RunPass(context.Background(), "")
	if err != nil {
		t.Fatalf("RunPass() error: %v", err)
	}

	if summary.Accounts != 2 || summary.Failures != 1 {
		t.Fatalf("summary = %+v, want 2 accounts with 1 failure", summary)
	}
	sent := notifier.deliveries()
	if len(sent) != 1 || sent[0].DisplayName != "reader-11" {
		t.Fatalf("deliveries = %+v, want the healthy account's unit only", sent)
	}
}

func TestRunPass_NoChannelDropsNotifications(t *testing.T) {
	store := newTestStore(t)
	seedAccount(t, store, 0, 10, "111")

	source := &fakeSource{feeds: map[string][]models.FeedRecord{
		"111": {feedRecord(1, models.ShelfRead)},
	}}
	notifier := &fakeNotifier{}
	tr := New(store, source, notifier, &notify.Composer{})

	summary, err := tr.RunPass(context.Background(), "")
	if err != nil {
		t.Fatalf("RunPass() error: %v", err)
	}

	// New entries are still recorded so they are not re-reported later.
	if summary.NewEntries != 1 || summary.UnitsSent != 0 || summary.Failures != 0 {
		t.Fatalf("summary = %+v, want 1 new entry dropped without failure", summary)
	}
	if sent := notifier.deliveries(); len(sent) != 0 {
		t.Fatalf("delivered %d units, want none", len(sent))
	}
}

func TestRunPass_DeliveryFailureCountsNothingSent(t *testing.T) {
	store := newTestStore(t)
	seedAccount(t, store, 42, 10, "111")

	source := &fakeSource{feeds: map[string][]models.FeedRecord{
		"111": {feedRecord(1, models.ShelfRead)},
	}}
	notifier := &fakeNotifier{err: errors.New("discord is down")}
	tr := New(store, source, notifier, &notify.Composer{})

	summary, err := tr.RunPass(context.Background(), "")
	if err != nil {
		t.Fatalf("RunPass() error: %v", err)
	}
	if summary.UnitsSent != 0 || summary.Failures != 0 {
		t.Fatalf("summary = %+v, want dropped deliveries without account failure", summary)
	}
}

func TestRunPass_RejectsOverlappingPasses(t *testing.T) {
	store := newTestStore(t)
	seedAccount(t, store, 42, 10, "111")

	started := make(chan struct{})
	release := make(chan struct{})
	source := &blockingSource{started: started, release: release}
	tr := New(store, source, &fakeNotifier{}, &notify.Composer{})

	done := make(chan error, 1)
	go func() {
		_, err := tr.RunPass(context.Background(), "")
		done <- err
	}()

	<-started
	if _, err := tr.RunPass(context.Background(), ""); !errors.Is(err, ErrPassRunning) {
		t.Fatalf("concurrent RunPass() error = %v, want ErrPassRunning", err)
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("blocked RunPass() error: %v", err)
	}

	// Once the first pass finishes, a new one is allowed again.
	if _, err := tr.RunPass(context.Background(), ""); err != nil {
		t.Fatalf("follow-up RunPass() error: %v", err)
	}
}

// blockingSource parks the first fetch until released, so a test can observe
// the tracker mid-pass.
type blockingSource struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingSource) FetchShelves(ctx context.Context, goodreadsID string) ([]models.FeedRecord, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return nil, nil
}
