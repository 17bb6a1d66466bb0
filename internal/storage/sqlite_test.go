package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"readz/internal/models"
)

// newTestDB creates an in-memory SQLite database with migrations applied.
// The database is automatically closed when the test completes.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := OpenDatabase(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := RunMigrations(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	return db
}

// newTestStore creates an in-memory Store with migrations applied.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(newTestDB(t))
}

// seedTestGroup creates a group with an update channel configured.
func seedTestGroup(t *testing.T, store *Store) models.Group {
	t.Helper()

	group, err := store.UpsertGroup(context.Background(), models.Group{
		DiscordID: 100200300,
		Name:      "Test Server",
		ChannelID: 400500600,
	})
	if err != nil {
		t.Fatalf("seeding group: %v", err)
	}
	return group
}

// seedTestAccount creates an account in the given group.
func seedTestAccount(t *testing.T, store *Store, groupID, discordID int64) models.Account {
	t.Helper()

	account, err := store.CreateAccount(context.Background(), models.Account{
		GroupID:         groupID,
		DiscordID:       discordID,
		DiscordUsername: "reader",
		GoodreadsID:     "12345",
		GoodreadsName:   "jane",
	})
	if err != nil {
		t.Fatalf("seeding account: %v", err)
	}
	return account
}

func TestOpenDatabase_InMemory(t *testing.T) {
	db, err := OpenDatabase(":memory:")
	if err != nil {
		t.Fatalf("OpenDatabase(:memory:) error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
}

func TestOpenDatabase_CreatesDirectoryAndFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "nested", "deep", "test.db")

	db, err := OpenDatabase(dbPath)
	if err != nil {
		t.Fatalf("OpenDatabase(%q) error: %v", dbPath, err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database file was not created: %v", err)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := newTestDB(t)

	// Running migrations again must be a no-op.
	if err := RunMigrations(db); err != nil {
		t.Fatalf("second RunMigrations() error: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("counting applied migrations: %v", err)
	}
	if count == 0 {
		t.Fatal("no migrations recorded")
	}
}

func TestMigrations_CreateTables(t *testing.T) {
	db := newTestDB(t)

	for _, table := range []string{"groups", "accounts", "tracked_books"} {
		var name string
		err := db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q missing after migrations: %v", table, err)
		}
	}
}
