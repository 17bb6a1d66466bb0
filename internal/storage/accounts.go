package storage

import (
	"context"
	"fmt"

	"readz/internal/models"
)

// CreateAccount registers a new account. The account's Discord user ID must
// be unique; registering the same user twice returns a descriptive error.
func (s *Store) CreateAccount(ctx context.Context, account models.Account) (models.Account, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (group_id, discord_id, discord_username, goodreads_id, goodreads_name)
		 VALUES (?, ?, ?, ?, ?)`,
		account.GroupID, account.DiscordID, account.DiscordUsername,
		account.GoodreadsID, account.GoodreadsName,
	)
	if err != nil {
		if isConstraintErr(err, "UNIQUE") {
			return models.Account{}, fmt.Errorf("discord user %d is already registered", account.DiscordID)
		}
		if isConstraintErr(err, "FOREIGN KEY") {
			return models.Account{}, fmt.Errorf("group %d does not exist", account.GroupID)
		}
		return models.Account{}, fmt.Errorf("creating account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.Account{}, fmt.Errorf("reading account id: %w", err)
	}

	rows, err := s.queryAccounts(ctx, `WHERE a.id = ?`, id)
	if err != nil {
		return models.Account{}, err
	}
	if len(rows) == 0 {
		return models.Account{}, ErrNotFound
	}
	return rows[0], nil
}

// DeleteAccountByDiscordID unregisters the account owned by the given
// Discord user. The account's tracked books are removed by cascade.
// It returns ErrNotFound if no such account exists.
func (s *Store) DeleteAccountByDiscordID(ctx context.Context, discordID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE discord_id = ?`, discordID)
	if err != nil {
		return fmt.Errorf("deleting account for discord user %d: %w", discordID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for discord user %d: %w", discordID, err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// GetAllAccounts returns every registered account, ordered by registration.
func (s *Store) GetAllAccounts(ctx context.Context) ([]models.Account, error) {
	return s.queryAccounts(ctx, ``)
}

// GetAccountsForGroup returns the accounts belonging to one group.
func (s *Store) GetAccountsForGroup(ctx context.Context, groupID int64) ([]models.Account, error) {
	return s.queryAccounts(ctx, `WHERE a.group_id = ?`, groupID)
}

// GetAccountByGoodreadsID returns the account tracking the given Goodreads
// user. It returns ErrNotFound if none matches.
func (s *Store) GetAccountByGoodreadsID(ctx context.Context, goodreadsID string) (models.Account, error) {
	accounts, err := s.queryAccounts(ctx, `WHERE a.goodreads_id = ?`, goodreadsID)
	if err != nil {
		return models.Account{}, err
	}
	if len(accounts) == 0 {
		return models.Account{}, ErrNotFound
	}
	return accounts[0], nil
}

func (s *Store) queryAccounts(ctx context.Context, where string, args ...any) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.group_id, a.discord_id, a.discord_username,
		        a.goodreads_id, a.goodreads_name, a.registered_at
		 FROM accounts a `+where+` ORDER BY a.registered_at, a.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var (
			account      models.Account
			registeredAt string
		)
		if err := rows.Scan(
			&account.ID, &account.GroupID, &account.DiscordID, &account.DiscordUsername,
			&account.GoodreadsID, &account.GoodreadsName, &registeredAt,
		); err != nil {
			return nil, fmt.Errorf("scanning account row: %w", err)
		}
		account.RegisteredAt = parseTime(registeredAt)
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating account rows: %w", err)
	}

	return accounts, nil
}
