package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"readz/internal/models"
)

// UpsertGroup creates a group keyed by its Discord server ID, or updates the
// name and update channel of an existing one. It returns the stored group.
func (s *Store) UpsertGroup(ctx context.Context, group models.Group) (models.Group, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO groups (discord_id, name, channel_id) VALUES (?, ?, ?)
		 ON CONFLICT(discord_id) DO UPDATE SET name = excluded.name, channel_id = excluded.channel_id`,
		group.DiscordID, group.Name, group.ChannelID,
	)
	if err != nil {
		return models.Group{}, fmt.Errorf("upserting group %d: %w", group.DiscordID, err)
	}

	return s.GetGroupByDiscordID(ctx, group.DiscordID)
}

// GetGroup returns the group with the given internal ID.
// It returns ErrNotFound if no such group exists.
func (s *Store) GetGroup(ctx context.Context, id int64) (models.Group, error) {
	return s.getGroup(ctx, `WHERE id = ?`, id)
}

// GetGroupByDiscordID returns the group with the given Discord server ID.
// It returns ErrNotFound if no such group exists.
func (s *Store) GetGroupByDiscordID(ctx context.Context, discordID int64) (models.Group, error) {
	return s.getGroup(ctx, `WHERE discord_id = ?`, discordID)
}

func (s *Store) getGroup(ctx context.Context, where string, arg any) (models.Group, error) {
	var (
		group     models.Group
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, discord_id, name, channel_id, created_at FROM groups `+where, arg,
	).Scan(&group.ID, &group.DiscordID, &group.Name, &group.ChannelID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrNotFound
	}
	if err != nil {
		return models.Group{}, fmt.Errorf("querying group: %w", err)
	}

	group.CreatedAt = parseTime(createdAt)
	return group, nil
}
