package models

import "time"

// Group represents a Discord server that accounts belong to. Notifications
// for a group's accounts are posted to its update channel.
type Group struct {
	ID        int64     `json:"id"`
	DiscordID int64     `json:"discord_id"`
	Name      string    `json:"name"`
	ChannelID int64     `json:"channel_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Account pairs a Discord user with the Goodreads feed we track for them.
type Account struct {
	ID              int64     `json:"id"`
	GroupID         int64     `json:"group_id"`
	DiscordID       int64     `json:"discord_id"`
	DiscordUsername string    `json:"discord_username"`
	GoodreadsID     string    `json:"goodreads_id"`
	GoodreadsName   string    `json:"goodreads_name,omitempty"`
	RegisteredAt    time.Time `json:"registered_at"`
}

// DisplayName returns the name notifications should address the account by.
func (a Account) DisplayName() string {
	if a.GoodreadsName != "" {
		return a.GoodreadsName
	}
	return a.DiscordUsername
}
