package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"unicode"

	"readz/internal/models"
	"readz/internal/storage"
	"readz/internal/tracker"
)

// UpsertGroup handles POST /api/groups. It creates or updates a group and
// its update channel, keyed by the Discord server ID.
func UpsertGroup(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			DiscordID int64  `json:"discord_id"`
			Name      string `json:"name"`
			ChannelID int64  `json:"channel_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if body.DiscordID == 0 || body.Name == "" {
			writeError(w, http.StatusBadRequest, "discord_id and name are required")
			return
		}

		group, err := store.UpsertGroup(r.Context(), models.Group{
			DiscordID: body.DiscordID,
			Name:      body.Name,
			ChannelID: body.ChannelID,
		})
		if err != nil {
			slog.Error("failed to upsert group", "discord_id", body.DiscordID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to save group")
			return
		}

		writeJSON(w, http.StatusOK, group)
	}
}

// GetAccounts handles GET /api/accounts. It returns every registered account.
func GetAccounts(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := store.GetAllAccounts(r.Context())
		if err != nil {
			slog.Error("failed to list accounts", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to list accounts")
			return
		}

		if accounts == nil {
			accounts = []models.Account{}
		}

		writeJSON(w, http.StatusOK, accounts)
	}
}

// RegisterAccount handles POST /api/accounts. It registers a Discord user's
// shelf feed from their Goodreads profile URL, whose last path segment is
// "<id>-<display-name>".
func RegisterAccount(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			GroupDiscordID  int64  `json:"group_discord_id"`
			DiscordID       int64  `json:"discord_id"`
			DiscordUsername string `json:"discord_username"`
			ProfileURL      string `json:"goodreads_profile_url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if body.DiscordID == 0 || body.DiscordUsername == "" || body.ProfileURL == "" {
			writeError(w, http.StatusBadRequest, "discord_id, discord_username and goodreads_profile_url are required")
			return
		}

		goodreadsID, displayName, err := parseProfileURL(body.ProfileURL)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		group, err := store.GetGroupByDiscordID(r.Context(), body.GroupDiscordID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Group is not registered")
				return
			}
			slog.Error("failed to load group", "discord_id", body.GroupDiscordID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to load group")
			return
		}

		account, err := store.CreateAccount(r.Context(), models.Account{
			GroupID:         group.ID,
			DiscordID:       body.DiscordID,
			DiscordUsername: body.DiscordUsername,
			GoodreadsID:     goodreadsID,
			GoodreadsName:   displayName,
		})
		if err != nil {
			slog.Warn("failed to register account", "discord_id", body.DiscordID, "error", err)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, account)
	}
}

// UnregisterAccount handles DELETE /api/accounts/{discordID}. The account's
// tracked books are removed along with it.
func UnregisterAccount(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		discordID, err := parseID(r, "discordID")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := store.DeleteAccountByDiscordID(r.Context(), discordID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Account not found")
				return
			}
			slog.Error("failed to unregister account", "discord_id", discordID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to unregister account")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// RunPass handles POST /api/run. It triggers one update pass immediately,
// scoped to a single account when the "account" query parameter carries a
// Goodreads user ID.
func RunPass(t *tracker.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := t.RunPass(r.Context(), r.URL.Query().Get("account"))
		if err != nil {
			switch {
			case errors.Is(err, tracker.ErrPassRunning):
				writeError(w, http.StatusConflict, err.Error())
			case errors.Is(err, storage.ErrNotFound):
				writeError(w, http.StatusNotFound, "Account not found")
			default:
				slog.Error("manual pass failed", "error", err)
				writeError(w, http.StatusInternalServerError, "Update pass failed")
			}
			return
		}

		writeJSON(w, http.StatusOK, summary)
	}
}

// parseProfileURL extracts the Goodreads user ID and display name from a
// profile URL like "https://www.goodreads.com/user/show/12345-jane-doe".
func parseProfileURL(raw string) (goodreadsID, displayName string, err error) {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "", "", fmt.Errorf("invalid profile URL %q", raw)
	}

	seg := path.Base(u.Path)
	id, rest, _ := strings.Cut(seg, "-")
	if id == "" || strings.ContainsFunc(id, func(r rune) bool { return !unicode.IsDigit(r) }) {
		return "", "", fmt.Errorf("profile URL %q does not end in a numeric user ID", raw)
	}

	return id, strings.ReplaceAll(rest, "-", " "), nil
}
