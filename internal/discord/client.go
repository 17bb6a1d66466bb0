// Package discord delivers notification units to Discord channels over the
// REST API. It implements the narrow delivery contract the tracker expects;
// nothing outside this package knows about embeds or bot tokens.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"readz/internal/notify"
)

const (
	defaultAPIURL = "https://discord.com/api/v10"
	httpTimeout   = 30 * time.Second

	embedColor = 0x3498DB // Discord's standard blue
)

// Client is a minimal Discord bot API client that can post embed messages
// to a channel.
type Client struct {
	token  string
	apiURL string
	httpc  *http.Client
}

// NewClient creates a Client authenticated with the given bot token.
func NewClient(token string) *Client {
	return NewClientForHost(token, defaultAPIURL)
}

// NewClientForHost creates a Client talking to the given API base URL.
// Tests use it to point the client at a local server.
func NewClientForHost(token, apiURL string) *Client {
	return &Client{
		token:  token,
		apiURL: strings.TrimSuffix(apiURL, "/"),
		httpc:  &http.Client{Timeout: httpTimeout},
	}
}

// Wire types for the subset of the embed object we send.

type embed struct {
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	URL         string          `json:"url,omitempty"`
	Color       int             `json:"color,omitempty"`
	Fields      []embedField    `json:"fields,omitempty"`
	Thumbnail   *embedThumbnail `json:"thumbnail,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedThumbnail struct {
	URL string `json:"url"`
}

// Send posts one notification unit to the given channel as an embed message.
// A non-2xx response is returned as an error with the response body attached.
func (c *Client) Send(ctx context.Context, channelID int64, displayName string, unit notify.Unit) error {
	payload := struct {
		Embeds []embed `json:"embeds"`
	}{
		Embeds: []embed{buildEmbed(displayName, unit)},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding message payload: %w", err)
	}

	url := c.apiURL + "/channels/" + strconv.FormatInt(channelID, 10) + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building message request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("sending message to channel %d: %w", channelID, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		const readLimit = 16384 // enough for any Discord error body
		errBody, readErr := io.ReadAll(io.LimitReader(res.Body, readLimit))
		if readErr != nil {
			errBody = []byte("unable to read body")
		}
		return fmt.Errorf("sending message to channel %d: status %d: %s",
			channelID, res.StatusCode, strings.TrimSpace(string(errBody)))
	}

	return nil
}

// buildEmbed renders a notification unit as a Discord embed. Batch units
// become one field per section; individual units carry the book's full
// detail with a thumbnail.
func buildEmbed(displayName string, unit notify.Unit) embed {
	e := embed{
		Title:       unit.Title,
		Description: unit.Description,
		Color:       embedColor,
	}

	if unit.Kind == notify.KindBatch {
		for _, section := range unit.Sections {
			e.Fields = append(e.Fields, embedField{
				Name:  section.Title,
				Value: section.Body,
			})
		}
		return e
	}

	book := unit.Book
	e.URL = book.DetailURL
	e.Description = individualBody(displayName, unit)
	if book.CoverURL != "" {
		e.Thumbnail = &embedThumbnail{URL: book.CoverURL}
	}
	if book.Author != "" {
		e.Fields = append(e.Fields, embedField{Name: "Author", Value: book.Author})
	}
	return e
}

// individualBody renders the description of a single-book embed: who shelved
// it, star rating, aggregate rating, and the review quoted if present.
func individualBody(displayName string, unit notify.Unit) string {
	book := unit.Book

	var b strings.Builder
	fmt.Fprintf(&b, "@%s shelved this as **%s**.", displayName, book.Shelf)

	if stars := notify.Stars(book.Rating); stars != "" {
		b.WriteString("\n" + stars)
	}
	if book.AverageRating != nil {
		fmt.Fprintf(&b, "\nAverage rating: %.2f", *book.AverageRating)
	}
	if book.Review != "" {
		b.WriteString("\n")
		for line := range strings.Lines(book.Review) {
			b.WriteString("\n> " + strings.TrimRight(line, "\n"))
		}
	}

	return b.String()
}
