package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"readz/internal/models"
	"readz/internal/notify"
)

type capturedRequest struct {
	Path    string
	Auth    string
	Payload struct {
		Embeds []embed `json:"embeds"`
	}
}

// newTestClient spins up a local API server and returns a client pointed at
// it plus the last request it captured.
func newTestClient(t *testing.T, status int, body string) (*Client, *capturedRequest) {
	t.Helper()

	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Path = r.URL.Path
		captured.Auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&captured.Payload); err != nil {
			t.Errorf("decoding request payload: %v", err)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return NewClientForHost("test-token", srv.URL), captured
}

func TestSend_IndividualUnit(t *testing.T) {
	client, captured := newTestClient(t, http.StatusOK, "{}")

	rating := 4
	avg := 4.12
	unit := notify.Unit{
		Kind:  notify.KindIndividual,
		Title: "📘 Currently Reading",
		Book: &models.FeedRecord{
			BookID:        1,
			Title:         "The Dispossessed",
			Author:        "Ursula K. Le Guin",
			CoverURL:      "https://images.example/1.jpg",
			DetailURL:     "https://www.goodreads.com/book/show/1",
			Shelf:         models.ShelfRead,
			Rating:        &rating,
			AverageRating: &avg,
			Review:        "Loved it.\nSecond line.",
		},
	}

	if err := client.Send(context.Background(), 42, "jane", unit); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if captured.Path != "/channels/42/messages" {
		t.Errorf("request path = %q, want %q", captured.Path, "/channels/42/messages")
	}
	if captured.Auth != "Bot test-token" {
		t.Errorf("Authorization = %q, want %q", captured.Auth, "Bot test-token")
	}

	if len(captured.Payload.Embeds) != 1 {
		t.Fatalf("got %d embeds, want 1", len(captured.Payload.Embeds))
	}
	e := captured.Payload.Embeds[0]
	if e.URL != unit.Book.DetailURL {
		t.Errorf("embed URL = %q, want book detail URL", e.URL)
	}
	if e.Thumbnail == nil || e.Thumbnail.URL != unit.Book.CoverURL {
		t.Errorf("embed thumbnail = %+v, want cover URL", e.Thumbnail)
	}
	if len(e.Fields) != 1 || e.Fields[0].Name != "Author" || e.Fields[0].Value != unit.Book.Author {
		t.Errorf("embed fields = %+v, want a single Author field", e.Fields)
	}
	for _, want := range []string{
		"@jane shelved this as **read**.",
		"⭐⭐⭐⭐",
		"Average rating: 4.12",
		"> Loved it.",
		"> Second line.",
	} {
		if !strings.Contains(e.Description, want) {
			t.Errorf("embed description missing %q:\n%s", want, e.Description)
		}
	}
}

func TestSend_BatchUnit(t *testing.T) {
	client, captured := newTestClient(t, http.StatusOK, "{}")

	unit := notify.Unit{
		Kind:        notify.KindBatch,
		Title:       "jane updated their shelves",
		Description: "3 updates",
		Sections: []notify.Section{
			{Title: "📚 To Read", Body: "• [A](u) by X"},
			{Title: "✅ Read", Body: "• [B](u) by Y"},
		},
	}

	if err := client.Send(context.Background(), 42, "jane", unit); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	e := captured.Payload.Embeds[0]
	if e.Title != unit.Title || e.Description != unit.Description {
		t.Errorf("embed title/description = %q/%q, want unit's", e.Title, e.Description)
	}
	if len(e.Fields) != 2 {
		t.Fatalf("got %d fields, want one per section", len(e.Fields))
	}
	for i, section := range unit.Sections {
		if e.Fields[i].Name != section.Title || e.Fields[i].Value != section.Body {
			t.Errorf("field %d = %+v, want section %+v", i, e.Fields[i], section)
		}
	}
	if e.Thumbnail != nil || e.URL != "" {
		t.Errorf("batch embed carries URL %q / thumbnail %+v, want neither", e.URL, e.Thumbnail)
	}
}

func TestSend_ErrorStatus(t *testing.T) {
	client, _ := newTestClient(t, http.StatusForbidden, `{"message": "Missing Access", "code": 50001}`)

	err := client.Send(context.Background(), 42, "jane", notify.Unit{Kind: notify.KindBatch})
	if err == nil {
		t.Fatal("Send() returned nil for a 403 response")
	}
	for _, want := range []string{"channel 42", "status 403", "Missing Access"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}
