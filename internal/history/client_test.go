package history

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func fakeHistoryServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			switch req.Header.Get("Authorization") {
			case "Bearer good":
				next.ServeHTTP(w, req)
			case "Bearer forbidden":
				w.WriteHeader(http.StatusForbidden)
			default:
				w.WriteHeader(http.StatusUnauthorized)
			}
		})
	})
	r.Get("/api/rooms/{roomID}/messages", func(w http.ResponseWriter, req *http.Request) {
		room := chi.URLParam(req, "roomID")
		q := req.URL.Query()
		switch room {
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
			return
		case "counted":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"messages": []map[string]string{},
				"count":    7,
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{
				{"username": "alice", "message": room + " " + q.Get("limit") + "/" + q.Get("offset"), "timestamp": "2024-01-01T10:00:00.000001Z"},
				{"username": "bob", "message": "second", "timestamp": "2024-01-01T10:00:01"},
			},
		})
	})
	r.Get("/api/recent-rooms", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"recent_rooms": []string{"lobby", "golang"}})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientMessages(t *testing.T) {
	srv := fakeHistoryServer(t)
	c := NewClient(srv.URL+"/api", nil)

	p, err := c.Messages(context.Background(), "good", "lobby", 50, 100)
	if err != nil {
		t.Fatal(err)
	}
	if p.Count != 2 {
		t.Errorf("Count = %d, want len(messages) = 2", p.Count)
	}
	if p.Messages[0].Body != "lobby 50/100" {
		t.Errorf("body = %q, want query echoed", p.Messages[0].Body)
	}
	if p.Messages[1].Timestamp.IsZero() {
		t.Error("naive timestamp not parsed")
	}
}

func TestClientMessagesExplicitCount(t *testing.T) {
	srv := fakeHistoryServer(t)
	c := NewClient(srv.URL+"/api", nil)
	p, err := c.Messages(context.Background(), "good", "counted", 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.Count != 7 {
		t.Errorf("Count = %d, want 7", p.Count)
	}
}

func TestClientMessagesEscapesRoom(t *testing.T) {
	srv := fakeHistoryServer(t)
	c := NewClient(srv.URL+"/api", nil)
	p, err := c.Messages(context.Background(), "good", "game night", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.Messages[0].Body != "game night 10/0" {
		t.Errorf("body = %q", p.Messages[0].Body)
	}
}

func TestClientErrors(t *testing.T) {
	srv := fakeHistoryServer(t)
	c := NewClient(srv.URL+"/api", nil)
	ctx := context.Background()

	if _, err := c.Messages(ctx, "bad", "lobby", 50, 0); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("401 error = %v, want ErrUnauthorized", err)
	}
	if _, err := c.Messages(ctx, "forbidden", "lobby", 50, 0); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("403 error = %v, want ErrUnauthorized", err)
	}

	_, err := c.Messages(ctx, "good", "broken", 50, 0)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != http.StatusInternalServerError {
		t.Errorf("500 error = %v, want FetchError 500", err)
	}

	down := NewClient("http://127.0.0.1:1", nil)
	_, err = down.Messages(ctx, "good", "lobby", 50, 0)
	if !errors.As(err, &fe) || fe.Status != 0 {
		t.Errorf("transport error = %v, want FetchError without status", err)
	}
}

func TestClientRecentRooms(t *testing.T) {
	srv := fakeHistoryServer(t)
	c := NewClient(srv.URL+"/api", nil)

	rooms, err := c.RecentRooms(context.Background(), "good")
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 2 || rooms[0] != "lobby" {
		t.Errorf("rooms = %v", rooms)
	}
	if _, err := c.RecentRooms(context.Background(), "bad"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("error = %v, want ErrUnauthorized", err)
	}
}
