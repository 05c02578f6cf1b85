package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vibee/vibee/internal/protocol"
)

// Page is one slice of room history, oldest first.
type Page struct {
	Messages []protocol.Message
	Count    int
}

// Client talks to the history collaborator over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL (e.g. http://localhost:5000/api).
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Messages fetches limit messages of roomID starting offset messages back
// from the newest.
func (c *Client) Messages(ctx context.Context, token, roomID string, limit, offset int) (Page, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	endpoint := c.baseURL + "/rooms/" + url.PathEscape(roomID) + "/messages?" + q.Encode()

	var body struct {
		Messages []protocol.Message `json:"messages"`
		Count    *int               `json:"count"`
	}
	if err := c.get(ctx, token, endpoint, &body); err != nil {
		return Page{}, err
	}

	p := Page{Messages: body.Messages, Count: len(body.Messages)}
	if body.Count != nil {
		p.Count = *body.Count
	}
	return p, nil
}

// RecentRooms lists the rooms the authenticated subject joined recently.
func (c *Client) RecentRooms(ctx context.Context, token string) ([]string, error) {
	var body struct {
		RecentRooms []string `json:"recent_rooms"`
	}
	if err := c.get(ctx, token, c.baseURL+"/recent-rooms", &body); err != nil {
		return nil, err
	}
	return body.RecentRooms, nil
}

func (c *Client) get(ctx context.Context, token, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &FetchError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &FetchError{Status: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(out); err != nil {
		return &FetchError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
