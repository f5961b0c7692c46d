// Package listing fetches the platform's live-room listing. A Client issues
// single page requests; a Fetcher walks every page of one cycle, merges them
// into a deduplicated Snapshot and writes it to the durable cache file.
package listing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultUserAgent mimics a desktop browser; the listing endpoint rejects
// obviously scripted clients.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/109.0.0.0 Safari/537.36"

// RoomCode is the per-room identifier used for deduplication. The endpoint
// has been observed to send it both as a JSON string and as a number.
type RoomCode string

// UnmarshalJSON accepts a string or a bare number.
func (c *RoomCode) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = RoomCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("room code: %w", err)
	}
	*c = RoomCode(n.String())
	return nil
}

// Entry is one row of the listing response.
type Entry struct {
	Code      RoomCode `json:"code"`
	UserID    string   `json:"userId"`
	UserNick  string   `json:"userNick"`
	Title     string   `json:"title"`
	StartTime string   `json:"startTime"`
	LiveType  string   `json:"liveType"`
	IsPw      bool     `json:"isPw"`
	IsAdult   bool     `json:"isAdult"`
	Type      string   `json:"type"`
}

// Recorded reports whether the room replays a recording instead of a live feed.
func (e Entry) Recorded() bool { return e.LiveType == "rec" }

// FanOnly reports whether the room is restricted to the paid fan tier.
func (e Entry) FanOnly() bool { return e.Type == "fan" }

// Page is the decoded body of one listing request.
type Page struct {
	Result bool `json:"result"`
	Page   struct {
		Total int `json:"total"`
	} `json:"page"`
	List []Entry `json:"list"`
}

// Client performs single listing requests.
type Client struct {
	BaseURL    string
	Cookie     string
	UserAgent  string
	OrderBy    string
	HTTPClient *http.Client
}

// NewClient returns a Client with a fixed request timeout. proxyURL may be
// empty for a direct connection.
func NewClient(baseURL, cookie, proxyURL string, timeout time.Duration) (*Client, error) {
	hc, err := NewHTTPClient(proxyURL, timeout)
	if err != nil {
		return nil, err
	}
	return &Client{BaseURL: baseURL, Cookie: cookie, HTTPClient: hc}, nil
}

// NewHTTPClient builds an http.Client that optionally routes through an HTTP proxy.
func NewHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
		tr.Proxy = http.ProxyURL(u)
	}
	return &http.Client{Transport: tr, Timeout: timeout}, nil
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// FetchPage requests one page of the listing. A decoded page without the
// success flag is returned together with ErrRejected.
func (c *Client) FetchPage(ctx context.Context, offset, limit int) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL, nil)
	if err != nil {
		return nil, err
	}
	orderBy := c.OrderBy
	if orderBy == "" {
		orderBy = "hot"
	}
	q := req.URL.Query()
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("orderBy", orderBy)
	q.Set("onlyNewBj", "N")
	req.URL.RawQuery = q.Encode()
	ua := c.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	if c.Cookie != "" {
		req.Header.Set("Cookie", c.Cookie)
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(b)}
	}
	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if !page.Result {
		return &page, ErrRejected
	}
	return &page, nil
}
