// Package directory seeds the users collection from an upstream user
// directory the first time the collection is empty.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultURL is the placeholder user directory
const DefaultURL = "https://jsonplaceholder.typicode.com/users"

// maxBody bounds the upstream response
const maxBody = 4 << 20

// Entry is a validated upstream user
type Entry struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

// Rejection describes an upstream entry that was dropped
type Rejection struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Result is the outcome of one fetch
type Result struct {
	Entries  []Entry
	Rejected []Rejection
}

// Source provides upstream users
type Source interface {
	Fetch(ctx context.Context) (*Result, error)
}

// Client fetches users over HTTP
type Client struct {
	url        string
	httpClient *http.Client
	validate   *validator.Validate
}

// NewClient creates a client for the directory at url
func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		validate: validator.New(),
	}
}

// Fetch downloads the directory and validates every entry
func (c *Client) Fetch(ctx context.Context) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return c.normalize(raw), nil
}

// normalize keeps the entries that decode and validate. Malformed entries
// are reported, never merged.
func (c *Client) normalize(raw []json.RawMessage) *Result {
	res := &Result{Entries: make([]Entry, 0, len(raw))}

	for i, msg := range raw {
		var e Entry
		if err := json.Unmarshal(msg, &e); err != nil {
			res.Rejected = append(res.Rejected, Rejection{Index: i, Reason: "not an object with string name and email"})
			continue
		}

		e.Name = strings.Join(strings.Fields(e.Name), " ")
		e.Email = strings.ToLower(strings.TrimSpace(e.Email))

		if err := c.validate.Struct(e); err != nil {
			res.Rejected = append(res.Rejected, Rejection{Index: i, Reason: reason(err)})
			continue
		}
		res.Entries = append(res.Entries, e)
	}

	return res
}

func reason(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	parts := make([]string, len(verrs))
	for i, fe := range verrs {
		parts[i] = fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag())
	}
	return strings.Join(parts, ", ")
}
