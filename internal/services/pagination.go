package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/harmoni/internal/shared"
	"github.com/zmb3/spotify/v2"
)

// PageRequest sets the page size and the starting offset of a paged fetch.
type PageRequest struct {
	Limit  int
	Offset int
}

// page is the paging envelope. Items are decoded one at a time so a malformed entry
// does not discard the rest of the page.
type page struct {
	Items  []json.RawMessage `json:"items"`
	Total  *int              `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// FetchAll requests successive pages from path starting at req.Offset and returns every item
// in provider order.
//
// It stops when the offset reaches the reported total, when a page is empty, or when the
// response carries no total. Null or undecodable items, and items rejected by keep, are skipped.
func FetchAll[T any](ctx context.Context, c *Client, path string, query url.Values, req PageRequest, keep func(T) bool) ([]T, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := max(req.Offset, 0)

	var (
		items   []T
		skipped int
		pages   int
	)

	for {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("limit", strconv.Itoa(limit))
		q.Set("offset", strconv.Itoa(offset))

		var p page
		if err := c.Get(ctx, path, q, &p); err != nil {
			return nil, err
		}
		pages++

		for _, raw := range p.Items {
			if len(raw) == 0 || string(raw) == "null" {
				skipped++
				continue
			}
			var item T
			if err := json.Unmarshal(raw, &item); err != nil {
				skipped++
				continue
			}
			if keep != nil && !keep(item) {
				skipped++
				continue
			}
			items = append(items, item)
		}

		received := len(p.Items)
		if received == 0 || p.Total == nil {
			break
		}
		offset += received
		if offset >= *p.Total {
			break
		}
	}

	c.logger.Debug("fetched collection", "path", path, "pages", pages, "items", len(items), "skipped", skipped)
	return items, nil
}

// ParsePlaylistID accepts a bare id, a spotify:playlist: URI or an open.spotify.com share URL.
func ParsePlaylistID(s string) (spotify.ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	if rest, ok := strings.CutPrefix(s, "spotify:playlist:"); ok {
		s = rest
	} else if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) < 2 || parts[len(parts)-2] != "playlist" {
			return "", fmt.Errorf("%w: %q is not a playlist url", shared.ErrInvalidInput, s)
		}
		s = parts[len(parts)-1]
	}

	if s == "" || strings.ContainsAny(s, "/:?# ") {
		return "", fmt.Errorf("%w: %q is not a playlist id", shared.ErrInvalidInput, s)
	}
	return spotify.ID(s), nil
}
