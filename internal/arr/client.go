// Package arr implements the manager REST collaborator of spec §6: queue
// pagination, DELETE-with-blocklist removal, and POST /command search
// triggers, shaped per manager kind (Sonarr/Radarr/Lidarr).
package arr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/queuejanitor/decluttd/internal/config"
	"github.com/queuejanitor/decluttd/internal/httpx"
	"github.com/queuejanitor/decluttd/internal/item"
)

// QueuePage is one page of a manager's /queue response.
type QueuePage struct {
	TotalRecords int
	Records      []item.Snapshot
}

// Client talks to one manager instance's REST API.
type Client struct {
	manager config.Manager
	http    *httpx.Client
}

// New builds a manager REST client.
func New(manager config.Manager, httpClient *httpx.Client) *Client {
	return &Client{manager: manager, http: httpClient}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Response, error) {
	u := c.manager.APIURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rdr *bytes.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.manager.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(ctx, req)
}

// FetchQueuePage requests one page of the manager's download queue.
func (c *Client) FetchQueuePage(ctx context.Context, page, pageSize int) (QueuePage, error) {
	query := url.Values{
		"page":     {strconv.Itoa(page)},
		"pageSize": {strconv.Itoa(pageSize)},
	}
	resp, err := c.do(ctx, http.MethodGet, "/queue", query, nil)
	if err != nil {
		return QueuePage{}, fmt.Errorf("arr: fetch queue page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return QueuePage{}, fmt.Errorf("arr: fetch queue page %d: status %s", page, resp.Status)
	}

	var raw struct {
		TotalRecords int              `json:"totalRecords"`
		Records      []map[string]any `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return QueuePage{}, fmt.Errorf("arr: decode queue page %d: %w", page, err)
	}

	snaps := make([]item.Snapshot, 0, len(raw.Records))
	for _, r := range raw.Records {
		snaps = append(snaps, item.NewSnapshot(r))
	}
	return QueuePage{TotalRecords: raw.TotalRecords, Records: snaps}, nil
}

// RemoveAndBlacklist issues DELETE /queue/{id} with blocklist=true (or
// blacklist=true when the manager's UseBlocklistParam is false) and the
// per-manager optional removeFromClient/skipImport flags (spec §4.E).
func (c *Client) RemoveAndBlacklist(ctx context.Context, id int64) error {
	blockParam := "blocklist"
	if !c.manager.UseBlocklistParam {
		blockParam = "blacklist"
	}
	query := url.Values{blockParam: {"true"}}
	if c.manager.RemoveFromClient {
		query.Set("removeFromClient", "true")
	}
	if c.manager.SkipImport {
		query.Set("skipImport", "true")
	}

	resp, err := c.do(ctx, http.MethodDelete, "/queue/"+strconv.FormatInt(id, 10), query, nil)
	if err != nil {
		return fmt.Errorf("arr: remove queue entry %d: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("arr: remove queue entry %d: status %s", id, resp.Status)
	}
	return nil
}

// TriggerSearch POSTs /command with a body shaped per manager kind (spec
// §4.E). If the item carries no usable id, the search is skipped silently.
func (c *Client) TriggerSearch(ctx context.Context, snap item.Snapshot) error {
	body, ok := searchCommandBody(c.manager.Kind, snap)
	if !ok {
		return nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, "/command", nil, payload)
	if err != nil {
		return fmt.Errorf("arr: trigger search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("arr: trigger search: status %s", resp.Status)
	}
	return nil
}

func searchCommandBody(kind config.ManagerKind, snap item.Snapshot) (map[string]any, bool) {
	switch kind {
	case config.KindSonarr:
		if ids := snap.EpisodeIDs(); len(ids) > 0 {
			return map[string]any{"name": "EpisodeSearch", "episodeIds": ids}, true
		}
		if seriesID, ok := snap.SeriesID(); ok {
			return map[string]any{"name": "SeriesSearch", "seriesId": seriesID}, true
		}
		return nil, false
	case config.KindRadarr:
		if movieID, ok := snap.MovieID(); ok {
			return map[string]any{"name": "MoviesSearch", "movieIds": []int64{movieID}}, true
		}
		return nil, false
	case config.KindLidarr:
		if albumID, ok := snap.AlbumID(); ok {
			return map[string]any{"name": "AlbumSearch", "albumIds": []int64{albumID}}, true
		}
		return nil, false
	default:
		return nil, false
	}
}
