package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/queuejanitor/decluttd/internal/httpx"
)

// QBittorrent adapts qBittorrent's WebUI API, generalizing the teacher's
// qbit.go: login lazily via a cookie jar already held by the shared
// httpx.Client, then call /api/v2/torrents/{info,trackers,reannounce}.
type QBittorrent struct {
	baseURL  string
	username string
	password string
	http     *httpx.Client
}

// NewQBittorrent builds a qBittorrent adapter.
func NewQBittorrent(baseURL, username, password string, httpClient *httpx.Client) *QBittorrent {
	return &QBittorrent{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		http:     httpClient,
	}
}

func (q *QBittorrent) login(ctx context.Context) bool {
	form := url.Values{"username": {q.username}, "password": {q.password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.baseURL+"/api/v2/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", q.baseURL)
	resp, err := q.http.Do(ctx, req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type qbitTorrentInfo struct {
	State    string `json:"state"`
	Dlspeed  int64  `json:"dlspeed"`
	NumSeeds int64  `json:"num_seeds"`
	NumLeech int64  `json:"num_leechs"`
}

func (q *QBittorrent) torrentInfo(ctx context.Context, hash string) (qbitTorrentInfo, bool) {
	if !q.login(ctx) {
		return qbitTorrentInfo{}, false
	}
	u := q.baseURL + "/api/v2/torrents/info?" + url.Values{"hashes": {hash}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return qbitTorrentInfo{}, false
	}
	resp, err := q.http.Do(ctx, req)
	if err != nil {
		return qbitTorrentInfo{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return qbitTorrentInfo{}, false
	}

	var torrents []qbitTorrentInfo
	if err := json.NewDecoder(resp.Body).Decode(&torrents); err != nil || len(torrents) == 0 {
		return qbitTorrentInfo{}, false
	}
	return torrents[0], true
}

func (q *QBittorrent) Speed(ctx context.Context, downloadID string) (int64, bool) {
	info, ok := q.torrentInfo(ctx, downloadID)
	if !ok {
		return 0, false
	}
	return info.Dlspeed, true
}

func (q *QBittorrent) Info(ctx context.Context, downloadID string) (Info, bool) {
	info, ok := q.torrentInfo(ctx, downloadID)
	if !ok {
		return Info{}, false
	}
	return Info{State: strings.ToLower(info.State), Peers: info.NumLeech, Seeds: info.NumSeeds}, true
}

func (q *QBittorrent) Trackers(ctx context.Context, downloadID string) ([]Tracker, bool) {
	if !q.login(ctx) {
		return nil, false
	}
	u := q.baseURL + "/api/v2/torrents/trackers?" + url.Values{"hash": {downloadID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false
	}
	resp, err := q.http.Do(ctx, req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, false
	}

	var raw []struct {
		Msg string `json:"msg"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, false
	}
	out := make([]Tracker, 0, len(raw))
	for _, t := range raw {
		out = append(out, Tracker{Message: t.Msg})
	}
	return out, true
}

func (q *QBittorrent) Reannounce(ctx context.Context, downloadID string, doRecheck bool) bool {
	if !q.login(ctx) {
		return false
	}
	ok := q.call(ctx, "/api/v2/torrents/reannounce", downloadID)
	if doRecheck {
		ok = q.call(ctx, "/api/v2/torrents/recheck", downloadID) || ok
	}
	return ok
}

func (q *QBittorrent) call(ctx context.Context, path, hash string) bool {
	form := url.Values{"hashes": {hash}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := q.http.Do(ctx, req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
