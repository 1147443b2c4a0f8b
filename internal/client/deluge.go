package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/queuejanitor/decluttd/internal/httpx"
)

// Deluge adapts Deluge's JSON-RPC WebUI endpoint. Grounded on
// original_source/integrations/clients/deluge.py: a single /json endpoint,
// auth.login once per session, then core.get_torrent_status /
// core.force_reannounce / core.force_recheck method calls.
type Deluge struct {
	baseURL  string
	password string
	http     *httpx.Client

	mu        sync.Mutex
	authed    bool
	requestID int64
}

// NewDeluge builds a Deluge adapter, sharing the same retrying/throttled
// transport as every other collaborator.
func NewDeluge(baseURL, password string, httpClient *httpx.Client) *Deluge {
	return &Deluge{
		baseURL:  strings.TrimRight(baseURL, "/"),
		password: password,
		http:     httpClient,
	}
}

type delugeRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
	ID     int64  `json:"id"`
}

type delugeResponse struct {
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

func (d *Deluge) nextID() int64 {
	return atomic.AddInt64(&d.requestID, 1)
}

func (d *Deluge) call(ctx context.Context, method string, params []any) (delugeResponse, bool) {
	if !d.login(ctx) {
		return delugeResponse{}, false
	}
	return d.rawCall(ctx, method, params)
}

func (d *Deluge) rawCall(ctx context.Context, method string, params []any) (delugeResponse, bool) {
	body, err := json.Marshal(delugeRequest{Method: method, Params: params, ID: d.nextID()})
	if err != nil {
		return delugeResponse{}, false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/json", bytes.NewReader(body))
	if err != nil {
		return delugeResponse{}, false
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.http.Do(ctx, req)
	if err != nil {
		return delugeResponse{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return delugeResponse{}, false
	}

	var out delugeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return delugeResponse{}, false
	}
	if len(out.Error) > 0 && string(out.Error) != "null" {
		return delugeResponse{}, false
	}
	return out, true
}

func (d *Deluge) login(ctx context.Context) bool {
	d.mu.Lock()
	if d.authed {
		d.mu.Unlock()
		return true
	}
	d.mu.Unlock()

	resp, ok := d.rawCall(ctx, "auth.login", []any{d.password})
	if !ok {
		return false
	}
	var success bool
	if err := json.Unmarshal(resp.Result, &success); err != nil || !success {
		return false
	}

	d.mu.Lock()
	d.authed = true
	d.mu.Unlock()
	return true
}

type delugeTorrentStatus struct {
	State               string  `json:"state"`
	DownloadPayloadRate int64   `json:"download_payload_rate"`
	NumPeers            int64   `json:"num_peers"`
	NumSeeds            int64   `json:"num_seeds"`
	TrackerStatus       string  `json:"tracker_status"`
}

func (d *Deluge) torrentStatus(ctx context.Context, downloadID string) (delugeTorrentStatus, bool) {
	keys := []string{"state", "download_payload_rate", "num_peers", "num_seeds", "tracker_status"}
	resp, ok := d.call(ctx, "core.get_torrent_status", []any{downloadID, keys})
	if !ok {
		return delugeTorrentStatus{}, false
	}
	var status delugeTorrentStatus
	if err := json.Unmarshal(resp.Result, &status); err != nil {
		return delugeTorrentStatus{}, false
	}
	return status, true
}

func (d *Deluge) Speed(ctx context.Context, downloadID string) (int64, bool) {
	status, ok := d.torrentStatus(ctx, downloadID)
	if !ok {
		return 0, false
	}
	return status.DownloadPayloadRate, true
}

func (d *Deluge) Info(ctx context.Context, downloadID string) (Info, bool) {
	status, ok := d.torrentStatus(ctx, downloadID)
	if !ok {
		return Info{}, false
	}
	return Info{
		State: strings.ToLower(status.State),
		Peers: status.NumPeers,
		Seeds: status.NumSeeds,
	}, true
}

// Trackers reports Deluge's single aggregate tracker_status string as one
// entry, since core.get_torrent_status exposes no per-tracker breakdown.
func (d *Deluge) Trackers(ctx context.Context, downloadID string) ([]Tracker, bool) {
	status, ok := d.torrentStatus(ctx, downloadID)
	if !ok || status.TrackerStatus == "" {
		return nil, false
	}
	return []Tracker{{Message: status.TrackerStatus}}, true
}

func (d *Deluge) Reannounce(ctx context.Context, downloadID string, doRecheck bool) bool {
	_, ok := d.call(ctx, "core.force_reannounce", []any{[]string{downloadID}})
	if doRecheck {
		_, recheckOK := d.call(ctx, "core.force_recheck", []any{[]string{downloadID}})
		ok = ok || recheckOK
	}
	return ok
}
