package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/queuejanitor/decluttd/internal/httpx"
)

// Transmission adapts Transmission's RPC endpoint. Grounded on
// original_source/integrations/clients/transmission.py: a single POST
// endpoint speaking a {method, arguments} envelope, with a 409 response
// carrying a fresh X-Transmission-Session-Id that must be retried once.
type Transmission struct {
	baseURL  string
	username string
	password string
	http     *httpx.Client

	mu        sync.Mutex
	sessionID string
}

// NewTransmission builds a Transmission adapter, sharing the same
// retrying/throttled transport as every other collaborator.
func NewTransmission(baseURL, username, password string, httpClient *httpx.Client) *Transmission {
	return &Transmission{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		http:     httpClient,
	}
}

type transmissionRequest struct {
	Method    string         `json:"method"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type transmissionResponse struct {
	Result    string          `json:"result"`
	Arguments json.RawMessage `json:"arguments"`
}

func (t *Transmission) rpc(ctx context.Context, method string, args map[string]any) (transmissionResponse, bool) {
	body, err := json.Marshal(transmissionRequest{Method: method, Arguments: args})
	if err != nil {
		return transmissionResponse{}, false
	}

	resp, ok := t.doRPC(ctx, body)
	if !ok {
		return transmissionResponse{}, false
	}
	defer resp.Body.Close()

	var out transmissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return transmissionResponse{}, false
	}
	return out, out.Result == "success"
}

// doRPC issues the RPC call, transparently retrying once on a 409 carrying
// a new session id, matching the teacher idiom of hiding transport-level
// handshakes behind a single call point (as qbit.go hides login behind
// loginIfNeeded).
func (t *Transmission) doRPC(ctx context.Context, body []byte) (*http.Response, bool) {
	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/transmission/rpc", bytes.NewReader(body))
		if err != nil {
			return nil, false
		}
		if t.username != "" {
			req.SetBasicAuth(t.username, t.password)
		}
		t.mu.Lock()
		if t.sessionID != "" {
			req.Header.Set("X-Transmission-Session-Id", t.sessionID)
		}
		t.mu.Unlock()

		resp, err := t.http.Do(ctx, req)
		if err != nil {
			return nil, false
		}
		if resp.StatusCode == http.StatusConflict {
			resp.Body.Close()
			t.mu.Lock()
			t.sessionID = resp.Header.Get("X-Transmission-Session-Id")
			t.mu.Unlock()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, false
		}
		return resp, true
	}
	return nil, false
}

type transmissionTorrent struct {
	Status             int     `json:"status"`
	PeersConnected      int64   `json:"peersConnected"`
	PeersSendingToUs    int64   `json:"peersSendingToUs"`
	PeersGettingFromUs  int64   `json:"peersGettingFromUs"`
	RateDownload        int64   `json:"rateDownload"`
	TrackerStats        []struct {
		LastAnnounceResult string `json:"lastAnnounceResult"`
	} `json:"trackerStats"`
}

func (t *Transmission) torrent(ctx context.Context, downloadID string) (transmissionTorrent, bool) {
	resp, ok := t.rpc(ctx, "torrent-get", map[string]any{
		"ids":    []string{downloadID},
		"fields": []string{"status", "peersConnected", "peersSendingToUs", "peersGettingFromUs", "rateDownload", "trackerStats"},
	})
	if !ok {
		return transmissionTorrent{}, false
	}

	var parsed struct {
		Torrents []transmissionTorrent `json:"torrents"`
	}
	if err := json.Unmarshal(resp.Arguments, &parsed); err != nil || len(parsed.Torrents) == 0 {
		return transmissionTorrent{}, false
	}
	return parsed.Torrents[0], true
}

// transmissionStatusToState mirrors transmission_status_to_state() from
// the Python original: Transmission reports torrent lifecycle as an
// integer, which we fold into the same lowercase state vocabulary the
// other adapters use.
func transmissionStatusToState(status int) string {
	switch status {
	case 0:
		return "stopped"
	case 1:
		return "check_wait"
	case 2:
		return "checking"
	case 3:
		return "download_wait"
	case 4:
		return "downloading"
	case 5:
		return "seed_wait"
	case 6:
		return "seeding"
	default:
		return fmt.Sprintf("unknown_%d", status)
	}
}

func (t *Transmission) Speed(ctx context.Context, downloadID string) (int64, bool) {
	tor, ok := t.torrent(ctx, downloadID)
	if !ok {
		return 0, false
	}
	return tor.RateDownload, true
}

func (t *Transmission) Info(ctx context.Context, downloadID string) (Info, bool) {
	tor, ok := t.torrent(ctx, downloadID)
	if !ok {
		return Info{}, false
	}
	return Info{
		State: transmissionStatusToState(tor.Status),
		Peers: tor.PeersConnected,
		Seeds: tor.PeersSendingToUs,
	}, true
}

func (t *Transmission) Trackers(ctx context.Context, downloadID string) ([]Tracker, bool) {
	tor, ok := t.torrent(ctx, downloadID)
	if !ok {
		return nil, false
	}
	out := make([]Tracker, 0, len(tor.TrackerStats))
	for _, ts := range tor.TrackerStats {
		out = append(out, Tracker{Message: ts.LastAnnounceResult})
	}
	return out, true
}

func (t *Transmission) Reannounce(ctx context.Context, downloadID string, doRecheck bool) bool {
	_, ok := t.rpc(ctx, "torrent-reannounce", map[string]any{"ids": []string{downloadID}})
	if doRecheck {
		_, recheckOK := t.rpc(ctx, "torrent-verify", map[string]any{"ids": []string{downloadID}})
		ok = ok || recheckOK
	}
	return ok
}
