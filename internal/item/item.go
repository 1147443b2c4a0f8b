// Package item provides pure accessors over the heterogeneous JSON shape
// returned by Sonarr/Radarr/Lidarr-style queue endpoints.
//
// Manager responses vary in field names and nesting (indexer vs
// release.indexer, sizeleft vs sizeLeft, ...). Rather than modeling every
// manager's schema as a distinct Go type, a Snapshot wraps the raw decoded
// JSON object and exposes a fixed accessor API. The rule evaluator and
// decision engine only ever see this API, never the raw map.
package item

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Snapshot is one queue entry as returned by a manager, kept as a raw
// key/value map so unknown or manager-specific fields survive untouched.
type Snapshot struct {
	raw map[string]any
}

// NewSnapshot wraps a decoded JSON object.
func NewSnapshot(raw map[string]any) Snapshot {
	if raw == nil {
		raw = map[string]any{}
	}
	return Snapshot{raw: raw}
}

// ParseSnapshot decodes a single JSON object into a Snapshot.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Snapshot{}, err
	}
	return NewSnapshot(raw), nil
}

// Raw exposes the underlying map for callers that need manager-specific
// fields the accessor API doesn't cover (e.g. the CLI `simulate` command).
func (s Snapshot) Raw() map[string]any { return s.raw }

func (s Snapshot) get(keys ...string) (any, bool) {
	cur := any(s.raw)
	for i, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[k]
		if !ok || v == nil {
			return nil, false
		}
		if i == len(keys)-1 {
			return v, true
		}
		cur = v
	}
	return nil, false
}

// firstPresent tries a series of dotted paths in order, returning the first
// one whose leaf value is non-nil.
func (s Snapshot) firstPresent(paths [][]string) (any, bool) {
	for _, p := range paths {
		if v, ok := s.get(p...); ok {
			return v, true
		}
	}
	return nil, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, err2 := n.Float64()
			if err2 != nil {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	default:
		return "", false
	}
}

// ID returns the manager-local queue entry id.
func (s Snapshot) ID() (int64, bool) {
	v, ok := s.get("id")
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

// Title returns the item's display title, or "" when absent.
func (s Snapshot) Title() string {
	v, ok := s.get("title")
	if !ok {
		return ""
	}
	str, _ := toString(v)
	return str
}

// DownloadID returns the opaque torrent/download identifier used for
// dedup and torrent-client lookups.
func (s Snapshot) DownloadID() (string, bool) {
	v, ok := s.get("downloadId")
	if !ok {
		return "", false
	}
	return toString(v)
}

// Protocol returns the raw protocol field, lowercased.
func (s Snapshot) Protocol() string {
	v, ok := s.get("protocol")
	if !ok {
		return ""
	}
	if str, ok := toString(v); ok {
		return strings.ToLower(str)
	}
	if n, ok := toInt64(v); ok {
		return strconv.FormatInt(n, 10)
	}
	return ""
}

// IsTorrent reports whether the item is a torrent download per spec §4.A:
// the lowercased protocol contains "torrent" or equals the numeral 1.
func (s Snapshot) IsTorrent() bool {
	p := s.Protocol()
	return strings.Contains(p, "torrent") || p == "1"
}

// Size returns the total size in bytes, when present.
func (s Snapshot) Size() (int64, bool) {
	v, ok := s.get("size")
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

// SizeLeft returns the remaining size in bytes, when present.
func (s Snapshot) SizeLeft() (int64, bool) {
	if v, ok := s.get("sizeleft"); ok {
		return toInt64(v)
	}
	if v, ok := s.get("sizeLeft"); ok {
		return toInt64(v)
	}
	return 0, false
}

// DownloadedBytes returns size-sizeleft when both are known.
func (s Snapshot) DownloadedBytes() (int64, bool) {
	size, ok1 := s.Size()
	left, ok2 := s.SizeLeft()
	if !ok1 || !ok2 {
		return 0, false
	}
	d := size - left
	if d < 0 {
		d = 0
	}
	return d, true
}

// ProgressPercent returns downloaded/total*100 clamped to [0,100], or
// false when either size is unknown or non-positive.
func (s Snapshot) ProgressPercent() (float64, bool) {
	size, ok := s.Size()
	if !ok || size <= 0 {
		return 0, false
	}
	downloaded, ok := s.DownloadedBytes()
	if !ok {
		return 0, false
	}
	pct := float64(downloaded) / float64(size) * 100
	return clamp(pct, 0, 100), true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// seedersPaths and indexerPaths encode the fallback chain from spec §4.A:
// top-level, then release.*, then remoteEpisode/remoteMovie.release.*.
var seedersPaths = [][]string{
	{"seeders"},
	{"seederCount"},
	{"release", "seeders"},
	{"release", "seederCount"},
	{"remoteEpisode", "release", "seeders"},
	{"remoteEpisode", "release", "seederCount"},
	{"remoteMovie", "release", "seeders"},
	{"remoteMovie", "release", "seederCount"},
}

var indexerPaths = [][]string{
	{"indexer"},
	{"indexerName"},
	{"release", "indexer"},
	{"release", "indexerName"},
	{"remoteEpisode", "release", "indexer"},
	{"remoteEpisode", "release", "indexerName"},
	{"remoteMovie", "release", "indexer"},
	{"remoteMovie", "release", "indexerName"},
}

// Seeders returns the seeder count following the top-level -> release ->
// remoteEpisode/remoteMovie fallback chain.
func (s Snapshot) Seeders() (int64, bool) {
	v, ok := s.firstPresent(seedersPaths)
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

// IndexerName returns the indexer name following the same fallback chain.
func (s Snapshot) IndexerName() (string, bool) {
	v, ok := s.firstPresent(indexerPaths)
	if !ok {
		return "", false
	}
	return toString(v)
}

// Status returns the lowercased status field.
func (s Snapshot) Status() string {
	return s.lowerString("status")
}

func (s Snapshot) lowerString(key string) string {
	v, ok := s.get(key)
	if !ok {
		return ""
	}
	str, _ := toString(v)
	return strings.ToLower(str)
}

// TrackedDownloadStatus returns the lowercased trackedDownloadStatus or
// trackedDownloadState field, whichever is present.
func (s Snapshot) TrackedDownloadStatus() string {
	if v := s.lowerString("trackedDownloadStatus"); v != "" {
		return v
	}
	return s.lowerString("trackedDownloadState")
}

// ErrorMessage returns the lowercased errorMessage field.
func (s Snapshot) ErrorMessage() string {
	return s.lowerString("errorMessage")
}

// StatusMessages returns the lowercased text of every statusMessages[]
// entry, flattening the {title, messages[]} shape some managers use.
func (s Snapshot) StatusMessages() []string {
	v, ok := s.get("statusMessages")
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, entry := range list {
		switch e := entry.(type) {
		case string:
			out = append(out, strings.ToLower(e))
		case map[string]any:
			if msgs, ok := e["messages"].([]any); ok {
				for _, m := range msgs {
					if str, ok := m.(string); ok {
						out = append(out, strings.ToLower(str))
					}
				}
			}
			if title, ok := e["title"].(string); ok {
				out = append(out, strings.ToLower(title))
			}
		}
	}
	return out
}

// AnyTextContains reports whether errorMessage or any statusMessages entry
// contains needle (already expected lowercase).
func (s Snapshot) AnyTextContains(needle string) bool {
	if strings.Contains(s.ErrorMessage(), needle) {
		return true
	}
	for _, m := range s.StatusMessages() {
		if strings.Contains(m, needle) {
			return true
		}
	}
	return false
}

// AnyTextContainsAny reports whether any status text contains any of the
// given needles.
func (s Snapshot) AnyTextContainsAny(needles ...string) bool {
	for _, n := range needles {
		if s.AnyTextContains(n) {
			return true
		}
	}
	return false
}

var queuedMarkers = []string{"queued", "pending", "waiting"}

// IsQueued reports whether status, trackedDownloadStatus, or clientState
// indicate the item hasn't started transferring yet, per spec §4.A.
func (s Snapshot) IsQueued() bool {
	cs := s.ClientState()
	if cs == "download_wait" || cs == "check_wait" {
		return true
	}
	for _, field := range []string{s.Status(), s.TrackedDownloadStatus(), cs} {
		for _, marker := range queuedMarkers {
			if strings.Contains(field, marker) {
				return true
			}
		}
	}
	return false
}

var stalledStates = map[string]bool{"warning": true, "error": true, "stalled": true}

// IsStalled reports whether any state field signals stall per spec §4.A.
func (s Snapshot) IsStalled() bool {
	for _, field := range []string{s.Status(), s.TrackedDownloadStatus()} {
		if stalledStates[field] {
			return true
		}
	}
	return s.AnyTextContainsAny("stalled", "no connections")
}

// ClientState returns the lowercased clientDlSpeed-adjacent clientState
// enrichment field set by the runner during a cycle.
func (s Snapshot) ClientState() string {
	return s.lowerString("clientState")
}

// ClientSpeed returns the clientDlSpeed enrichment field.
func (s Snapshot) ClientSpeed() (int64, bool) {
	v, ok := s.get("clientDlSpeed")
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

// ClientPeers returns the clientPeers enrichment field.
func (s Snapshot) ClientPeers() (int64, bool) {
	v, ok := s.get("clientPeers")
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

// ClientSeeds returns the clientSeeds enrichment field.
func (s Snapshot) ClientSeeds() (int64, bool) {
	v, ok := s.get("clientSeeds")
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

// ClientTrackerMessages returns the clientTrackersMsg enrichment field.
func (s Snapshot) ClientTrackerMessages() []string {
	v, ok := s.get("clientTrackersMsg")
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, e := range list {
		if str, ok := toString(e); ok {
			out = append(out, strings.ToLower(str))
		}
	}
	return out
}

// ClientTrackerTextContainsAny reports whether any tracker message
// contains any of the needles.
func (s Snapshot) ClientTrackerTextContainsAny(needles ...string) bool {
	for _, msg := range s.ClientTrackerMessages() {
		for _, n := range needles {
			if strings.Contains(msg, n) {
				return true
			}
		}
	}
	return false
}

// WithEnrichment returns a copy of the snapshot with the given
// client-enrichment fields set in place, per spec §3.
func (s Snapshot) WithEnrichment(fields map[string]any) Snapshot {
	out := make(map[string]any, len(s.raw)+len(fields))
	for k, v := range s.raw {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return NewSnapshot(out)
}

// EpisodeIDs returns the episodeId(s) field normalized to a slice.
func (s Snapshot) EpisodeIDs() []int64 {
	return s.intSlice("episodeIds", "episodeId")
}

// SeriesID returns the seriesId field.
func (s Snapshot) SeriesID() (int64, bool) {
	v, ok := s.get("seriesId")
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

// MovieID returns the movieId field.
func (s Snapshot) MovieID() (int64, bool) {
	v, ok := s.get("movieId")
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

// AlbumID returns the albumId field.
func (s Snapshot) AlbumID() (int64, bool) {
	v, ok := s.get("albumId")
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

func (s Snapshot) intSlice(plural, singular string) []int64 {
	if v, ok := s.get(plural); ok {
		if list, ok := v.([]any); ok {
			out := make([]int64, 0, len(list))
			for _, e := range list {
				if n, ok := toInt64(e); ok {
					out = append(out, n)
				}
			}
			return out
		}
	}
	if v, ok := s.get(singular); ok {
		if n, ok := toInt64(v); ok {
			return []int64{n}
		}
	}
	return nil
}

// CoerceInt defensively coerces an arbitrary config/JSON value to an int,
// defaulting to def on any failure, per spec §7's "coercions default to
// safe values" requirement.
func CoerceInt(v any, def int) int {
	n, ok := toInt64(v)
	if !ok {
		return def
	}
	return int(n)
}

// CoerceFloat defensively coerces an arbitrary value to a float64.
func CoerceFloat(v any, def float64) float64 {
	f, ok := toFloat64(v)
	if !ok {
		return def
	}
	return f
}

// CoerceString defensively coerces an arbitrary value to a string.
func CoerceString(v any, def string) string {
	s, ok := toString(v)
	if !ok {
		return def
	}
	return s
}

// CoerceBool defensively coerces an arbitrary value to a bool.
func CoerceBool(v any, def bool) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return def
}
