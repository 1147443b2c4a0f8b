// Package eventbus implements spec §4.H: a one-shot structured log plus
// optional notification fan-out per decision event, with per-destination
// batching, a reasons filter, and template interpolation.
//
// Discord delivery uses github.com/bwmarrin/discordgo's webhook executor
// (grounded on the Raainshe-akira manifest, the only pack dependency that
// speaks Discord) rather than a hand-rolled POST, since discordgo already
// encodes the webhook payload shape and rate-limit handling. Slack and
// generic destinations use the shared retrying HTTP client directly — no
// example in the pack carries a dedicated Slack/generic webhook SDK, so
// those two fall back to a plain JSON POST (documented in DESIGN.md).
package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/queuejanitor/decluttd/internal/config"
	"github.com/queuejanitor/decluttd/internal/httpx"
)

const (
	discordMaxLen = 1900
	slackMaxLen   = 38000
)

// Event is one decision outcome worth logging/notifying about.
type Event struct {
	Kind      string // "remove", "dry_remove", "reannounce_attempted", ...
	Service   string
	ID        int64
	Title     string
	Reason    string
	SizeBytes int64 // item size, 0 if unknown; rendered human-readable in logs/templates
	Notify    bool
}

// Bus logs every event and fans notify-worthy ones out to configured
// destinations, batching per-destination and flushing once per cycle.
type Bus struct {
	logger *logrus.Entry
	http   *httpx.Client

	structured bool

	mu    sync.Mutex
	queue map[string][]Event // destination name -> pending batch
	dests []config.Destination
}

// New builds an event bus bound to the configured notification
// destinations.
func New(logger *logrus.Entry, http *httpx.Client, structuredLogs bool, dests []config.Destination) *Bus {
	return &Bus{
		logger:     logger,
		http:       http,
		structured: structuredLogs,
		queue:      map[string][]Event{},
		dests:      dests,
	}
}

// Emit logs ev and queues it for every destination whose reasons filter
// matches, delivering immediately for non-batched destinations.
func (b *Bus) Emit(ev Event) {
	b.log(ev)

	if !ev.Notify {
		return
	}

	for _, dest := range b.dests {
		if !destinationMatches(dest, ev.Reason) {
			continue
		}
		if dest.Batch {
			b.mu.Lock()
			b.queue[dest.Name] = append(b.queue[dest.Name], ev)
			b.mu.Unlock()
			continue
		}
		b.deliver(context.Background(), dest, []Event{ev})
	}
}

func (b *Bus) log(ev Event) {
	fields := logrus.Fields{
		"event":   ev.Kind,
		"service": ev.Service,
		"id":      ev.ID,
		"title":   ev.Title,
		"reason":  ev.Reason,
	}
	if ev.SizeBytes > 0 {
		fields["size"] = humanize.Bytes(uint64(ev.SizeBytes))
	}
	if b.structured {
		b.logger.WithFields(fields).Info(ev.Kind)
		return
	}
	b.logger.Infof("%s service=%s id=%d title=%q reason=%s size=%s", ev.Kind, ev.Service, ev.ID, ev.Title, ev.Reason, humanize.Bytes(uint64(ev.SizeBytes)))
}

func destinationMatches(dest config.Destination, reason string) bool {
	if len(dest.Reasons) == 0 {
		return true
	}
	for _, r := range dest.Reasons {
		if r == "*" || r == reason {
			return true
		}
	}
	return false
}

// Flush delivers every destination's pending batch, called once at the end
// of each cycle (spec §4.H). Destinations are flushed concurrently, the
// same errgroup fan-out the runner uses across managers, since one slow
// or unreachable webhook must never delay delivery to the others.
func (b *Bus) Flush(ctx context.Context) {
	b.mu.Lock()
	pending := b.queue
	b.queue = map[string][]Event{}
	b.mu.Unlock()

	var g errgroup.Group
	for _, dest := range b.dests {
		dest := dest
		events := pending[dest.Name]
		if len(events) == 0 {
			continue
		}
		g.Go(func() error {
			b.deliver(ctx, dest, events)
			return nil
		})
	}
	_ = g.Wait()
}

func (b *Bus) deliver(ctx context.Context, dest config.Destination, events []Event) {
	if dest.RawJSON {
		b.deliverRawJSON(ctx, dest, events)
		return
	}

	text := renderBatch(dest, events)
	var err error
	switch dest.Type {
	case "discord":
		err = b.deliverDiscord(ctx, dest, text)
	case "slack":
		err = b.deliverWebhookJSON(ctx, dest, map[string]string{"text": truncate(text, slackMaxLen)})
	default:
		err = b.deliverWebhookJSON(ctx, dest, map[string]string{"content": text})
	}
	if err != nil {
		b.logger.WithError(err).WithField("destination", dest.Name).Warn("notification delivery failed")
	}
}

func (b *Bus) deliverRawJSON(ctx context.Context, dest config.Destination, events []Event) {
	for _, ev := range events {
		payload, err := json.Marshal(map[string]any{
			"event":   ev.Kind,
			"service": ev.Service,
			"id":      ev.ID,
			"title":   ev.Title,
			"reason":  ev.Reason,
		})
		if err != nil {
			continue
		}
		if err := b.postJSON(ctx, dest, payload); err != nil {
			b.logger.WithError(err).WithField("destination", dest.Name).Warn("notification delivery failed")
		}
	}
}

func (b *Bus) deliverWebhookJSON(ctx context.Context, dest config.Destination, body map[string]string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return b.postJSON(ctx, dest, payload)
}

func (b *Bus) postJSON(ctx context.Context, dest config.Destination, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range dest.Headers {
		req.Header.Set(k, v)
	}
	resp, err := b.http.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification %s: status %s", dest.Name, resp.Status)
	}
	return nil
}

func (b *Bus) deliverDiscord(ctx context.Context, dest config.Destination, text string) error {
	id, token, err := parseDiscordWebhookURL(dest.URL)
	if err != nil {
		return err
	}
	session, err := discordgo.New("")
	if err != nil {
		return err
	}
	session.Client = &http.Client{Transport: &throttledTransport{ctx: ctx, bus: b}}
	content := truncate(text, discordMaxLen)
	_, err = session.WebhookExecute(id, token, false, &discordgo.WebhookParams{Content: content})
	return err
}

// throttledTransport routes discordgo's HTTP traffic through the shared
// retrying/throttled client so Discord webhook calls honor the same
// backoff policy as every other collaborator.
type throttledTransport struct {
	ctx context.Context
	bus *Bus
}

func (t *throttledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.bus.http.Do(t.ctx, req)
}

func parseDiscordWebhookURL(raw string) (id, token string, err error) {
	const marker = "/webhooks/"
	i := strings.Index(raw, marker)
	if i < 0 {
		return "", "", fmt.Errorf("not a discord webhook url: %s", raw)
	}
	rest := raw[i+len(marker):]
	parts := strings.SplitN(strings.TrimSuffix(rest, "/"), "/", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed discord webhook url: %s", raw)
	}
	return parts[0], parts[1], nil
}

func renderBatch(dest config.Destination, events []Event) string {
	lines := make([]string, 0, len(events))
	for _, ev := range events {
		lines = append(lines, renderTemplate(dest.Template, ev))
	}
	return strings.Join(lines, "\n")
}

func renderTemplate(tmpl string, ev Event) string {
	size := humanize.Bytes(uint64(ev.SizeBytes))
	if tmpl == "" {
		if ev.SizeBytes > 0 {
			return fmt.Sprintf("[%s] %s: %q (%s, %s)", ev.Service, ev.Kind, ev.Title, ev.Reason, size)
		}
		return fmt.Sprintf("[%s] %s: %q (%s)", ev.Service, ev.Kind, ev.Title, ev.Reason)
	}
	replacer := strings.NewReplacer(
		"{service}", ev.Service,
		"{id}", fmt.Sprintf("%d", ev.ID),
		"{title}", ev.Title,
		"{reason}", ev.Reason,
		"{size}", size,
	)
	return replacer.Replace(tmpl)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
