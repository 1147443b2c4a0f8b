package eventbus_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queuejanitor/decluttd/internal/config"
	"github.com/queuejanitor/decluttd/internal/eventbus"
	"github.com/queuejanitor/decluttd/internal/httpx"
)

func newTestLogger() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

func TestEmitAlwaysLogsRegardlessOfNotify(t *testing.T) {
	logger, hook := test.NewNullLogger()
	bus := eventbus.New(logrus.NewEntry(logger), httpx.New(httpx.Config{}, nil), true, nil)

	bus.Emit(eventbus.Event{Kind: "remove", Service: "Radarr", ID: 1, Title: "X", Reason: "low_seeders", Notify: false})

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "remove", hook.LastEntry().Message)
}

func TestReasonsFilterExcludesNonMatchingDestinations(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dests := []config.Destination{
		{Name: "only-max-age", Type: "generic", URL: srv.URL, Reasons: []string{"max_age"}},
	}
	bus := eventbus.New(newTestLogger(), httpx.New(httpx.Config{}, nil), false, dests)

	bus.Emit(eventbus.Event{Kind: "remove", Service: "Radarr", ID: 1, Title: "X", Reason: "low_seeders", Notify: true})
	assert.Equal(t, 0, hits, "destination scoped to max_age must not fire for low_seeders")

	bus.Emit(eventbus.Event{Kind: "remove", Service: "Radarr", ID: 2, Title: "Y", Reason: "max_age", Notify: true})
	assert.Equal(t, 1, hits)
}

func TestBatchedDestinationOnlyDeliversOnFlush(t *testing.T) {
	var bodies []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dests := []config.Destination{{Name: "batched", Type: "generic", URL: srv.URL, Batch: true}}
	bus := eventbus.New(newTestLogger(), httpx.New(httpx.Config{}, nil), false, dests)

	bus.Emit(eventbus.Event{Kind: "remove", Service: "Radarr", ID: 1, Title: "X", Reason: "low_seeders", Notify: true})
	assert.Empty(t, bodies, "batched destinations must not deliver until Flush")

	bus.Flush(context.Background())
	assert.Len(t, bodies, 1)
}

func TestTemplateInterpolatesSizeHumanReadable(t *testing.T) {
	var bodies []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dests := []config.Destination{{
		Name: "sized", Type: "generic", URL: srv.URL,
		Template: "{title} removed ({reason}, {size})",
	}}
	bus := eventbus.New(newTestLogger(), httpx.New(httpx.Config{}, nil), false, dests)

	bus.Emit(eventbus.Event{
		Kind: "remove", Service: "Radarr", ID: 1, Title: "Big Movie",
		Reason: "low_seeders", SizeBytes: 2 * 1000 * 1000 * 1000, Notify: true,
	})

	require.Len(t, bodies, 1)
	assert.Contains(t, bodies[0]["content"], "Big Movie removed (low_seeders,")
	assert.Contains(t, bodies[0]["content"], "GB")
}
