package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pollyconnect/polly/internal/notify"
	"github.com/pollyconnect/polly/internal/notify/mock"
)

func allKinds() notify.FilterConfig {
	return notify.FilterConfig{
		Enabled:          true,
		NotifyOnNewStory: true,
		NotifyOnDistress: true,
		DailySummary:     true,
		WeeklyDigest:     true,
	}
}

func newEvent(k notify.Kind) notify.Event {
	return notify.Event{
		Kind:       k,
		ResidentID: "rose",
		SessionID:  "s-1",
		OccurredAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		Detail:     map[string]string{"keyword": "hospital"},
	}
}

func TestDispatcherDeliversEnqueuedEvents(t *testing.T) {
	t.Parallel()
	recorder := &mock.Notifier{}
	d := notify.NewDispatcher(recorder, allKinds())

	d.Enqueue(newEvent(notify.KindDistressKeyword))
	d.Enqueue(newEvent(notify.KindNewStory))
	d.Close()

	events := recorder.Events()
	if len(events) != 2 {
		t.Fatalf("delivered %d events, want 2", len(events))
	}
	if events[0].Kind != notify.KindDistressKeyword || events[1].Kind != notify.KindNewStory {
		t.Errorf("kinds = %q, %q", events[0].Kind, events[1].Kind)
	}
	if events[0].Detail["keyword"] != "hospital" {
		t.Errorf("detail = %v", events[0].Detail)
	}
}

func TestDispatcherFiltersByKind(t *testing.T) {
	t.Parallel()
	recorder := &mock.Notifier{}
	cfg := allKinds()
	cfg.NotifyOnNewStory = false
	d := notify.NewDispatcher(recorder, cfg)

	d.Enqueue(newEvent(notify.KindNewStory))
	d.Enqueue(newEvent(notify.KindDistressKeyword))
	d.Close()

	if got := recorder.Count(notify.KindNewStory); got != 0 {
		t.Errorf("filtered kind delivered %d times", got)
	}
	if got := recorder.Count(notify.KindDistressKeyword); got != 1 {
		t.Errorf("distress delivered %d times, want 1", got)
	}
}

func TestDispatcherDisabledDeliversNothing(t *testing.T) {
	t.Parallel()
	recorder := &mock.Notifier{}
	cfg := allKinds()
	cfg.Enabled = false
	d := notify.NewDispatcher(recorder, cfg)

	for _, k := range []notify.Kind{
		notify.KindNewStory, notify.KindDistressKeyword,
		notify.KindDailySummary, notify.KindWeeklyDigest,
	} {
		d.Enqueue(newEvent(k))
	}
	d.Close()

	if got := len(recorder.Events()); got != 0 {
		t.Errorf("disabled dispatcher delivered %d events", got)
	}
}

func TestDispatcherObserverSeesOutcomes(t *testing.T) {
	t.Parallel()
	recorder := &mock.Notifier{Err: errors.New("family portal down")}
	var mu sync.Mutex
	statuses := map[string]int{}
	d := notify.NewDispatcher(recorder, allKinds(), notify.WithObserver(func(kind, status string) {
		mu.Lock()
		statuses[status]++
		mu.Unlock()
	}))

	d.Enqueue(newEvent(notify.KindNewStory))
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if statuses["error"] != 1 {
		t.Errorf("observer statuses = %v, want one error", statuses)
	}
}

func TestDispatcherEnqueueAfterCloseDrops(t *testing.T) {
	t.Parallel()
	recorder := &mock.Notifier{}
	var mu sync.Mutex
	statuses := map[string]int{}
	d := notify.NewDispatcher(recorder, allKinds(), notify.WithObserver(func(kind, status string) {
		mu.Lock()
		statuses[status]++
		mu.Unlock()
	}))
	d.Close()

	// A session that outlives the shutdown grace period can still report a
	// story; the dispatcher must drop it, not panic on the closed queue.
	d.Enqueue(newEvent(notify.KindNewStory))

	if got := len(recorder.Events()); got != 0 {
		t.Errorf("closed dispatcher delivered %d events", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if statuses["dropped"] != 1 {
		t.Errorf("observer statuses = %v, want one dropped", statuses)
	}
}

func TestDispatcherNilNotifierIsValid(t *testing.T) {
	t.Parallel()
	d := notify.NewDispatcher(nil, allKinds())
	d.Enqueue(newEvent(notify.KindNewStory))
	d.Close()
	// Close again is a no-op.
	d.Close()
}

func TestWebhookNotifierPostsJSON(t *testing.T) {
	t.Parallel()
	var (
		gotBody        []byte
		gotContentType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wn := notify.NewWebhookNotifier(srv.URL, srv.Client())
	if err := wn.Notify(context.Background(), newEvent(notify.KindDistressKeyword)); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}

	var ev notify.Event
	if err := json.Unmarshal(gotBody, &ev); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if ev.Kind != notify.KindDistressKeyword || ev.ResidentID != "rose" {
		t.Errorf("decoded event = %+v", ev)
	}
}

func TestWebhookNotifierRejectsErrorStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	wn := notify.NewWebhookNotifier(srv.URL, srv.Client())
	if err := wn.Notify(context.Background(), newEvent(notify.KindNewStory)); err == nil {
		t.Fatal("Notify succeeded against a 502 endpoint")
	}
}
