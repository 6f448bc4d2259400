package relay

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/tabtrim/internal/types"
)

func TestBrokerPublishStampsSequence(t *testing.T) {
	b := NewBroker()
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	b.Publish(Event{Feed: FeedTrim, Payload: "a"})
	b.Publish(Event{Feed: FeedTrim, Payload: "b"})

	first, second := <-ch, <-ch
	if first.Seq != 1 || second.Seq != 2 {
		t.Fatalf("Seq = %d, %d; want 1, 2", first.Seq, second.Seq)
	}
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker()
	id, _ := b.Subscribe()
	defer b.Unsubscribe(id)

	for i := 0; i < subscriberBufSize+3; i++ {
		b.Publish(Event{Feed: FeedTab})
	}
	if got := b.Dropped(); got != 3 {
		t.Fatalf("Dropped() = %d; want 3", got)
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	id, ch := b.Subscribe()
	b.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatalf("channel open after Unsubscribe(); want closed")
	}
	if b.ClientCount() != 0 {
		t.Fatalf("ClientCount() = %d; want 0", b.ClientCount())
	}
}

func TestRecorderSkipsWithoutSubscribers(t *testing.T) {
	b := NewBroker()
	NewRecorder(b).RecordTrim(types.TrimRecord{TabID: 1})

	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)
	select {
	case evt := <-ch:
		t.Fatalf("received %+v; want nothing", evt)
	default:
	}
}

func TestSSEHandlerFiltersFeeds(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(SSEHandler(b))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?feeds=trim", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q; want text/event-stream", ct)
	}

	for b.ClientCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	rec := NewRecorder(b)
	rec.RecordTabEvent(types.TabEvent{Kind: types.TabCreated})
	rec.RecordTrim(types.TrimRecord{Rule: "host", TabID: 7})

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, ":") || line == "" {
			if len(lines) > 0 && line == "" {
				break
			}
			continue
		}
		lines = append(lines, line)
	}
	got := strings.Join(lines, "\n")
	want := "id: 2\nevent: trim\ndata: "
	if !strings.HasPrefix(got, want) {
		t.Fatalf("event = %q; want prefix %q", got, want)
	}
	if !strings.Contains(got, `"tab_id":7`) {
		t.Fatalf("event = %q; want tab_id 7", got)
	}
}

func TestParseFeeds(t *testing.T) {
	if parseFeeds("") != nil || parseFeeds(" , ") != nil {
		t.Fatalf("parseFeeds(empty) != nil; want nil")
	}
	got := parseFeeds("trim, tab")
	if !got["trim"] || !got["tab"] || len(got) != 2 {
		t.Fatalf("parseFeeds() = %v; want trim and tab", got)
	}
}
