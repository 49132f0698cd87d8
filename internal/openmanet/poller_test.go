package openmanet

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"xcom/map-go/internal/overlay"
)

type fakeFetcher struct {
	fetchFn func(ctx context.Context) ([]overlay.MeshNode, error)
}

func (f *fakeFetcher) FetchNodes(ctx context.Context) ([]overlay.MeshNode, error) {
	return f.fetchFn(ctx)
}

func TestConfigRefreshClamps(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, DefaultRefresh},
		{-time.Second, DefaultRefresh},
		{100 * time.Millisecond, MinRefresh},
		{5 * time.Second, 5 * time.Second},
		{10 * time.Minute, MaxRefresh},
	}
	for _, tc := range cases {
		if got := (Config{Refresh: tc.in}).refresh(); got != tc.want {
			t.Errorf("refresh(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestPollOnce_SuccessUpdatesNodesAndFiresCallback(t *testing.T) {
	fired := 0
	p := New(zerolog.Nop(), Config{NodeURL: "http://node"}, func() { fired++ }, nil)
	p.client = &fakeFetcher{fetchFn: func(ctx context.Context) ([]overlay.MeshNode, error) {
		return []overlay.MeshNode{{Driver: Driver, ID: "n1"}}, nil
	}}

	if !p.pollOnce(context.Background()) {
		t.Fatal("expected the poll to be attempted")
	}
	if fired != 1 {
		t.Fatalf("expected one onUpdate, got %d", fired)
	}
	if nodes := p.Nodes(); len(nodes) != 1 || nodes[0].ID != "n1" {
		t.Fatalf("unexpected nodes: %+v", nodes)
	}
	if p.Status() != "ok (1 nodes)" {
		t.Fatalf("unexpected status: %q", p.Status())
	}
}

func TestPollOnce_FailureRetainsPreviousNodes(t *testing.T) {
	fail := false
	p := New(zerolog.Nop(), Config{NodeURL: "http://node"}, nil, nil)
	p.client = &fakeFetcher{fetchFn: func(ctx context.Context) ([]overlay.MeshNode, error) {
		if fail {
			return nil, errors.New("connection refused")
		}
		return []overlay.MeshNode{{Driver: Driver, ID: "n1"}}, nil
	}}

	p.pollOnce(context.Background())
	fail = true
	p.pollOnce(context.Background())

	// A flapping feed must not clear the map.
	if nodes := p.Nodes(); len(nodes) != 1 {
		t.Fatalf("expected retained nodes after failure, got %+v", nodes)
	}
	if p.Status() == "ok (1 nodes)" {
		t.Fatalf("status must report the failure, got %q", p.Status())
	}
}

func TestPollOnce_InFlightTickIsSkipped(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	p := New(zerolog.Nop(), Config{NodeURL: "http://node"}, nil, nil)
	p.client = &fakeFetcher{fetchFn: func(ctx context.Context) ([]overlay.MeshNode, error) {
		close(entered)
		<-release
		return nil, nil
	}}

	done := make(chan bool)
	go func() { done <- p.pollOnce(context.Background()) }()
	<-entered

	if p.pollOnce(context.Background()) {
		t.Fatal("overlapping tick must be skipped, not queued")
	}

	close(release)
	if !<-done {
		t.Fatal("first poll should have been attempted")
	}
}

func TestPollOnce_RepeatedFailureFiresCallbackOnce(t *testing.T) {
	fired := 0
	p := New(zerolog.Nop(), Config{NodeURL: "http://node"}, func() { fired++ }, nil)
	p.client = &fakeFetcher{fetchFn: func(ctx context.Context) ([]overlay.MeshNode, error) {
		return nil, errors.New("connection refused")
	}}

	p.pollOnce(context.Background())
	p.pollOnce(context.Background())

	// Status is unchanged on the second failure, so no resync is triggered.
	if fired != 1 {
		t.Fatalf("expected one onUpdate for the status change, got %d", fired)
	}
}

func TestPollOnce_TimedOutFetchDoesNotKillTheLoop(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can notice the
		// client disconnect and cancel the request context.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer slow.Close()

	p := New(zerolog.Nop(), Config{NodeURL: slow.URL}, nil, nil)
	client := NewClient(zerolog.Nop(), "", slow.URL, nil)
	client.timeout = 50 * time.Millisecond
	p.client = client

	if !p.pollOnce(context.Background()) {
		t.Fatal("expected the slow poll to be attempted")
	}
	if !strings.Contains(p.Status(), "openmanet unreachable") {
		t.Fatalf("expected an unreachable status after the timeout, got %q", p.Status())
	}

	// The next tick polls again; the aborted fetch left nothing in flight.
	if !p.pollOnce(context.Background()) {
		t.Fatal("expected the follow-up poll to run")
	}
}

func TestPoller_StartAndStop(t *testing.T) {
	ticks := make(chan struct{}, 10)
	p := New(zerolog.Nop(), Config{NodeURL: "http://node", Refresh: MinRefresh}, nil, nil)
	p.client = &fakeFetcher{fetchFn: func(ctx context.Context) ([]overlay.MeshNode, error) {
		select {
		case ticks <- struct{}{}:
		default:
		}
		return nil, nil
	}}

	p.Start()
	select {
	case <-ticks:
	case <-time.After(5 * time.Second):
		t.Fatal("poller never ticked")
	}
	p.Stop()
}
