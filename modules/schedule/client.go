package schedule

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/classhour/classhour/engine"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// ErrFetchFailed wraps event snapshot fetch failures. Callers deciding
// whether a slot may be booked must treat it as "unknown" and block the
// write - never as "free".
var ErrFetchFailed = errors.New("fetching event snapshot")

// EventSource fetches event snapshots from a scheduling API. It tolerates
// both list payload shapes and normalizes field aliasing on the way in.
type EventSource struct {
	baseURL string
	client  *http.Client
	zone    *time.Location
}

// NewEventSource builds a client for the API at baseURL. tokens supplies the
// bearer credential: oauth2.StaticTokenSource for a raw API token, or
// engine.TokenIssuer.OAuth2 when the caller holds the signing key and mints
// its own session tokens. zone is the canonical storage timezone used to
// interpret any bare wall-clock timestamps the server returns.
func NewEventSource(baseURL string, tokens oauth2.TokenSource, zone *time.Location) *EventSource {
	return &EventSource{
		baseURL: baseURL,
		client:  oauth2.NewClient(context.Background(), tokens),
		zone:    zone,
	}
}

// FetchEvents retrieves the full current event snapshot.
func (s *EventSource) FetchEvents(ctx context.Context) ([]*Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/events", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFetchFailed, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFetchFailed, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFetchFailed, err)
	}

	events, err := decodeEvents(raw, s.zone)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFetchFailed, err)
	}
	return events, nil
}

// Snapshotter is the fetch collaborator a Planner needs.
type Snapshotter interface {
	FetchEvents(context.Context) ([]*Event, error)
}

// Planner makes client-side early-rejection booking decisions against a fresh
// snapshot. It is an optimization, not a correctness guarantee: the server
// runs the same check authoritatively before any write.
type Planner struct {
	Source        Snapshotter
	BufferMinutes int
}

// Check fetches the current snapshot and runs the conflict decision. A fetch
// failure propagates so the caller blocks the action.
func (p *Planner) Check(ctx context.Context, c Candidate) (Decision, error) {
	events, err := p.Source.FetchEvents(ctx)
	if err != nil {
		return Decision{}, err
	}
	return CheckConflict(c, events, ConflictOptions{BufferMinutes: p.BufferMinutes}), nil
}

// Watcher keeps a Mirror in sync with the server by polling, publishing on
// the bus whenever the snapshot actually changed. Stopping the context stops
// the polling; nothing mutates the mirror after teardown.
type Watcher struct {
	source   Snapshotter
	bus      *engine.Bus
	mirror   *Mirror
	interval time.Duration
	limiter  *rate.Limiter
	lastSum  uint64
}

func NewWatcher(source Snapshotter, bus *engine.Bus, mirror *Mirror, interval time.Duration) *Watcher {
	return &Watcher{
		source:   source,
		bus:      bus,
		mirror:   mirror,
		interval: interval,
		// Change notifications can trigger immediate refetches; cap them.
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (w *Watcher) AttachWorkers(mgr *engine.ProcMgr) {
	mgr.Add(engine.Poll(w.interval, w.Tick))
}

// Tick performs one refresh cycle. Exposed so callers can force a refresh,
// e.g. when a bus notification arrives.
func (w *Watcher) Tick(ctx context.Context) bool {
	if err := w.limiter.Wait(ctx); err != nil {
		return false
	}

	events, err := w.source.FetchEvents(ctx)
	if err != nil {
		slog.Error("failed to refresh event snapshot", "error", err)
		return false
	}

	sum := fingerprint(events)
	if sum == w.lastSum {
		return false
	}
	w.lastSum = sum

	w.mirror.ApplySnapshot(events)
	if w.bus != nil {
		w.bus.Publish(TopicEventsChanged, len(events))
	}
	return false
}

// fingerprint hashes the identity-bearing fields of a snapshot so unchanged
// responses don't churn subscribers.
func fingerprint(events []*Event) uint64 {
	h := fnv.New64a()
	for _, ev := range events {
		if ev == nil {
			continue
		}
		fmt.Fprintf(h, "%d/%d/%s/%s/%d/%d;", ev.ID, ev.Teacher, ev.ClassType,
			ev.ClassStatus, ev.Start.Unix(), ev.End.Unix())
	}
	return h.Sum64()
}
