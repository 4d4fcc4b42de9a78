package schedule

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/classhour/classhour/engine"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

func staticTokens(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
}

func TestEventSourceFetch(t *testing.T) {
	payloads := map[string]string{
		"/bare":    `[{"id": 1, "teacher_id": 7, "startDate": "2024-03-01T19:00:00Z", "endDate": "2024-03-01T19:50:00Z"}]`,
		"/wrapped": `{"events": {"rows": [{"id": 1, "resourceId": 7, "startDate": "2024-03-01T19:00:00Z", "endDate": "2024-03-01T19:50:00Z"}]}}`,
	}

	var gotAuth string
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/api/events", r.URL.Path)
		w.Write([]byte(payloads[path]))
	}))
	defer server.Close()

	src := NewEventSource(server.URL, staticTokens("secret-token"), time.UTC)

	for _, p := range []string{"/bare", "/wrapped"} {
		path = p
		events, err := src.FetchEvents(context.Background())
		require.NoError(t, err, "shape %s", p)
		require.Len(t, events, 1)
		assert.Equal(t, int64(7), events[0].Teacher)
	}
	assert.Equal(t, "Bearer secret-token", gotAuth)
}

func TestEventSourceFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	src := NewEventSource(server.URL, staticTokens("secret-token"), time.UTC)
	_, err := src.FetchEvents(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetchFailed))
}

// A caller holding the signing key can mint its own session tokens instead of
// carrying a static API token.
func TestEventSourceIssuerTokens(t *testing.T) {
	issuer := engine.NewTokenIssuer(filepath.Join(t.TempDir(), "key.pem"))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims, err := issuer.Verify(tok)
		require.NoError(t, err)
		require.Equal(t, "scheduler", claims.Subject)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	tokens := issuer.OAuth2(func() *jwt.RegisteredClaims {
		return &jwt.RegisteredClaims{
			Subject:   "scheduler",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
	})

	src := NewEventSource(server.URL, tokens, time.UTC)
	events, err := src.FetchEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}

type fakeSource struct {
	events []*Event
	err    error
	calls  int
}

func (f *fakeSource) FetchEvents(ctx context.Context) ([]*Event, error) {
	f.calls++
	return f.events, f.err
}

// A fetch failure must block the booking decision, never report "free".
func TestPlannerFailsClosed(t *testing.T) {
	src := &fakeSource{err: ErrFetchFailed}
	planner := &Planner{Source: src}

	_, err := planner.Check(context.Background(), Candidate{
		Start: at(10, 0), End: at(10, 50), Teacher: 7,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetchFailed))
}

func TestPlannerCheck(t *testing.T) {
	src := &fakeSource{events: []*Event{lesson(1, 7, at(10, 0), at(10, 50), StatusScheduled)}}
	planner := &Planner{Source: src, BufferMinutes: 5}

	decision, err := planner.Check(context.Background(), Candidate{
		Start: at(10, 50), End: at(11, 40), Teacher: 7,
	})
	require.NoError(t, err)
	assert.True(t, decision.Busy, "back-to-back inside the buffer")

	decision, err = planner.Check(context.Background(), Candidate{
		Start: at(12, 0), End: at(12, 50), Teacher: 7,
	})
	require.NoError(t, err)
	assert.False(t, decision.Busy)
}

func TestWatcher(t *testing.T) {
	src := &fakeSource{events: []*Event{lesson(1, 7, at(10, 0), at(10, 50), StatusScheduled)}}
	bus := engine.NewBus()
	mirror := &Mirror{}

	w := NewWatcher(src, bus, mirror, time.Minute)
	w.limiter = rate.NewLimiter(rate.Inf, 1) // no throttling in tests

	changes, unsubscribe := bus.Subscribe(TopicEventsChanged)
	defer unsubscribe()

	ctx := context.Background()

	// First tick: snapshot lands in the mirror and a change is published.
	w.Tick(ctx)
	assert.Len(t, mirror.Events(), 1)
	select {
	case <-changes:
	default:
		t.Fatal("expected a change notification")
	}

	// Unchanged snapshot: no new notification.
	w.Tick(ctx)
	select {
	case <-changes:
		t.Fatal("unchanged snapshot must not notify")
	default:
	}

	// Changed snapshot: notifies again.
	src.events = append(src.events, lesson(2, 7, at(11, 0), at(11, 50), StatusScheduled))
	w.Tick(ctx)
	assert.Len(t, mirror.Events(), 2)
	select {
	case <-changes:
	default:
		t.Fatal("expected a change notification after the snapshot changed")
	}

	// Fetch failures leave the mirror untouched.
	src.err = errors.New("network down")
	w.Tick(ctx)
	assert.Len(t, mirror.Events(), 2)
}

func TestWatcherCancellation(t *testing.T) {
	src := &fakeSource{}
	w := NewWatcher(src, engine.NewBus(), &Mirror{}, time.Minute)
	w.limiter = rate.NewLimiter(rate.Every(time.Hour), 0) // forces Wait to block

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, w.Tick(ctx))
	assert.Zero(t, src.calls, "no fetch after teardown")
}
