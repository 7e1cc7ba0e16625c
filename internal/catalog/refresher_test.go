package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CardSorting/MarieCoder-sub006/internal/bus"
	"github.com/CardSorting/MarieCoder-sub006/internal/domain"
	mcerrors "github.com/CardSorting/MarieCoder-sub006/internal/errors"
	"github.com/CardSorting/MarieCoder-sub006/internal/notify"
	"github.com/CardSorting/MarieCoder-sub006/internal/state"
)

// recordingSink collects shown messages.
type recordingSink struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (s *recordingSink) ShowMessage(_ context.Context, msg notify.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func newTestRefresher(t *testing.T, endpoint string, timeout time.Duration, sink notify.Sink) (*Refresher, *bus.Bus, state.Store) {
	t.Helper()
	store, err := state.NewFileStore(t.TempDir())
	require.NoError(t, err)
	b := bus.New(zerolog.Nop())
	r := NewRefresher(endpoint, timeout, store, b, sink, zerolog.Nop(), nil, nil)
	return r, b, store
}

const catalogBody = `[
	{"mcpId": "example/weather", "name": "Weather", "githubStars": 42, "downloadCount": 100, "tags": ["weather"]},
	{"mcpId": "example/bare"}
]`

func TestRefresher_FetchCatalogNormalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(catalogBody))
	}))
	defer srv.Close()

	r, b, _ := newTestRefresher(t, srv.URL, 0, nil)

	var payload RefreshCompletedPayload
	b.On(bus.EventMarketplaceRefreshCompleted, func(_ context.Context, e bus.Event) error {
		payload = e.Payload.(RefreshCompletedPayload)
		return nil
	})

	catalog := r.FetchCatalog(context.Background(), false)
	require.NotNil(t, catalog)
	require.Len(t, catalog.Items, 2)
	assert.False(t, catalog.FetchedAt.IsZero())

	full := catalog.Items[0]
	assert.Equal(t, "example/weather", full.McpID)
	assert.Equal(t, 42, full.GithubStars)
	assert.Equal(t, []string{"weather"}, full.Tags)

	// Missing fields are defaulted, never nil.
	bare := catalog.Items[1]
	assert.Equal(t, 0, bare.GithubStars)
	assert.Equal(t, 0, bare.DownloadCount)
	assert.NotNil(t, bare.Tags)
	assert.Empty(t, bare.Tags)

	assert.Len(t, payload.Catalog.Items, 2)
	assert.Equal(t, 2, payload.ItemCount)
	assert.False(t, payload.Silent)
}

func TestRefresher_FetchCatalogCachesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(catalogBody))
	}))
	defer srv.Close()

	r, _, _ := newTestRefresher(t, srv.URL, 0, nil)
	ctx := context.Background()

	require.NotNil(t, r.FetchCatalog(ctx, true))

	cached, err := r.CachedCatalog(ctx)
	require.NoError(t, err)
	assert.Len(t, cached.Items, 2)
}

func TestRefresher_FetchCatalogFailureNeverErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := &recordingSink{}
	r, b, _ := newTestRefresher(t, srv.URL, 0, sink)

	var errPayload ErrorPayload
	b.On(bus.EventMarketplaceError, func(_ context.Context, e bus.Event) error {
		errPayload = e.Payload.(ErrorPayload)
		return nil
	})

	catalog := r.FetchCatalog(context.Background(), false)
	assert.Nil(t, catalog)
	assert.ErrorIs(t, errPayload.Err, mcerrors.ErrCatalogFetch)
	assert.False(t, errPayload.Silent)
	assert.Equal(t, 1, sink.count())
}

func TestRefresher_FetchCatalogSilentSkipsNotification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := &recordingSink{}
	r, b, _ := newTestRefresher(t, srv.URL, 0, sink)

	var errPayload ErrorPayload
	b.On(bus.EventMarketplaceError, func(_ context.Context, e bus.Event) error {
		errPayload = e.Payload.(ErrorPayload)
		return nil
	})

	assert.Nil(t, r.FetchCatalog(context.Background(), true))
	assert.Zero(t, sink.count())
	assert.True(t, errPayload.Silent)
}

func TestRefresher_FetchCatalogRPCPropagatesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not": "a list"}`))
	}))
	defer srv.Close()

	r, _, _ := newTestRefresher(t, srv.URL, 0, nil)

	_, err := r.FetchCatalogRPC(context.Background(), false)
	assert.ErrorIs(t, err, mcerrors.ErrCatalogMalformed)
}

func TestRefresher_FetchCatalogRPCSilentSwallowsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r, _, _ := newTestRefresher(t, srv.URL, 0, nil)

	catalog, err := r.FetchCatalogRPC(context.Background(), true)
	assert.NoError(t, err)
	assert.Nil(t, catalog)
}

func TestRefresher_TimeoutMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(250 * time.Millisecond)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	r, _, _ := newTestRefresher(t, srv.URL, 25*time.Millisecond, nil)

	_, err := r.FetchCatalogRPC(context.Background(), false)
	assert.ErrorIs(t, err, mcerrors.ErrCatalogRequestTimeout)
}

func TestRefresher_SilentlyRefreshNotifiesSubscribers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(catalogBody))
	}))
	defer srv.Close()

	r, _, _ := newTestRefresher(t, srv.URL, 0, nil)
	sub := r.Subscribe()

	r.SilentlyRefresh(context.Background())

	select {
	case catalog := <-sub:
		assert.Len(t, catalog.Items, 2)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive catalog")
	}
}

func TestRefresher_SilentlyRefreshFailureSendsNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r, _, _ := newTestRefresher(t, srv.URL, 0, nil)
	sub := r.Subscribe()

	r.SilentlyRefresh(context.Background())

	select {
	case <-sub:
		t.Fatal("unexpected catalog on failed refresh")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNormalize_EmptyInput(t *testing.T) {
	out := normalize(nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
	assert.IsType(t, []domain.CatalogItem{}, out)
}
