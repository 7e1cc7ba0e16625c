// Package catalog fetches, normalizes, and caches the MCP marketplace
// catalog. The catalog is replaced wholesale on each successful refresh;
// consumers never observe a partially updated list.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/CardSorting/MarieCoder-sub006/internal/bus"
	"github.com/CardSorting/MarieCoder-sub006/internal/clock"
	"github.com/CardSorting/MarieCoder-sub006/internal/constants"
	"github.com/CardSorting/MarieCoder-sub006/internal/ctxutil"
	"github.com/CardSorting/MarieCoder-sub006/internal/domain"
	mcerrors "github.com/CardSorting/MarieCoder-sub006/internal/errors"
	"github.com/CardSorting/MarieCoder-sub006/internal/metrics"
	"github.com/CardSorting/MarieCoder-sub006/internal/notify"
	"github.com/CardSorting/MarieCoder-sub006/internal/state"
)

// RefreshCompletedPayload is the payload of EventMarketplaceRefreshCompleted.
type RefreshCompletedPayload struct {
	Catalog   domain.MarketplaceCatalog
	ItemCount int
	Silent    bool
}

// ErrorPayload is the payload of EventMarketplaceError.
type ErrorPayload struct {
	Err    error
	Silent bool
}

// wireItem mirrors one upstream catalog entry. Counters and tags are
// pointers/nilable so missing fields are distinguishable and can be
// normalized to zero values.
type wireItem struct {
	McpID         string   `json:"mcpId"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	GithubStars   *int     `json:"githubStars"`
	DownloadCount *int     `json:"downloadCount"`
	Tags          []string `json:"tags"`
}

// Refresher downloads the marketplace catalog, caches it in the persistent
// store, and fans the result out on the bus and to channel subscribers.
type Refresher struct {
	client   *http.Client
	endpoint string
	store    state.Store
	bus      *bus.Bus
	notifier notify.Sink
	logger   zerolog.Logger
	metrics  metrics.Recorder
	clock    clock.Clock

	mu          sync.Mutex
	subscribers []chan domain.MarketplaceCatalog
}

// NewRefresher creates a catalog refresher against the given endpoint.
// timeout bounds each catalog request; zero selects the default.
func NewRefresher(endpoint string, timeout time.Duration, store state.Store, b *bus.Bus, notifier notify.Sink, logger zerolog.Logger, rec metrics.Recorder, clk clock.Clock) *Refresher {
	if endpoint == "" {
		endpoint = constants.DefaultMarketplaceEndpoint
	}
	if timeout <= 0 {
		timeout = constants.DefaultCatalogRequestTimeout
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Refresher{
		client:   &http.Client{Timeout: timeout},
		endpoint: endpoint,
		store:    store,
		bus:      b,
		notifier: notifier,
		logger:   logger.With().Str("component", "catalog").Logger(),
		metrics:  rec,
		clock:    clk,
	}
}

// FetchCatalog refreshes the catalog and never returns an error: failures are
// announced on the bus, surfaced to the user unless silent, and yield nil.
func (r *Refresher) FetchCatalog(ctx context.Context, silent bool) *domain.MarketplaceCatalog {
	catalog, err := r.refresh(ctx, silent)
	if err != nil {
		r.reportFailure(ctx, err, silent)
		return nil
	}
	return catalog
}

// FetchCatalogRPC refreshes the catalog and propagates failures to the
// caller. When silent, failures are logged and swallowed instead.
func (r *Refresher) FetchCatalogRPC(ctx context.Context, silent bool) (*domain.MarketplaceCatalog, error) {
	catalog, err := r.refresh(ctx, silent)
	if err != nil {
		if silent {
			r.logger.Warn().Err(err).Msg("silent catalog refresh failed")
			return nil, nil
		}
		return nil, err
	}
	return catalog, nil
}

// SilentlyRefresh refreshes the catalog in the background and pushes the
// result to channel subscribers. Failures are logged, never surfaced.
func (r *Refresher) SilentlyRefresh(ctx context.Context) {
	catalog, err := r.FetchCatalogRPC(ctx, true)
	if err != nil || catalog == nil {
		return
	}

	r.mu.Lock()
	subs := append([]chan domain.MarketplaceCatalog(nil), r.subscribers...)
	r.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- *catalog:
		default:
			r.logger.Warn().Msg("catalog subscriber channel full, dropping update")
		}
	}
}

// Subscribe returns a channel receiving catalogs produced by SilentlyRefresh.
// Slow subscribers miss updates rather than blocking the refresher.
func (r *Refresher) Subscribe() <-chan domain.MarketplaceCatalog {
	ch := make(chan domain.MarketplaceCatalog, 1)
	r.mu.Lock()
	r.subscribers = append(r.subscribers, ch)
	r.mu.Unlock()
	return ch
}

// CachedCatalog returns the last successfully fetched catalog from the store.
func (r *Refresher) CachedCatalog(ctx context.Context) (*domain.MarketplaceCatalog, error) {
	var catalog domain.MarketplaceCatalog
	if err := r.store.GetGlobal(ctx, constants.KeyMarketplaceCatalog, &catalog); err != nil {
		return nil, mcerrors.Wrap(err, "failed to read cached catalog")
	}
	return &catalog, nil
}

// refresh performs one full fetch-normalize-cache-announce cycle. silent is
// carried into the completion payload so subscribers can tell background
// refreshes from user-initiated ones.
func (r *Refresher) refresh(ctx context.Context, silent bool) (*domain.MarketplaceCatalog, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	items, err := r.download(ctx)
	if err != nil {
		r.metrics.CatalogRefreshed(false, 0)
		return nil, err
	}

	catalog := &domain.MarketplaceCatalog{
		Items:     normalize(items),
		FetchedAt: r.clock.Now(),
	}

	// Cache failures do not fail the refresh; the in-memory catalog is
	// still served this session.
	if err := r.store.SetGlobal(ctx, constants.KeyMarketplaceCatalog, catalog); err != nil {
		r.logger.Warn().Err(err).Msg("failed to cache marketplace catalog")
	}

	r.metrics.CatalogRefreshed(true, len(catalog.Items))
	r.logger.Info().Int("item_count", len(catalog.Items)).Msg("marketplace catalog refreshed")

	completed := RefreshCompletedPayload{
		Catalog:   *catalog,
		ItemCount: len(catalog.Items),
		Silent:    silent,
	}
	if err := r.bus.Emit(ctx, bus.EventMarketplaceRefreshCompleted, completed); err != nil {
		return nil, mcerrors.Wrap(err, "failed to announce catalog refresh")
	}

	return catalog, nil
}

// download fetches and decodes the raw catalog from the marketplace endpoint.
func (r *Refresher) download(ctx context.Context) ([]wireItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
	if err != nil {
		return nil, mcerrors.Wrapf(mcerrors.ErrCatalogFetch, "failed to build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, mcerrors.Wrapf(mcerrors.ErrCatalogRequestTimeout, "endpoint '%s'", r.endpoint)
		}
		return nil, mcerrors.Wrapf(mcerrors.ErrCatalogFetch, "request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, mcerrors.Wrapf(mcerrors.ErrCatalogFetch, "unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mcerrors.Wrapf(mcerrors.ErrCatalogFetch, "failed to read response: %v", err)
	}

	var items []wireItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("%w: %w", mcerrors.ErrCatalogMalformed, err)
	}

	return items, nil
}

// normalize fills missing counters and tag lists so consumers never see
// absent fields.
func normalize(items []wireItem) []domain.CatalogItem {
	out := make([]domain.CatalogItem, 0, len(items))
	for _, it := range items {
		item := domain.CatalogItem{
			McpID:       it.McpID,
			Name:        it.Name,
			Description: it.Description,
			Tags:        it.Tags,
		}
		if it.GithubStars != nil {
			item.GithubStars = *it.GithubStars
		}
		if it.DownloadCount != nil {
			item.DownloadCount = *it.DownloadCount
		}
		if item.Tags == nil {
			item.Tags = []string{}
		}
		out = append(out, item)
	}
	return out
}

// reportFailure announces a refresh failure and surfaces it to the user
// unless the refresh was silent.
func (r *Refresher) reportFailure(ctx context.Context, err error, silent bool) {
	r.logger.Error().Err(err).Bool("silent", silent).Msg("marketplace catalog refresh failed")
	_ = r.bus.Emit(ctx, bus.EventMarketplaceError, ErrorPayload{Err: err, Silent: silent})

	if silent || r.notifier == nil {
		return
	}
	r.notifier.ShowMessage(ctx, notify.Message{
		Type: notify.TypeError,
		Text: "Failed to load MCP marketplace. Please check your connection and try again.",
	})
}

// isTimeout reports whether err is a request timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
