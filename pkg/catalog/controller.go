package catalog

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Sternrassler/mediahub-client/pkg/logging"
	"github.com/Sternrassler/mediahub-client/pkg/pagination"
	"github.com/rs/zerolog"
)

// ControllerConfig holds the controller settings.
type ControllerConfig struct {
	// PageSize is sent with every query.
	PageSize int

	// WindowSize is the number of page links in State.Window.
	WindowSize int

	// FetchTimeout bounds a single fetch.
	FetchTimeout time.Duration

	// PaywallURL is where selections without a session are redirected.
	PaywallURL string
}

// DefaultControllerConfig returns the configuration used by the catalog view.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		PageSize:     DefaultPageSize,
		WindowSize:   pagination.DefaultWindowSize,
		FetchTimeout: 30 * time.Second,
		PaywallURL:   DefaultPaywallURL,
	}
}

// State is a snapshot of what the catalog view displays.
type State struct {
	Page       int
	Tag        string
	Items      []Item
	AllTags    []string
	TotalPages int
	Loading    bool
	// Err is the failure of the last fetch for the active query, if any.
	// Items keep their previous value when it is set.
	Err     error
	Window  []int
	Version uint64
}

// Controls returns the previous/next navigation for the snapshot.
func (s State) Controls(windowSize int) pagination.Controls {
	return pagination.NewControls(s.Page, s.TotalPages, windowSize)
}

// Controller is the single owner of the displayed catalog state.
//
// Every change to the tag or page bumps a query version and starts a fetch on
// its own goroutine. A fetch result is committed only if its version is still
// the current one, so a slow response for an old query never overwrites a
// newer selection.
type Controller struct {
	fetcher Fetcher
	session SessionChecker
	gate    Gate
	config  ControllerConfig
	logger  zerolog.Logger

	inflight sync.WaitGroup

	// notifyMu serializes listener calls; delivered is the seq of the last
	// snapshot handed to listeners.
	notifyMu  sync.Mutex
	delivered uint64

	mu         sync.Mutex
	seq        uint64
	version    uint64
	cancel     context.CancelFunc
	page       int
	tag        string
	items      []Item
	allTags    []string
	totalPages int
	loading    bool
	lastErr    error
	listeners  []func(State)
}

// NewController creates a controller. session may be nil, in which case every
// selection is treated as unauthenticated.
func NewController(fetcher Fetcher, session SessionChecker, cfg ControllerConfig) *Controller {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = pagination.DefaultWindowSize
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}

	return &Controller{
		fetcher:    fetcher,
		session:    session,
		gate:       NewGate(cfg.PaywallURL),
		config:     cfg,
		logger:     logging.NewLogger("catalog-controller"),
		page:       1,
		items:      []Item{},
		allTags:    []string{},
		totalPages: 1,
		loading:    true,
	}
}

// Subscribe registers fn to be called after state transitions. Callbacks run
// one at a time outside the controller lock, possibly on a fetch goroutine,
// and in transition order; a transition overtaken by a newer one is skipped.
// A callback must not change the query or wait for a later notification.
func (c *Controller) Subscribe(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Load issues the initial fetch for the current query.
func (c *Controller) Load() {
	c.mu.Lock()
	c.onQueryChange()
	c.emit()
}

// Retry re-issues the active query, typically after a failed fetch.
func (c *Controller) Retry() {
	c.mu.Lock()
	c.logger.Info().
		Str("tag", c.tag).
		Int("page", c.page).
		Msg("Retrying catalog fetch")
	c.onQueryChange()
	c.emit()
}

// SelectTag filters the catalog by tag and restarts pagination at page 1.
// An empty tag removes the filter. Selecting the active tag on page 1 is a no-op.
func (c *Controller) SelectTag(tag string) bool {
	c.mu.Lock()
	if tag == c.tag && c.page == 1 {
		c.mu.Unlock()
		return false
	}
	c.tag = tag
	c.page = 1
	c.onQueryChange()
	c.emit()
	return true
}

// ClearTag removes the tag filter.
func (c *Controller) ClearTag() bool {
	return c.SelectTag("")
}

// SelectPage moves to page n, clamped to [1, totalPages]. Selecting the
// current page is a no-op.
func (c *Controller) SelectPage(n int) bool {
	c.mu.Lock()
	n = pagination.Clamp(n, c.totalPages)
	if n == c.page {
		c.mu.Unlock()
		return false
	}
	c.page = n
	c.onQueryChange()
	c.emit()
	return true
}

// NextPage advances one page; a no-op on the last page.
func (c *Controller) NextPage() bool {
	c.mu.Lock()
	next := c.page + 1
	c.mu.Unlock()
	return c.SelectPage(next)
}

// PrevPage goes back one page; a no-op on page 1.
func (c *Controller) PrevPage() bool {
	c.mu.Lock()
	prev := c.page - 1
	c.mu.Unlock()
	return c.SelectPage(prev)
}

// SelectItem resolves a selection through the access gate. Session presence
// is read at call time.
func (c *Controller) SelectItem(item Item) Action {
	hasSession := c.session != nil && c.session.HasSession()
	action := c.gate.Resolve(item, hasSession)

	c.logger.Debug().
		Int64("item_id", item.ID).
		Bool("has_session", hasSession).
		Str("action", string(action.Kind)).
		Msg("Item selected")

	return action
}

// Item returns the displayed item with the given id.
func (c *Controller) Item(id int64) (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range c.items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Query returns the active query.
func (c *Controller) Query() Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queryLocked()
}

// Snapshot returns a copy of the displayed state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Wait blocks until no fetch is in flight.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Close cancels the in-flight fetch, if any. Its result is discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	c.version++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.loading = false
	c.mu.Unlock()
	c.inflight.Wait()
}

func (c *Controller) queryLocked() Query {
	return Query{Tag: c.tag, Page: c.page, PageSize: c.config.PageSize}
}

func (c *Controller) snapshotLocked() State {
	return State{
		Page:       c.page,
		Tag:        c.tag,
		Items:      slices.Clone(c.items),
		AllTags:    slices.Clone(c.allTags),
		TotalPages: c.totalPages,
		Loading:    c.loading,
		Err:        c.lastErr,
		Window:     pagination.ComputeWindow(c.page, c.totalPages, c.config.WindowSize),
		Version:    c.version,
	}
}

// onQueryChange starts a fetch for the active query. Must be called with c.mu held.
func (c *Controller) onQueryChange() {
	c.version++
	version := c.version
	query := c.queryLocked()

	// Superseded results are discarded by version; cancelling only frees the connection.
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.config.FetchTimeout)
	c.cancel = cancel
	c.loading = true

	c.logger.Debug().
		Uint64("query_version", version).
		Str("tag", query.Tag).
		Int("page", query.Page).
		Msg("Catalog query changed")

	c.inflight.Add(1)
	go c.fetch(ctx, cancel, version, query)
}

func (c *Controller) fetch(ctx context.Context, cancel context.CancelFunc, version uint64, q Query) {
	defer c.inflight.Done()
	defer cancel()

	start := time.Now()
	page, err := c.fetcher.FetchCatalog(ctx, q)
	catalogFetchDuration.Observe(time.Since(start).Seconds())

	c.mu.Lock()
	if version != c.version {
		c.mu.Unlock()
		catalogFetchesTotal.WithLabelValues("stale").Inc()
		c.logger.Debug().
			Uint64("query_version", version).
			Str("tag", q.Tag).
			Int("page", q.Page).
			Msg("Discarding stale catalog result")
		return
	}

	c.loading = false
	c.cancel = nil
	if err != nil {
		c.lastErr = err
		catalogFetchesTotal.WithLabelValues("failed").Inc()
		c.logger.Warn().
			Err(err).
			Uint64("query_version", version).
			Str("tag", q.Tag).
			Int("page", q.Page).
			Msg("Catalog fetch failed, keeping previous items")
	} else {
		if page == nil {
			page = &Page{}
		}
		page.Normalize()
		c.items = slices.Clone(page.Items)
		c.allTags = slices.Clone(page.AllTags)
		c.totalPages = page.TotalPages
		c.lastErr = nil
		catalogFetchesTotal.WithLabelValues("committed").Inc()
		c.logger.Info().
			Uint64("query_version", version).
			Str("tag", q.Tag).
			Int("page", q.Page).
			Int("items", len(page.Items)).
			Int("total_pages", page.TotalPages).
			Msg("Catalog page committed")
	}
	c.emit()
}

// emit snapshots the state, releases c.mu and notifies listeners. A snapshot
// older than one already delivered is dropped, so listeners never go back in time.
func (c *Controller) emit() {
	c.seq++
	seq := c.seq
	state := c.snapshotLocked()
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if seq < c.delivered {
		return
	}
	c.delivered = seq
	for _, fn := range listeners {
		fn(state)
	}
}
