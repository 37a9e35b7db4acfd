package catalog

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fetchResult struct {
	page *Page
	err  error
}

type pendingFetch struct {
	query Query
	ctx   context.Context
	done  chan fetchResult
}

// blockingFetcher hands every call to the test, which decides when and how it resolves.
type blockingFetcher struct {
	calls chan *pendingFetch
}

func newBlockingFetcher() *blockingFetcher {
	return &blockingFetcher{calls: make(chan *pendingFetch, 16)}
}

func (f *blockingFetcher) FetchCatalog(ctx context.Context, q Query) (*Page, error) {
	p := &pendingFetch{query: q, ctx: ctx, done: make(chan fetchResult, 1)}
	f.calls <- p
	r := <-p.done
	return r.page, r.err
}

func (f *blockingFetcher) next(t *testing.T) *pendingFetch {
	t.Helper()
	select {
	case p := <-f.calls:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fetch")
		return nil
	}
}

type sessionFlag struct{ present atomic.Bool }

func (s *sessionFlag) HasSession() bool { return s.present.Load() }

func pageOf(totalPages int, titles ...string) *Page {
	items := make([]Item, len(titles))
	for i, title := range titles {
		items[i] = Item{ID: int64(i + 1), Title: title, Link: "https://example.com/" + title}
	}
	return &Page{Items: items, AllTags: []string{"Видео", "Музыка"}, TotalPages: totalPages}
}

func titles(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Title
	}
	return out
}

func waitForCounter(t *testing.T, label string, want float64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(catalogFetchesTotal.WithLabelValues(label)) >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("counter %q did not reach %v", label, want)
}

// loaded returns a controller whose initial fetch has committed a page.
func loaded(t *testing.T, f *blockingFetcher, page *Page) *Controller {
	t.Helper()
	c := NewController(f, nil, DefaultControllerConfig())
	c.Load()
	f.next(t).done <- fetchResult{page: page}
	c.Wait()
	return c
}

func TestNewController_InitialState(t *testing.T) {
	c := NewController(newBlockingFetcher(), nil, ControllerConfig{})

	st := c.Snapshot()
	if st.Page != 1 || st.Tag != "" || st.TotalPages != 1 {
		t.Errorf("initial state = %+v", st)
	}
	if !st.Loading {
		t.Error("controller should start in loading state")
	}
	if len(st.Items) != 0 {
		t.Errorf("initial items = %v, want empty", st.Items)
	}
	if q := c.Query(); q.PageSize != DefaultPageSize {
		t.Errorf("PageSize = %d, want %d", q.PageSize, DefaultPageSize)
	}
}

func TestController_LoadCommitsPage(t *testing.T) {
	f := newBlockingFetcher()
	c := NewController(f, nil, DefaultControllerConfig())

	c.Load()
	p := f.next(t)
	if want := (Query{Page: 1, PageSize: DefaultPageSize}); p.query != want {
		t.Errorf("query = %+v, want %+v", p.query, want)
	}
	if !c.Snapshot().Loading {
		t.Error("Loading should be true while the fetch is pending")
	}

	p.done <- fetchResult{page: pageOf(7, "a", "b")}
	c.Wait()

	st := c.Snapshot()
	if st.Loading {
		t.Error("Loading should be false after commit")
	}
	if !reflect.DeepEqual(titles(st.Items), []string{"a", "b"}) {
		t.Errorf("items = %v", titles(st.Items))
	}
	if st.TotalPages != 7 {
		t.Errorf("TotalPages = %d, want 7", st.TotalPages)
	}
	if !reflect.DeepEqual(st.AllTags, []string{"Видео", "Музыка"}) {
		t.Errorf("AllTags = %v", st.AllTags)
	}
	if !reflect.DeepEqual(st.Window, []int{1, 2, 3, 4, 5}) {
		t.Errorf("Window = %v", st.Window)
	}
}

func TestController_SelectTagResetsPage(t *testing.T) {
	f := newBlockingFetcher()
	c := loaded(t, f, pageOf(10, "p1"))

	if !c.SelectPage(5) {
		t.Fatal("SelectPage(5) should change the page")
	}
	f.next(t).done <- fetchResult{page: pageOf(10, "p5")}
	c.Wait()

	if !c.SelectTag("Видео") {
		t.Fatal("SelectTag should trigger a fetch")
	}
	p := f.next(t)
	if p.query.Page != 1 || p.query.Tag != "Видео" {
		t.Errorf("query after tag select = %+v, want page 1 tag Видео", p.query)
	}
	p.done <- fetchResult{page: pageOf(3, "v1")}
	c.Wait()

	st := c.Snapshot()
	if st.Page != 1 || st.Tag != "Видео" {
		t.Errorf("state = page %d tag %q", st.Page, st.Tag)
	}
}

func TestController_SelectSameTagOnFirstPageIsNoop(t *testing.T) {
	f := newBlockingFetcher()
	c := loaded(t, f, pageOf(3, "a"))

	if c.SelectTag("") {
		t.Error("selecting the active (empty) tag on page 1 should be a no-op")
	}
	select {
	case p := <-f.calls:
		t.Errorf("unexpected fetch %+v", p.query)
	default:
	}
}

func TestController_ClearTag(t *testing.T) {
	f := newBlockingFetcher()
	c := loaded(t, f, pageOf(3, "a"))

	c.SelectTag("Музыка")
	f.next(t).done <- fetchResult{page: pageOf(1, "m")}
	c.Wait()

	if !c.ClearTag() {
		t.Fatal("ClearTag should trigger a fetch")
	}
	p := f.next(t)
	if p.query.Tag != "" || p.query.Page != 1 {
		t.Errorf("query = %+v, want unfiltered page 1", p.query)
	}
	p.done <- fetchResult{page: pageOf(3, "a")}
	c.Wait()
}

func TestController_SelectPage(t *testing.T) {
	tests := []struct {
		name      string
		from      int
		selectN   int
		wantPage  int
		wantFetch bool
	}{
		{name: "next page", from: 1, selectN: 2, wantPage: 2, wantFetch: true},
		{name: "current page is a no-op", from: 1, selectN: 1, wantPage: 1, wantFetch: false},
		{name: "beyond total is clamped", from: 1, selectN: 99, wantPage: 4, wantFetch: true},
		{name: "clamped onto current is a no-op", from: 4, selectN: 99, wantPage: 4, wantFetch: false},
		{name: "below one is clamped", from: 3, selectN: -2, wantPage: 1, wantFetch: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBlockingFetcher()
			c := loaded(t, f, pageOf(4, "x"))
			if tt.from != 1 {
				c.SelectPage(tt.from)
				f.next(t).done <- fetchResult{page: pageOf(4, "x")}
				c.Wait()
			}

			changed := c.SelectPage(tt.selectN)
			if changed != tt.wantFetch {
				t.Errorf("SelectPage(%d) = %v, want %v", tt.selectN, changed, tt.wantFetch)
			}
			if tt.wantFetch {
				p := f.next(t)
				if p.query.Page != tt.wantPage {
					t.Errorf("fetched page = %d, want %d", p.query.Page, tt.wantPage)
				}
				p.done <- fetchResult{page: pageOf(4, "y")}
				c.Wait()
			}
			if got := c.Snapshot().Page; got != tt.wantPage {
				t.Errorf("Page = %d, want %d", got, tt.wantPage)
			}
		})
	}
}

func TestController_PrevNextEdges(t *testing.T) {
	f := newBlockingFetcher()
	c := loaded(t, f, pageOf(2, "a"))

	if c.PrevPage() {
		t.Error("PrevPage on page 1 should be a no-op")
	}
	if !c.NextPage() {
		t.Fatal("NextPage on page 1 of 2 should move")
	}
	f.next(t).done <- fetchResult{page: pageOf(2, "b")}
	c.Wait()

	if c.NextPage() {
		t.Error("NextPage on the last page should be a no-op")
	}
	if !c.PrevPage() {
		t.Fatal("PrevPage on page 2 should move")
	}
	f.next(t).done <- fetchResult{page: pageOf(2, "a")}
	c.Wait()

	if got := c.Snapshot().Page; got != 1 {
		t.Errorf("Page = %d, want 1", got)
	}
}

func TestController_StaleResultResolvedFirstIsDiscarded(t *testing.T) {
	f := newBlockingFetcher()
	c := loaded(t, f, pageOf(3, "initial"))

	c.SelectTag("A")
	pA := f.next(t)
	c.SelectTag("B")
	pB := f.next(t)

	staleBefore := testutil.ToFloat64(catalogFetchesTotal.WithLabelValues("stale"))
	pA.done <- fetchResult{page: pageOf(1, "from-A")}
	waitForCounter(t, "stale", staleBefore+1)

	st := c.Snapshot()
	if !st.Loading {
		t.Error("Loading should stay true until the active query resolves")
	}
	if reflect.DeepEqual(titles(st.Items), []string{"from-A"}) {
		t.Fatal("stale result A was committed")
	}

	pB.done <- fetchResult{page: pageOf(2, "from-B")}
	c.Wait()

	st = c.Snapshot()
	if !reflect.DeepEqual(titles(st.Items), []string{"from-B"}) {
		t.Errorf("items = %v, want B's result", titles(st.Items))
	}
	if st.Tag != "B" || st.TotalPages != 2 || st.Loading {
		t.Errorf("state = %+v", st)
	}
}

func TestController_StaleResultResolvedLastIsDiscarded(t *testing.T) {
	f := newBlockingFetcher()
	c := loaded(t, f, pageOf(3, "initial"))

	c.SelectTag("A")
	pA := f.next(t)
	c.SelectTag("B")
	pB := f.next(t)

	if pA.ctx.Err() == nil {
		t.Error("superseded fetch context should be cancelled")
	}

	committedBefore := testutil.ToFloat64(catalogFetchesTotal.WithLabelValues("committed"))
	pB.done <- fetchResult{page: pageOf(2, "from-B")}
	waitForCounter(t, "committed", committedBefore+1)

	pA.done <- fetchResult{page: pageOf(1, "from-A")}
	c.Wait()

	st := c.Snapshot()
	if !reflect.DeepEqual(titles(st.Items), []string{"from-B"}) {
		t.Errorf("items = %v, want B's result", titles(st.Items))
	}
}

func TestController_FetchFailureKeepsItems(t *testing.T) {
	f := newBlockingFetcher()
	c := loaded(t, f, pageOf(3, "kept"))

	c.SelectPage(2)
	fetchErr := errors.New("connection refused")
	f.next(t).done <- fetchResult{err: fetchErr}
	c.Wait()

	st := c.Snapshot()
	if st.Loading {
		t.Error("Loading should resolve to false after a failure")
	}
	if !reflect.DeepEqual(titles(st.Items), []string{"kept"}) {
		t.Errorf("items = %v, want previous items", titles(st.Items))
	}
	if !errors.Is(st.Err, fetchErr) {
		t.Errorf("Err = %v, want %v", st.Err, fetchErr)
	}
	if st.Page != 2 {
		t.Errorf("Page = %d, want 2", st.Page)
	}

	c.Retry()
	p := f.next(t)
	if p.query.Page != 2 {
		t.Errorf("retry query = %+v, want page 2", p.query)
	}
	p.done <- fetchResult{page: pageOf(3, "page-two")}
	c.Wait()

	st = c.Snapshot()
	if st.Err != nil {
		t.Errorf("Err = %v, want nil after successful retry", st.Err)
	}
	if !reflect.DeepEqual(titles(st.Items), []string{"page-two"}) {
		t.Errorf("items = %v", titles(st.Items))
	}
}

func TestController_FirstLoadFailureLeavesEmptyList(t *testing.T) {
	f := newBlockingFetcher()
	c := NewController(f, nil, DefaultControllerConfig())

	c.Load()
	f.next(t).done <- fetchResult{err: errors.New("boom")}
	c.Wait()

	st := c.Snapshot()
	if len(st.Items) != 0 || st.Loading || st.TotalPages != 1 {
		t.Errorf("state after failed first load = %+v", st)
	}
}

func TestController_NilPageNormalized(t *testing.T) {
	f := newBlockingFetcher()
	c := loaded(t, f, nil)

	st := c.Snapshot()
	if st.Items == nil || st.AllTags == nil || st.TotalPages != 1 {
		t.Errorf("state = %+v", st)
	}
}

func TestController_SelectItemReadsSessionAtCallTime(t *testing.T) {
	session := &sessionFlag{}
	c := NewController(newBlockingFetcher(), session, DefaultControllerConfig())
	item := Item{ID: 9, Link: "https://example.com/9"}

	if got := c.SelectItem(item); got.Kind != ActionRedirectToPaywall {
		t.Errorf("without session: %+v", got)
	}

	session.present.Store(true)
	if got := c.SelectItem(item); got.Kind != ActionOpenExternal || got.Link != item.Link {
		t.Errorf("with session: %+v", got)
	}

	session.present.Store(false)
	if got := c.SelectItem(item); got.Kind != ActionRedirectToPaywall {
		t.Errorf("after logout: %+v", got)
	}
}

func TestController_SelectItemWithoutSessionChecker(t *testing.T) {
	c := NewController(newBlockingFetcher(), nil, DefaultControllerConfig())

	if got := c.SelectItem(Item{Link: "x"}); got.Kind != ActionRedirectToPaywall {
		t.Errorf("nil session checker should redirect, got %+v", got)
	}
}

func TestController_ItemLookup(t *testing.T) {
	f := newBlockingFetcher()
	c := loaded(t, f, pageOf(1, "a", "b"))

	item, ok := c.Item(2)
	if !ok || item.Title != "b" {
		t.Errorf("Item(2) = %+v, %v", item, ok)
	}
	if _, ok := c.Item(42); ok {
		t.Error("Item(42) should not be found")
	}
}

func TestController_SubscribeReceivesTransitions(t *testing.T) {
	f := newBlockingFetcher()
	c := NewController(f, nil, DefaultControllerConfig())

	var states []State
	done := make(chan struct{}, 4)
	c.Subscribe(func(s State) {
		states = append(states, s)
		done <- struct{}{}
	})

	c.Load()
	<-done
	f.next(t).done <- fetchResult{page: pageOf(2, "a")}
	<-done
	c.Wait()

	if len(states) != 2 {
		t.Fatalf("got %d notifications, want 2", len(states))
	}
	if !states[0].Loading || states[1].Loading {
		t.Errorf("loading sequence = %v, %v", states[0].Loading, states[1].Loading)
	}
	if states[1].Version != states[0].Version {
		t.Errorf("commit should carry the version it was issued for: %d vs %d", states[1].Version, states[0].Version)
	}
}

func TestController_SubscribeNeverGoesBack(t *testing.T) {
	fetcher := FetcherFunc(func(ctx context.Context, q Query) (*Page, error) {
		return pageOf(1, "a"), nil
	})
	c := NewController(fetcher, nil, DefaultControllerConfig())

	var mu sync.Mutex
	var got []State
	c.Subscribe(func(s State) {
		if s.Loading {
			// Sit on the loading notification until the fetch has committed,
			// giving the commit a chance to be delivered first.
			deadline := time.Now().Add(2 * time.Second)
			for c.Snapshot().Loading && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			time.Sleep(20 * time.Millisecond)
		}
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})

	c.Load()
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(got) == 0 || len(got) > 2 {
		t.Fatalf("got %d notifications, want 1 or 2", len(got))
	}
	last := got[len(got)-1]
	if last.Loading {
		t.Errorf("last notification is loading, snapshot loading = %v", c.Snapshot().Loading)
	}
	if !reflect.DeepEqual(titles(last.Items), []string{"a"}) {
		t.Errorf("last items = %v, want [a]", titles(last.Items))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Loading && !got[i-1].Loading {
			t.Errorf("notification %d went back to loading", i)
		}
	}
}

func TestController_CloseDiscardsInFlight(t *testing.T) {
	f := newBlockingFetcher()
	c := NewController(f, nil, DefaultControllerConfig())

	c.Load()
	p := f.next(t)
	go func() {
		<-p.ctx.Done()
		p.done <- fetchResult{err: p.ctx.Err()}
	}()
	c.Close()

	st := c.Snapshot()
	if st.Loading || st.Err != nil {
		t.Errorf("state after Close = %+v", st)
	}
}

func TestState_Controls(t *testing.T) {
	st := State{Page: 3, TotalPages: 3}

	ctrl := st.Controls(5)
	if ctrl.HasNext || !ctrl.HasPrev {
		t.Errorf("controls = %+v", ctrl)
	}
}
