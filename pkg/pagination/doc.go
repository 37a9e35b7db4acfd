// Package pagination provides the page-number window shown under the catalog
// and parallel batch fetching for exporting every page of a catalog query.
//
// The window is a sliding run of at most DefaultWindowSize page numbers:
//
//	pagination.ComputeWindow(1, 3, 5)   // [1 2 3]
//	pagination.ComputeWindow(2, 20, 5)  // [1 2 3 4 5]
//	pagination.ComputeWindow(10, 20, 5) // [8 9 10 11 12]
//	pagination.ComputeWindow(19, 20, 5) // [16 17 18 19 20]
//
// Near the edges the window stops sliding, so the current page is not always
// centered.
//
// The batch fetcher:
//   - Fetches the first page to learn the total page count
//   - Spawns a worker pool (default 4 workers)
//   - Distributes the remaining pages across workers
//   - Returns partial data together with the first worker error
//
// Example usage:
//
//	fetcher := pagination.NewBatchFetcher(func(ctx context.Context, page int) (*catalog.Page, int, error) {
//		p, err := api.FetchCatalog(ctx, catalog.Query{Tag: "Видео", Page: page, PageSize: 12})
//		if err != nil {
//			return nil, 0, err
//		}
//		return p, p.TotalPages, nil
//	}, pagination.DefaultConfig())
//	pages, err := fetcher.FetchAllPages(ctx)
package pagination
