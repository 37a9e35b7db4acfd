package pagination

// DefaultWindowSize is the number of page links shown at once.
const DefaultWindowSize = 5

// ComputeWindow returns the page numbers to display for the given position.
// The result always holds min(windowSize, totalPages) consecutive pages within
// [1, totalPages]. A totalPages below 1 is treated as a single page and a
// windowSize below 1 falls back to DefaultWindowSize.
func ComputeWindow(currentPage, totalPages, windowSize int) []int {
	if windowSize < 1 {
		windowSize = DefaultWindowSize
	}
	if totalPages < 1 {
		totalPages = 1
	}

	// half is 2 for the default window; the edge thresholds follow it.
	half := windowSize / 2

	var first int
	switch {
	case totalPages <= windowSize:
		return pageRange(1, totalPages)
	case currentPage <= half+1:
		first = 1
	case currentPage >= totalPages-half:
		first = totalPages - windowSize + 1
	default:
		first = currentPage - half
	}

	return pageRange(first, first+windowSize-1)
}

func pageRange(first, last int) []int {
	pages := make([]int, 0, last-first+1)
	for p := first; p <= last; p++ {
		pages = append(pages, p)
	}
	return pages
}

// Controls describes the previous/next buttons around the window.
type Controls struct {
	Current int
	Total   int
	Window  []int
	HasPrev bool
	HasNext bool
	Prev    int
	Next    int
}

// NewControls clamps currentPage into [1, totalPages] and derives the
// navigation state for it.
func NewControls(currentPage, totalPages, windowSize int) Controls {
	if totalPages < 1 {
		totalPages = 1
	}
	currentPage = Clamp(currentPage, totalPages)

	return Controls{
		Current: currentPage,
		Total:   totalPages,
		Window:  ComputeWindow(currentPage, totalPages, windowSize),
		HasPrev: currentPage > 1,
		HasNext: currentPage < totalPages,
		Prev:    max(1, currentPage-1),
		Next:    min(totalPages, currentPage+1),
	}
}

// Clamp limits page to [1, totalPages].
func Clamp(page, totalPages int) int {
	if totalPages < 1 {
		totalPages = 1
	}
	return min(max(page, 1), totalPages)
}
