package helpers

// Page describes one page of a list
type Page struct {
	Number int
	Start  int
	End    int
	Pages  int
}

// HasPrev reports whether a previous page exists
func (p Page) HasPrev() bool {
	return p.Number > 0
}

// HasNext reports whether a next page exists
func (p Page) HasNext() bool {
	return p.Number < p.Pages-1
}

// Paginate returns the bounds of page number page in a list of total items.
// Out of range page numbers are clamped to the first or last page.
func Paginate(total, page, size int) Page {
	if size <= 0 {
		size = 1
	}

	pages := (total + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	if page >= pages {
		page = pages - 1
	}
	if page < 0 {
		page = 0
	}

	start := page * size
	end := start + size
	if end > total {
		end = total
	}
	if start > total {
		start = total
	}

	return Page{Number: page, Start: start, End: end, Pages: pages}
}
