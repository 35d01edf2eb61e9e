package scraping

import "encoding/json"

// Pagination describes a window over a job's flattened creators.
// NextOffset is nil when the window reaches the end.
type Pagination struct {
	Total      int  `json:"total"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	NextOffset *int `json:"nextOffset"`
}

// NewPagination computes the window metadata for total items.
func NewPagination(total, limit, offset int) Pagination {
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	p := Pagination{Total: total, Limit: limit, Offset: offset}
	if offset+limit < total {
		next := offset + limit
		p.NextOffset = &next
	}
	return p
}

// Bounds returns the half-open slice range [start, end) the window covers.
func (p Pagination) Bounds() (int, int) {
	start := min(p.Offset, p.Total)
	end := min(start+p.Limit, p.Total)
	return start, end
}

// FlattenPage concatenates result batches in order and slices the window.
func FlattenPage(batches []Result, limit, offset int) Page {
	total := 0
	for _, b := range batches {
		total += len(b.Creators)
	}
	p := NewPagination(total, limit, offset)
	start, end := p.Bounds()
	creators := make([]json.RawMessage, 0, end-start)
	idx := 0
	for _, b := range batches {
		for _, c := range b.Creators {
			if idx >= end {
				break
			}
			if idx >= start {
				creators = append(creators, c)
			}
			idx++
		}
	}
	return Page{Creators: creators, Pagination: p}
}
