package models

// PageMeta carries pagination metadata for list responses
type PageMeta struct {
	CurrentPage int    `json:"current_page"`
	From        *int   `json:"from"` // 1-based position of the first record, nil when empty
	LastPage    int    `json:"last_page"`
	PerPage     int    `json:"per_page"`
	To          *int   `json:"to"`
	Total       int    `json:"total"`
	Path        string `json:"path"`
}

// PageLinks holds navigation URLs for list responses
type PageLinks struct {
	First string  `json:"first"`
	Last  string  `json:"last"`
	Prev  *string `json:"prev"`
	Next  *string `json:"next"`
}

// Page is the {data, links, meta} envelope returned by list endpoints
type Page[T any] struct {
	Data  []T       `json:"data"`
	Links PageLinks `json:"links"`
	Meta  PageMeta  `json:"meta"`
}

// NewPageMeta computes pagination metadata for a page holding count records
// out of total.
func NewPageMeta(page, perPage, total, count int, path string) PageMeta {
	lastPage := 1
	if perPage > 0 && total > 0 {
		lastPage = (total + perPage - 1) / perPage
	}

	meta := PageMeta{
		CurrentPage: page,
		LastPage:    lastPage,
		PerPage:     perPage,
		Total:       total,
		Path:        path,
	}
	if count > 0 {
		from := (page-1)*perPage + 1
		to := from + count - 1
		meta.From = &from
		meta.To = &to
	}
	return meta
}
