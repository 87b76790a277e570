// Package pagination covers both sides of page-numbered listings: parsing
// page parameters from incoming requests and the {data, links, meta}
// envelope used by the provider and by our own list endpoints.
package pagination

import (
	"fmt"
	"net/http"
	"strconv"
)

// MaxPerPage caps per_page on incoming requests.
const MaxPerPage = 100

// Params holds pagination parameters extracted from query strings.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Offset  int `json:"-"`
}

// DefaultParams returns sensible pagination defaults.
func DefaultParams() Params {
	return Params{
		Page:    1,
		PerPage: 20,
		Offset:  0,
	}
}

// FromRequest extracts pagination parameters from an HTTP request. Invalid
// values fall back to the defaults.
func FromRequest(r *http.Request) Params {
	p := DefaultParams()
	q := r.URL.Query()

	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil && v > 0 && v <= MaxPerPage {
		p.PerPage = v
	}

	p.Offset = (p.Page - 1) * p.PerPage
	return p
}

// Meta is the page metadata block of a list response.
type Meta struct {
	CurrentPage int    `json:"current_page"`
	From        int    `json:"from"`
	LastPage    int    `json:"last_page"`
	Path        string `json:"path,omitempty"`
	PerPage     int    `json:"per_page"`
	To          int    `json:"to"`
	Total       int    `json:"total"`
}

// HasNext reports whether a page follows the current one.
func (m Meta) HasNext() bool {
	return m.CurrentPage < m.LastPage
}

// Validate checks the structural invariants of a meta block.
func (m Meta) Validate() error {
	if m.CurrentPage < 1 {
		return fmt.Errorf("current_page %d is not positive", m.CurrentPage)
	}
	if m.LastPage < 1 {
		return fmt.Errorf("last_page %d is not positive", m.LastPage)
	}
	if m.CurrentPage > m.LastPage {
		return fmt.Errorf("current_page %d exceeds last_page %d", m.CurrentPage, m.LastPage)
	}
	return nil
}

// Links carries navigation URLs; absent links are null.
type Links struct {
	First *string `json:"first"`
	Last  *string `json:"last"`
	Prev  *string `json:"prev"`
	Next  *string `json:"next"`
}

// Page is a paginated list response.
type Page[T any] struct {
	Data  []T   `json:"data"`
	Links Links `json:"links"`
	Meta  Meta  `json:"meta"`
}

// NewPage builds a page for data, which holds the rows of params.Page out of
// total rows. path is the listing URL without query string.
func NewPage[T any](data []T, total int, params Params, path string) Page[T] {
	if data == nil {
		data = []T{}
	}

	lastPage := total / params.PerPage
	if total%params.PerPage > 0 {
		lastPage++
	}
	if lastPage < 1 {
		lastPage = 1
	}

	meta := Meta{
		CurrentPage: params.Page,
		LastPage:    lastPage,
		Path:        path,
		PerPage:     params.PerPage,
		Total:       total,
	}
	if len(data) > 0 {
		meta.From = params.Offset + 1
		meta.To = params.Offset + len(data)
	}

	link := func(page int) *string {
		s := fmt.Sprintf("%s?page=%d&per_page=%d", path, page, params.PerPage)
		return &s
	}
	links := Links{First: link(1), Last: link(lastPage)}
	if params.Page > 1 {
		links.Prev = link(params.Page - 1)
	}
	if meta.HasNext() {
		links.Next = link(params.Page + 1)
	}

	return Page[T]{Data: data, Links: links, Meta: meta}
}
