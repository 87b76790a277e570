package provider

import (
	"net/url"
	"strconv"
	"strings"
)

// Query is what a caller wants from a list endpoint. It is immutable; the
// With* options are applied once by NewQuery.
type Query struct {
	page     int
	includes []string
	filters  map[string]string
	sort     string
}

// QueryOption sets one part of a Query.
type QueryOption func(*Query)

// WithPage requests a specific page. Pages start at 1; values below 1 leave
// the page unset.
func WithPage(page int) QueryOption {
	return func(q *Query) {
		if page >= 1 {
			q.page = page
		}
	}
}

// WithIncludes adds related resources to embed. Order is kept and duplicates
// are dropped.
func WithIncludes(names ...string) QueryOption {
	return func(q *Query) {
		for _, n := range names {
			n = strings.TrimSpace(n)
			if n == "" || containsString(q.includes, n) {
				continue
			}
			q.includes = append(q.includes, n)
		}
	}
}

// WithFilter adds a filter[key]=value parameter.
func WithFilter(key, value string) QueryOption {
	return func(q *Query) {
		if key == "" || value == "" {
			return
		}
		if q.filters == nil {
			q.filters = make(map[string]string)
		}
		q.filters[key] = value
	}
}

// WithSort sets the sort key, e.g. "created_at" or "-name".
func WithSort(key string) QueryOption {
	return func(q *Query) {
		q.sort = strings.TrimSpace(key)
	}
}

// NewQuery builds a query from opts.
func NewQuery(opts ...QueryOption) Query {
	var q Query
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// Page returns the requested page, if one was set.
func (q Query) Page() (int, bool) {
	return q.page, q.page > 0
}

// Params maps the query to transport parameters. Unset parts are omitted.
func (q Query) Params() map[string]string {
	params := make(map[string]string, 3+len(q.filters))
	if q.page > 0 {
		params["page"] = strconv.Itoa(q.page)
	}
	if len(q.includes) > 0 {
		params["include"] = strings.Join(q.includes, ",")
	}
	for k, v := range q.filters {
		params["filter["+k+"]"] = v
	}
	if q.sort != "" {
		params["sort"] = q.sort
	}
	return params
}

// Values returns Params as url.Values.
func (q Query) Values() url.Values {
	values := make(url.Values)
	for k, v := range q.Params() {
		values.Set(k, v)
	}
	return values
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
