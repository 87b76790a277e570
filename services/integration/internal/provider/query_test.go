package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuery_Params_AllSet(t *testing.T) {
	q := NewQuery(
		WithPage(2),
		WithIncludes("a", "b"),
		WithFilter("status", "open"),
		WithSort("name"),
	)

	assert.Equal(t, map[string]string{
		"page":           "2",
		"include":        "a,b",
		"filter[status]": "open",
		"sort":           "name",
	}, q.Params())
}

func TestQuery_Params_NothingSet(t *testing.T) {
	assert.Empty(t, NewQuery().Params())
	assert.Empty(t, NewQuery(WithPage(0), WithIncludes(), WithSort("")).Params())
}

func TestQuery_IncludesKeepOrderAndDropDuplicates(t *testing.T) {
	q := NewQuery(WithIncludes("tags", "sections", "tags", " ", "delivery_zones"), WithIncludes("sections"))
	assert.Equal(t, "tags,sections,delivery_zones", q.Params()["include"])
}

func TestQuery_EmptyFiltersAreOmitted(t *testing.T) {
	q := NewQuery(WithFilter("", "x"), WithFilter("name", ""), WithFilter("is_active", "1"))
	assert.Equal(t, map[string]string{"filter[is_active]": "1"}, q.Params())
}

func TestQuery_Page(t *testing.T) {
	_, ok := NewQuery().Page()
	assert.False(t, ok)

	page, ok := NewQuery(WithPage(3)).Page()
	assert.True(t, ok)
	assert.Equal(t, 3, page)
}

func TestQuery_ParamsDoNotAliasQuery(t *testing.T) {
	q := NewQuery(WithFilter("status", "open"))
	q.Params()["filter[status]"] = "closed"
	assert.Equal(t, "open", q.Params()["filter[status]"])
}

func TestQuery_Values(t *testing.T) {
	v := NewQuery(WithPage(1), WithSort("created_at"), WithIncludes("tags")).Values()
	assert.Equal(t, "include=tags&page=1&sort=created_at", v.Encode())
}
