package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/scrypster/p2p/internal/storage"
	"github.com/scrypster/p2p/pkg/types"
)

// DefaultPerPage is the page size of item queries that don't set one.
const DefaultPerPage = 10

var itemOrderColumns = map[string]string{
	"date":  "items.date",
	"title": "items.title",
	"id":    "items.id",
	"ID":    "items.id",
}

// QueryItems implements storage.ItemQuerier.
//
// Supported vars: post_type (name, list or "any"; default "post"),
// post_status (name, list or "any"), post__in, post__not_in, post_parent,
// s, year, fields ("ids"), orderby, order, paged, posts_per_page
// (showposts), nopaging, suppress_filters.
func (s *Store) QueryItems(ctx context.Context, qv types.QueryVars) (*storage.ItemQuery, error) {
	q := storage.NewItemQuery(qv)
	s.pipeline.RunParse(ctx, q)

	vars := q.QueryVars
	clauses := s.itemClauses(vars)
	filtered := !vars.Bool("suppress_filters")
	if filtered {
		clauses = s.pipeline.RunClauses(ctx, clauses, q)
	}

	rows, err := s.query(ctx, selectSQL("items", clauses, true), clauses.Args()...)
	if err != nil {
		return nil, fmt.Errorf("%s: QueryItems: %w", s.dialect.Name, err)
	}
	items, err := scanItems(rows)
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: QueryItems: %w", s.dialect.Name, err)
	}
	q.Items = items

	perPage := itemsPerPage(vars)
	if perPage > 0 {
		found, err := s.countRows(ctx, "items", clauses)
		if err != nil {
			return nil, fmt.Errorf("%s: QueryItems count: %w", s.dialect.Name, err)
		}
		q.FoundItems = found
		q.MaxPages = (found + perPage - 1) / perPage
	} else {
		q.FoundItems = len(items)
		if len(items) > 0 {
			q.MaxPages = 1
		}
	}

	if filtered {
		s.pipeline.RunResults(ctx, q, q.Objects())
	}
	return q, nil
}

// itemsPerPage returns the page size, or 0 when the query is unpaged.
func itemsPerPage(vars types.QueryVars) int {
	if vars.Bool("nopaging") {
		return 0
	}
	key := "posts_per_page"
	if !vars.Has(key) && vars.Has("showposts") {
		key = "showposts"
	}
	if !vars.Has(key) {
		return DefaultPerPage
	}
	n := vars.Int(key)
	if n < 0 {
		return 0
	}
	if n == 0 {
		return DefaultPerPage
	}
	return n
}

func (s *Store) itemClauses(vars types.QueryVars) storage.Clauses {
	c := storage.Clauses{Fields: itemColumns}
	if vars.String("fields") == "ids" {
		c.Fields = "items.id"
	}

	var where []string
	add := func(cond string, args ...interface{}) {
		where = append(where, cond)
		c.WhereArgs = append(c.WhereArgs, args...)
	}

	postTypes := vars.Strings("post_type")
	if len(postTypes) == 0 {
		postTypes = []string{"post"}
	}
	anyType := contains(postTypes, "any")
	if !anyType {
		add("items.type IN ("+placeholders(len(postTypes))+")", stringArgs(postTypes)...)
	}

	statuses := vars.Strings("post_status")
	if len(statuses) == 0 {
		statuses = []string{"publish"}
		if anyType || contains(postTypes, "attachment") {
			statuses = append(statuses, "inherit")
		}
	}
	if !contains(statuses, "any") {
		add("items.status IN ("+placeholders(len(statuses))+")", stringArgs(statuses)...)
	}

	if vars.Has("post__in") {
		cond, args := inClause("items.id", vars.IDs("post__in"))
		add(cond, args...)
	}
	if ids := vars.IDs("post__not_in"); len(ids) > 0 {
		add("items.id NOT IN ("+placeholders(len(ids))+")", int64Args(ids)...)
	}
	if vars.Has("post_parent") {
		add("items.parent_id = ?", int64(vars.Int("post_parent")))
	}
	if term := vars.String("s"); term != "" {
		add("items.title "+s.dialect.LikeOperator+" ?", "%"+term+"%")
	}
	if vars.Has("year") {
		add(s.dialect.YearExpr("items.date")+" = ?", vars.Int("year"))
	}

	for _, cond := range where {
		c.Where += " AND " + cond
	}

	orderCol, ok := itemOrderColumns[vars.String("orderby")]
	if !ok {
		orderCol = "items.date"
	}
	if vars.String("orderby") != "none" {
		order := "DESC"
		if strings.EqualFold(vars.String("order"), "ASC") {
			order = "ASC"
		}
		c.OrderBy = orderCol + " " + order + ", items.id " + order
	}

	if perPage := itemsPerPage(vars); perPage > 0 {
		page := vars.Int("paged")
		if page < 1 {
			page = 1
		}
		c.Limits = fmt.Sprintf("LIMIT %d OFFSET %d", perPage, (page-1)*perPage)
	}

	return c
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

func stringArgs(list []string) []interface{} {
	args := make([]interface{}, len(list))
	for i, v := range list {
		args[i] = v
	}
	return args
}
