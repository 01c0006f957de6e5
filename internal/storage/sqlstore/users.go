package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/scrypster/p2p/internal/storage"
	"github.com/scrypster/p2p/pkg/types"
)

var userOrderColumns = map[string]string{
	"login":        "users.login",
	"display_name": "users.display_name",
	"id":           "users.id",
	"ID":           "users.id",
}

// QueryUsers implements storage.UserQuerier.
//
// Supported vars: include, exclude, search (leading/trailing "*" are
// wildcards, otherwise an exact match on login, email or display name),
// year (registration year), orderby, order, number, offset.
func (s *Store) QueryUsers(ctx context.Context, qv types.QueryVars) (*storage.UserQuery, error) {
	q := storage.NewUserQuery(qv)
	s.pipeline.RunParse(ctx, q)

	vars := q.QueryVars
	clauses := s.userClauses(vars)
	filtered := !vars.Bool("suppress_filters")
	if filtered {
		clauses = s.pipeline.RunClauses(ctx, clauses, q)
	}

	rows, err := s.query(ctx, selectSQL("users", clauses, true), clauses.Args()...)
	if err != nil {
		return nil, fmt.Errorf("%s: QueryUsers: %w", s.dialect.Name, err)
	}
	users, err := scanUsers(rows)
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: QueryUsers: %w", s.dialect.Name, err)
	}
	q.Results = users

	total, err := s.countRows(ctx, "users", clauses)
	if err != nil {
		return nil, fmt.Errorf("%s: QueryUsers count: %w", s.dialect.Name, err)
	}
	q.Total = total

	if filtered {
		s.pipeline.RunResults(ctx, q, q.Objects())
	}
	return q, nil
}

func (s *Store) userClauses(vars types.QueryVars) storage.Clauses {
	c := storage.Clauses{Fields: userColumns}

	if vars.Has("include") {
		cond, args := inClause("users.id", vars.IDs("include"))
		c.Where += " AND " + cond
		c.WhereArgs = append(c.WhereArgs, args...)
	}
	if ids := vars.IDs("exclude"); len(ids) > 0 {
		c.Where += " AND users.id NOT IN (" + placeholders(len(ids)) + ")"
		c.WhereArgs = append(c.WhereArgs, int64Args(ids)...)
	}
	if term := vars.String("search"); term != "" {
		pattern, wildcard := searchPattern(term)
		op := "="
		if wildcard {
			op = s.dialect.LikeOperator
		}
		c.Where += fmt.Sprintf(" AND (users.login %[1]s ? OR users.email %[1]s ? OR users.display_name %[1]s ?)", op)
		c.WhereArgs = append(c.WhereArgs, pattern, pattern, pattern)
	}
	if vars.Has("year") {
		c.Where += " AND " + s.dialect.YearExpr("users.registered") + " = ?"
		c.WhereArgs = append(c.WhereArgs, vars.Int("year"))
	}

	orderCol, ok := userOrderColumns[vars.String("orderby")]
	if !ok {
		orderCol = "users.login"
	}
	order := "ASC"
	if strings.EqualFold(vars.String("order"), "DESC") {
		order = "DESC"
	}
	c.OrderBy = orderCol + " " + order + ", users.id " + order

	if number := vars.Int("number"); number > 0 {
		offset := vars.Int("offset")
		if offset < 0 {
			offset = 0
		}
		c.Limits = fmt.Sprintf("LIMIT %d OFFSET %d", number, offset)
	}

	return c
}

// searchPattern turns "*term*" style searches into LIKE patterns.
func searchPattern(term string) (string, bool) {
	leading := strings.HasPrefix(term, "*")
	trailing := strings.HasSuffix(term, "*")
	if !leading && !trailing {
		return term, false
	}

	term = strings.Trim(term, "*")
	if leading {
		term = "%" + term
	}
	if trailing {
		term += "%"
	}
	return term, true
}
