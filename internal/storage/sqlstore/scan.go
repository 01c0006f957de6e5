package sqlstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/scrypster/p2p/pkg/types"
)

const (
	itemColumns = "items.id, items.type, items.title, items.status, items.parent_id, items.date"
	userColumns = "users.id, users.login, users.display_name, users.email"
)

// scanItems reads rows by column name, so clause hooks may add or drop
// columns. Unknown columns are discarded.
func scanItems(rows *sql.Rows) ([]*types.Item, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var items []*types.Item
	for rows.Next() {
		item := &types.Item{}
		dest := make([]interface{}, len(cols))
		for i, col := range cols {
			switch col {
			case "id":
				dest[i] = &item.ID
			case "type":
				dest[i] = &nullString{dst: &item.Type}
			case "title":
				dest[i] = &nullString{dst: &item.Title}
			case "status":
				dest[i] = &nullString{dst: &item.Status}
			case "parent_id":
				dest[i] = &nullInt{dst: &item.ParentID}
			case "date":
				dest[i] = &timeValue{dst: &item.Date}
			default:
				dest[i] = connectionColumn(&item.Connection, col)
			}
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanUsers(rows *sql.Rows) ([]*types.User, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var users []*types.User
	for rows.Next() {
		user := &types.User{}
		dest := make([]interface{}, len(cols))
		for i, col := range cols {
			switch col {
			case "id":
				dest[i] = &user.ID
			case "login":
				dest[i] = &nullString{dst: &user.Login}
			case "display_name":
				dest[i] = &nullString{dst: &user.DisplayName}
			case "email":
				dest[i] = &nullString{dst: &user.Email}
			default:
				dest[i] = connectionColumn(&user.Connection, col)
			}
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func connectionColumn(c *types.Connection, col string) interface{} {
	switch col {
	case "p2p_id":
		return &nullInt{dst: &c.P2PID}
	case "p2p_from":
		return &nullInt{dst: &c.P2PFrom}
	case "p2p_to":
		return &nullInt{dst: &c.P2PTo}
	case "p2p_type":
		return &nullString{dst: &c.P2PType}
	}
	return new(interface{})
}

type nullString struct{ dst *string }

func (n *nullString) Scan(src interface{}) error {
	var ns sql.NullString
	if err := ns.Scan(src); err != nil {
		return err
	}
	*n.dst = ns.String
	return nil
}

type nullInt struct{ dst *int64 }

func (n *nullInt) Scan(src interface{}) error {
	var ni sql.NullInt64
	if err := ni.Scan(src); err != nil {
		return err
	}
	*n.dst = ni.Int64
	return nil
}

// timeValue accepts native times as well as the text forms SQLite hands back
// for computed columns.
type timeValue struct{ dst *time.Time }

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

func (t *timeValue) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*t.dst = time.Time{}
		return nil
	case time.Time:
		*t.dst = v
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	}
	return fmt.Errorf("unsupported time value %T", src)
}

func (t *timeValue) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t.dst = parsed
			return nil
		}
	}
	return fmt.Errorf("unparseable time %q", s)
}
