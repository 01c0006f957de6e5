package types

import "time"

// Connection holds the relationship columns a connected query joins onto a
// result row. All fields are zero when the row did not come from one.
type Connection struct {
	P2PID   int64  `json:"p2p_id,omitempty"`   // Relationship row ID
	P2PFrom int64  `json:"p2p_from,omitempty"` // ID on the "from" end
	P2PTo   int64  `json:"p2p_to,omitempty"`   // ID on the "to" end
	P2PType string `json:"p2p_type,omitempty"` // Connection type name
}

// Object is anything a Side can list: an item or a user.
type Object interface {
	ObjectID() int64
	P2P() *Connection
}

// Item represents a content item (post, page, attachment, custom type).
type Item struct {
	ID       int64     `json:"id"`                  // Unique identifier
	Type     string    `json:"type"`                // Item type name (see ItemType)
	Title    string    `json:"title"`               // Display title
	Status   string    `json:"status"`              // publish, draft, inherit, ...
	ParentID int64     `json:"parent_id,omitempty"` // Parent item, used by attachments
	Date     time.Time `json:"date"`                // Publication date

	Connection

	// Connected holds per-property lists filled by EachConnected.
	Connected map[string][]Object `json:"connected,omitempty"`
}

// ObjectID implements Object. A nil Item has ID 0.
func (i *Item) ObjectID() int64 {
	if i == nil {
		return 0
	}
	return i.ID
}

// P2P implements Object.
func (i *Item) P2P() *Connection { return &i.Connection }

// ResetConnected sets prop to an empty list, creating the map as needed.
func (i *Item) ResetConnected(prop string) {
	if i.Connected == nil {
		i.Connected = make(map[string][]Object)
	}
	i.Connected[prop] = []Object{}
}

// AppendConnected adds obj to the list stored under prop.
func (i *Item) AppendConnected(prop string, obj Object) {
	if i.Connected == nil {
		i.Connected = make(map[string][]Object)
	}
	i.Connected[prop] = append(i.Connected[prop], obj)
}

// User represents an account known to the host.
type User struct {
	ID          int64  `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`

	Connection
}

// ObjectID implements Object. A nil User has ID 0.
func (u *User) ObjectID() int64 {
	if u == nil {
		return 0
	}
	return u.ID
}

// P2P implements Object.
func (u *User) P2P() *Connection { return &u.Connection }

// Labels are the display strings of an item type or a user role.
type Labels struct {
	Name         string `json:"name" yaml:"name"`
	SingularName string `json:"singular_name" yaml:"singular_name"`
	SearchItems  string `json:"search_items,omitempty" yaml:"search_items"`
	NotFound     string `json:"not_found,omitempty" yaml:"not_found"`
}

// IsZero reports whether no label is set.
func (l Labels) IsZero() bool {
	return l == Labels{}
}

// TypeCaps names the capabilities guarding an item type.
type TypeCaps struct {
	EditPosts string `json:"edit_posts" yaml:"edit_posts"`
}

// ItemType describes a registered item type.
type ItemType struct {
	Name   string   `json:"name" yaml:"name"`
	Label  string   `json:"label" yaml:"label"`
	Labels Labels   `json:"labels" yaml:"labels"`
	Caps   TypeCaps `json:"caps" yaml:"caps"`
}
