package p2p

import (
	"context"
	"errors"
	"strings"

	"github.com/scrypster/p2p/internal/storage"
	"github.com/scrypster/p2p/pkg/types"
)

// postTranslations map the p2p:* vocabulary onto item query vars.
var postTranslations = [][2]string{
	{"p2p:include", "post__in"},
	{"p2p:exclude", "post__not_in"},
	{"p2p:search", "s"},
	{"p2p:page", "paged"},
	{"p2p:per_page", "posts_per_page"},
}

// PostSide is a side made of content items of one or more types.
// Attachments are a PostSide restricted to the attachment type with the
// inherit status forced.
type PostSide struct {
	host      *storage.Host
	object    string
	queryVars types.QueryVars
	postTypes []string
	forced    types.QueryVars
}

// NewPostSide builds a post side. The item types come from qv["post_type"]
// and default to "post".
func NewPostSide(qv types.QueryVars, host *storage.Host) *PostSide {
	qv = qv.Clone()
	postTypes := qv.Strings("post_type")
	if len(postTypes) == 0 {
		postTypes = []string{"post"}
	}
	return &PostSide{
		host:      host,
		object:    types.ObjectPost,
		queryVars: qv,
		postTypes: postTypes,
	}
}

// NewAttachmentSide builds the attachment side.
func NewAttachmentSide(qv types.QueryVars, host *storage.Host) *PostSide {
	s := NewPostSide(qv, host)
	s.object = types.ObjectAttachment
	s.postTypes = []string{"attachment"}
	s.forced = types.QueryVars{"post_status": "inherit"}
	return s
}

// PostTypes returns the item types this side is made of.
func (s *PostSide) PostTypes() []string {
	return append([]string(nil), s.postTypes...)
}

func (s *PostSide) Object() string      { return s.object }
func (s *PostSide) QueryObject() string { return types.ObjectPost }

func (s *PostSide) BaseQueryVars() types.QueryVars {
	return types.MergeQueryVars(s.queryVars, types.QueryVars{
		"post_type":           s.PostTypes(),
		"suppress_filters":    false,
		"ignore_sticky_posts": true,
	}, s.forced)
}

func (s *PostSide) ConnectableQueryVars(extra types.QueryVars) types.QueryVars {
	defaults := types.QueryVars{
		"post_status":            "any",
		"update_post_term_cache": false,
		"update_post_meta_cache": false,
	}
	return types.MergeQueryVars(defaults, s.TranslateQueryVars(extra), s.BaseQueryVars())
}

func (s *PostSide) TranslateQueryVars(qv types.QueryVars) types.QueryVars {
	return translate(qv, postTranslations)
}

func translate(qv types.QueryVars, pairs [][2]string) types.QueryVars {
	out := qv.Clone()
	for _, pair := range pairs {
		if out.Has(pair[0]) {
			out[pair[1]] = out.Pluck(pair[0])
		}
	}
	return out
}

func (s *PostSide) ItemRecognize(ctx context.Context, candidate interface{}) bool {
	var typeName string
	switch c := firstCandidate(candidate).(type) {
	case nil:
		return false
	case *types.Item:
		if c == nil {
			return false
		}
		typeName = c.Type
		if typeName == "" && c.ID > 0 {
			// Rows fetched with fields=ids carry no type.
			item, err := s.host.Store.GetItem(ctx, c.ID)
			if err != nil {
				return false
			}
			typeName = item.Type
		}
	case types.Object:
		return false
	default:
		if id, ok := candidateID(c); ok {
			item, err := s.host.Store.GetItem(ctx, id)
			if err != nil {
				return false
			}
			typeName = item.Type
		} else if name, ok := c.(string); ok {
			typeName = name
		} else {
			return false
		}
	}

	if _, ok := s.host.Types.ItemType(typeName); !ok {
		return false
	}
	return containsString(s.postTypes, typeName)
}

func (s *PostSide) ItemExists(ctx context.Context, id int64) bool {
	item, err := s.host.Store.GetItem(ctx, id)
	if err != nil {
		return false
	}
	return containsString(s.postTypes, item.Type)
}

func (s *PostSide) ItemID(ctx context.Context, candidate interface{}) (int64, bool) {
	if item, ok := candidate.(*types.Item); ok {
		if item == nil {
			return 0, false
		}
		return item.ID, true
	}
	id, ok := candidateID(candidate)
	if !ok {
		return 0, false
	}
	item, err := s.host.Store.GetItem(ctx, id)
	if err != nil {
		return 0, false
	}
	return item.ID, true
}

func (s *PostSide) ItemTitle(obj types.Object) string {
	if item, ok := obj.(*types.Item); ok {
		return item.Title
	}
	return ""
}

// Desc lists the labels of the side's types.
func (s *PostSide) Desc() string {
	labels := make([]string, 0, len(s.postTypes))
	for _, name := range s.postTypes {
		if t, ok := s.host.Types.ItemType(name); ok {
			labels = append(labels, t.Label)
		} else {
			labels = append(labels, name)
		}
	}
	return strings.Join(labels, ", ")
}

func (s *PostSide) Title() string {
	return s.Labels().Name
}

// Labels returns the labels of the first type.
func (s *PostSide) Labels() types.Labels {
	name := s.postTypes[0]
	if t, ok := s.host.Types.ItemType(name); ok {
		return t.Labels
	}
	return types.Labels{Name: name, SingularName: name}
}

func (s *PostSide) CheckCapability(ctx context.Context) bool {
	t, ok := s.host.Types.ItemType(s.postTypes[0])
	if !ok {
		return false
	}
	return s.host.Caps.CurrentUserCan(ctx, t.Caps.EditPosts)
}

// DoQuery runs qv on the host item engine.
func (s *PostSide) DoQuery(ctx context.Context, qv types.QueryVars) (*storage.ItemQuery, error) {
	if s.host.Items == nil {
		return nil, errors.New("p2p: no item querier configured")
	}
	return s.host.Items.QueryItems(ctx, qv)
}

// AbstractQuery turns an executed item query into a List.
func (s *PostSide) AbstractQuery(q *storage.ItemQuery) *List {
	page := q.QueryVars.Int("paged")
	if page < 1 {
		page = 1
	}
	return &List{
		Items:       q.Objects(),
		CurrentPage: page,
		TotalPages:  q.MaxPages,
	}
}

func (s *PostSide) Query(ctx context.Context, qv types.QueryVars) (*List, error) {
	q, err := s.DoQuery(ctx, qv)
	if err != nil {
		return nil, err
	}
	return s.AbstractQuery(q), nil
}

func containsString(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
