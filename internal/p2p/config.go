package p2p

import (
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/p2p/internal/metrics"
	"github.com/scrypster/p2p/internal/storage"
	"github.com/scrypster/p2p/pkg/types"
)

// Env carries the collaborators shared by every connection type.
type Env struct {
	Host    *storage.Host
	Logger  *slog.Logger
	Metrics *metrics.Metrics // optional
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// TypeList is a list of item type names. In YAML it may be written as a
// single scalar.
type TypeList []string

// UnmarshalYAML accepts "post" as well as [post, page].
func (l *TypeList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*l = TypeList{node.Value}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*l = list
	return nil
}

// Title is the display title of a connection type. Text applies to both
// directions; otherwise From and To are used and missing ones are generated.
type Title struct {
	Text string
	From string
	To   string
}

// UnmarshalYAML accepts a scalar or a {from, to} mapping.
func (t *Title) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*t = Title{Text: node.Value}
		return nil
	}
	var m struct {
		From string `yaml:"from"`
		To   string `yaml:"to"`
	}
	if err := node.Decode(&m); err != nil {
		return err
	}
	*t = Title{From: m.From, To: m.To}
	return nil
}

// Config declares a connection type.
type Config struct {
	Name string `yaml:"name"`

	// From and To are shorthand for the object kinds and post types. A
	// single "user" or "attachment" entry selects that object kind.
	From TypeList `yaml:"from"`
	To   TypeList `yaml:"to"`

	FromObject    string          `yaml:"from_object"`
	ToObject      string          `yaml:"to_object"`
	FromQueryVars types.QueryVars `yaml:"from_query_vars"`
	ToQueryVars   types.QueryVars `yaml:"to_query_vars"`

	Cardinality string        `yaml:"cardinality"` // e.g. "one-to-many"
	Reciprocal  bool          `yaml:"reciprocal"`
	Title       Title         `yaml:"title"`
	FromLabels  *types.Labels `yaml:"from_labels"`
	ToLabels    *types.Labels `yaml:"to_labels"`

	// Extra holds any other attribute, readable through ConnectionType.Extra.
	Extra map[string]interface{} `yaml:",inline"`
}

// normalize expands the from/to shorthand and fills defaults.
func (c Config) normalize() Config {
	c.FromObject, c.FromQueryVars = expandShorthand(c.From, c.FromObject, c.FromQueryVars)
	c.ToObject, c.ToQueryVars = expandShorthand(c.To, c.ToObject, c.ToQueryVars)
	if c.Cardinality == "" {
		c.Cardinality = "many-to-many"
	}
	return c
}

func expandShorthand(list TypeList, object string, qv types.QueryVars) (string, types.QueryVars) {
	qv = qv.Clone()
	if len(list) > 0 {
		switch {
		case len(list) == 1 && list[0] == types.ObjectUser:
			object = types.ObjectUser
		case len(list) == 1 && list[0] == types.ObjectAttachment:
			object = types.ObjectAttachment
		default:
			object = types.ObjectPost
			qv["post_type"] = []string(list)
		}
	}
	if object == "" {
		object = types.ObjectPost
	}
	return object, qv
}

// fingerprint identifies the endpoints of an unnamed type.
func (c Config) fingerprint() string {
	return fmt.Sprintf("%s:%v|%s:%v", c.FromObject, c.FromQueryVars.Strings("post_type"),
		c.ToObject, c.ToQueryVars.Strings("post_type"))
}
